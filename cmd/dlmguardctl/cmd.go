// Copyright 2026 The Dlmguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dlmguardctl",
	Short: "Read-only introspection for a dlmguard lock manager plugin instance",
	Long: `dlmguardctl talks to a single dlmguard plugin instance running on this host.

It never issues a lock, unlock or convert operation itself: that surface only
exists inside the libvirt lock-manager plugin ABI. dlmguardctl only reads.`,
}

var adminAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", "127.0.0.1:7887", "address of the plugin's admin health-check service")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(listLocksCmd)
}
