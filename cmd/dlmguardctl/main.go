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

// Command dlmguardctl is a read-only introspection CLI for a running dlmguard
// plugin instance on the same host: it never dials a lock/unlock RPC (there
// isn't one to dial), only the admin health-check service and the Record File
// itself.
package main

import (
	"fmt"
	"os"
	"syscall"

	dlmcontext "github.com/solarisdb/dlmguard/golibs/context"
)

func main() {
	ctx := dlmcontext.NewSignalsContext(syscall.SIGINT, syscall.SIGTERM)
	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
