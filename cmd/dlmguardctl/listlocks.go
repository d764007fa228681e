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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solarisdb/dlmguard/internal/recordfile"
)

var recordFilePath string

var listLocksCmd = &cobra.Command{
	Use:   "list-locks",
	Short: "List every held lock recorded in a Record File",
	Long: `list-locks reads the fixed-width Record File directly: it never dials the
plugin process, so it works even against a crashed instance's leftover file,
the exact input the next start's recovery pass will adopt or purge.`,
	RunE: runListLocks,
}

func init() {
	listLocksCmd.Flags().StringVar(&recordFilePath, "record-file", "/tmp/libvirtd-dlm-file", "path to the Record File")
}

func runListLocks(cmd *cobra.Command, args []string) error {
	f, err := recordfile.Open(recordFilePath)
	if err != nil {
		return fmt.Errorf("could not open record file %s: %w", recordFilePath, err)
	}
	defer func() { _ = f.Close() }()

	it, err := f.Scan()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	defer func() { _ = it.Close() }()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KERNEL_LOCK_ID\tRESOURCE_NAME\tLOCK_MODE\tVM_PID")
	n := 0
	for it.HasNext() {
		pl, ok := it.Next()
		if !ok {
			break
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", pl.KernelLockID, pl.Name, pl.Mode, pl.PID)
		n++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("no held locks recorded")
	}
	return nil
}
