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

// Package cpg is a thin facade over the cluster's Closed Process Group membership
// service, used only to obtain the local node's cluster id.
package cpg

import (
	"context"
	"fmt"
	"os"

	"github.com/solarisdb/dlmguard/golibs/errors"
)

// Adapter exposes the local node's cluster id.
type Adapter interface {
	// LocalNodeID initializes a membership-service handle, queries the local id,
	// and finalizes the handle before returning (scoped acquisition, guaranteed
	// release, even on error).
	LocalNodeID(ctx context.Context) (uint32, error)
}

// ErrNotRoot is returned by adapters that require superuser privileges when the
// calling process is not running as uid 0.
var ErrNotRoot = fmt.Errorf("must run as root to query cluster membership: %w", errors.ErrNotAuthorized)

// RequireRoot checks the superuser precondition: the process must run
// as uid 0 before it may touch the membership service or the DLM.
func RequireRoot() error {
	if os.Geteuid() != 0 {
		return ErrNotRoot
	}
	return nil
}
