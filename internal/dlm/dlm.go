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

// Package dlm is a thin facade over the cluster's Distributed Lock Manager kernel
// service: open/create a lockspace, take and release blocking locks, adopt orphans
// left by a prior instance, and purge them on a node-wide basis.
package dlm

import (
	"context"
	"fmt"

	"github.com/solarisdb/dlmguard/golibs/errors"
	"github.com/solarisdb/dlmguard/golibs/logging"
)

// Mode is a DLM lock mode. Only the three modes this domain needs are modeled:
// NULL (the target of release's convert), shared and exclusive.
type Mode int

const (
	ModeNull Mode = iota
	ModeShared
	ModeExclusive
)

func (m Mode) String() string {
	switch m {
	case ModeNull:
		return "NLMODE"
	case ModeShared:
		return "PRMODE"
	case ModeExclusive:
		return "EXMODE"
	default:
		return "UNKNOWN"
	}
}

// Flags mirrors the LKF_* flags the original DLM client passes to lock/adopt calls.
type Flags uint32

const (
	FlagNoQueue Flags = 1 << iota
	FlagPersistent
	FlagConvert
	FlagOrphan
)

// Handle is an opaque, adapter-owned reference to an open lockspace.
type Handle interface {
	// Name is the lockspace name this handle was opened with.
	Name() string
}

// LockID is the 32-bit identifier the DLM mints when a lock is granted. It is opaque
// to callers beyond being stable for the life of the lock and usable to convert/unlock it.
type LockID uint32

// Contention carries the kernel's refusal details for a NO_QUEUE lock attempt.
// It is embedded into the returned error with errors.EmbedObject so callers can
// report the DLM's own status code instead of just "not granted".
type Contention struct {
	Name   string `json:"name"`
	Mode   string `json:"mode"`
	Status int    `json:"status"`
}

// contentionError wraps errors.ErrConflict with the refusal's Contention payload.
func contentionError(name string, mode Mode, status int) error {
	return errors.EmbedObject(Contention{Name: name, Mode: mode.String(), Status: status},
		fmt.Errorf("lock %q not granted: %w", name, errors.ErrConflict))
}

// ErrIncompatibleOrphan is returned by Adopt when a different orphan with the same
// name but an incompatible mode already exists (EAGAIN in the kernel DLM).
var ErrIncompatibleOrphan = fmt.Errorf("incompatible orphan lock exists: %w", errors.ErrConflict)

// ErrNoOrphan is returned by Adopt when no orphan lock exists under that name (ENOENT).
var ErrNoOrphan = fmt.Errorf("no orphan lock to adopt: %w", errors.ErrNotExist)

// Adapter is the full surface this plugin needs of the DLM. Implementations must make
// lock_wait/convert_wait/unlock_wait genuinely blocking-until-resolved operations.
// Neither adapter in this package consults ctx: a call returns only once the DLM
// has granted or refused it.
type Adapter interface {
	// OpenOrCreateLockspace opens lockspace name, creating it if it does not already
	// exist. The second return reports whether the lockspace was freshly created
	// (true) or already existed (false); recovery skips its scan/adopt/purge pass
	// for a freshly created lockspace.
	OpenOrCreateLockspace(ctx context.Context, name string) (h Handle, created bool, err error)
	Close(h Handle) error

	LockWait(ctx context.Context, h Handle, mode Mode, flags Flags, name string) (LockID, error)
	ConvertWait(ctx context.Context, h Handle, id LockID, newMode Mode, flags Flags, name string) error
	UnlockWait(ctx context.Context, h Handle, id LockID) error

	// Adopt reattaches to an orphan lock left by a prior instance without re-acquiring
	// it. Returns ErrIncompatibleOrphan or ErrNoOrphan.
	Adopt(ctx context.Context, h Handle, mode Mode, name string, flags Flags) (LockID, error)

	// Purge removes orphan locks owned by nodeID. pid == 0 means "all orphans owned
	// by this node regardless of origin pid."
	Purge(ctx context.Context, h Handle, nodeID uint32, pid uint32) error

	// StartNotificationThread starts the adapter's background completion-AST pump.
	// It is a no-op for adapters (like Fake) that resolve synchronously.
	StartNotificationThread(h Handle) error
}

var log = logging.NewLogger("dlm.Adapter")
