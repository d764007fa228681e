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

// Package session implements the per-VM session manager: session objects
// (VMLockContexts) that translate a VM's declared resources into DLM lock
// acquire/release sequences against the Lock Registry.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/solarisdb/dlmguard/golibs/container"
	"github.com/solarisdb/dlmguard/golibs/errors"
	"github.com/solarisdb/dlmguard/golibs/logging"
	"github.com/solarisdb/dlmguard/internal/dlm"
	"github.com/solarisdb/dlmguard/internal/recordfile"
	"github.com/solarisdb/dlmguard/internal/registry"
)

// State is a Session's position in the NEW -> RESOURCED -> ACQUIRED -> RELEASED ->
// FREED state machine.
type State int

const (
	StateNew State = iota
	StateResourced
	StateAcquired
	StateReleased
	StateFreed
)

func (s State) String() string {
	return [...]string{"NEW", "RESOURCED", "ACQUIRED", "RELEASED", "FREED"}[s]
}

// ResourceType is the kind of resource add_resource was called with.
type ResourceType int

const (
	TypeDisk ResourceType = iota
	TypeLease
	// TypeOther covers executable, input-device, and filesystem-misc attachments:
	// the host daemon registers them with every VM and expects them to be
	// accepted, but they never map to a lock.
	TypeOther
)

// AddFlags are the flags add_resource accepts.
type AddFlags uint32

const (
	FlagReadOnly AddFlags = 1 << iota
	FlagShared
)

// AcquireFlags are the flags acquire accepts.
type AcquireFlags uint32

const (
	FlagRegisterOnly AcquireFlags = 1 << iota
	FlagRestrict
)

// ErrConfigUnsupported is returned by Acquire when a VM declared RW disks with no
// leases while require_lease_for_disks is set.
var ErrConfigUnsupported = fmt.Errorf("VM has RW disks and no leases, and require_lease_for_disks is set: %w", errors.ErrInvalid)

// ErrLockspaceNotOpen is returned by any operation attempted after the lockspace
// handle has been closed (deliberately, by RESTRICT, or at shutdown).
var ErrLockspaceNotOpen = fmt.Errorf("lockspace is not opened: %w", errors.ErrInternal)

var errInvalidState = errors.ErrInvalid

// Params are the required identity fields for create(params).
type Params struct {
	PID  uint32
	Name string
	ID   uint64
	UUID uuid.UUID
}

func (p Params) validate() error {
	if p.PID == 0 {
		return fmt.Errorf("missing pid: %w", errors.ErrInvalid)
	}
	if p.Name == "" {
		return fmt.Errorf("missing name: %w", errors.ErrInvalid)
	}
	if p.ID == 0 {
		return fmt.Errorf("missing id: %w", errors.ErrInvalid)
	}
	if p.UUID == uuid.Nil {
		return fmt.Errorf("missing or invalid uuid: %w", errors.ErrInvalid)
	}
	return nil
}

type resource struct {
	name string
	mode dlm.Mode
}

// Config is the policy subset of the plugin configuration that governs
// add_resource/acquire decisions.
type Config struct {
	AutoDiskLeases       bool
	RequireLeaseForDisks bool
}

// HandleSource gives a Session access to the plugin-wide lockspace handle, and the
// means to close it one-way after a RESTRICT acquire: the handle is threaded
// in, never read from a global.
type HandleSource interface {
	Handle() (dlm.Handle, error)
	Restrict() error
}

// Session is one VM's VMLockContext.
type Session struct {
	params     Params
	state      State
	resources  []resource
	hasRWDisks bool
}

// Manager creates and drives Sessions against a shared Adapter and Registry.
type Manager struct {
	Adapter  dlm.Adapter
	Registry *registry.Registry
	Handles  HandleSource
	Cfg      Config
	log      logging.Logger
}

// NewManager wires a Session Manager over the given Adapter, Registry and handle source.
func NewManager(adapter dlm.Adapter, reg *registry.Registry, handles HandleSource, cfg Config) *Manager {
	return &Manager{Adapter: adapter, Registry: reg, Handles: handles, Cfg: cfg, log: logging.NewLogger("session.Manager")}
}

// NewSession implements create(params): each missing required field is a distinct error.
func (m *Manager) NewSession(params Params) (*Session, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Session{params: params, state: StateNew}, nil
}

// AddResource implements add_resource(type, name, flags).
func (m *Manager) AddResource(s *Session, rtype ResourceType, name string, flags AddFlags) error {
	if err := s.requireState(StateNew, StateResourced); err != nil {
		return err
	}

	switch rtype {
	case TypeDisk:
		if flags&FlagReadOnly != 0 {
			// read-only disks need no lock.
		} else if flags&FlagShared == 0 && !m.Cfg.AutoDiskLeases {
			s.hasRWDisks = true
		} else {
			s.resources = append(s.resources, resource{name: name, mode: modeOf(flags)})
		}
	case TypeLease:
		s.resources = append(s.resources, resource{name: name, mode: modeOf(flags)})
	case TypeOther:
		// silently ignored, no lock: executable/input-device/filesystem-misc attachments.
	default:
		return fmt.Errorf("unknown resource type %v: %w", rtype, errors.ErrInvalid)
	}

	s.state = StateResourced
	return nil
}

func modeOf(flags AddFlags) dlm.Mode {
	if flags&FlagShared != 0 {
		return dlm.ModeShared
	}
	return dlm.ModeExclusive
}

// Acquire implements acquire(flags).
func (m *Manager) Acquire(ctx context.Context, s *Session, flags AcquireFlags) error {
	if err := s.requireState(StateNew, StateResourced); err != nil {
		return err
	}

	if len(s.resources) == 0 && s.hasRWDisks && m.Cfg.RequireLeaseForDisks {
		return ErrConfigUnsupported
	}

	if flags&FlagRegisterOnly != 0 {
		s.state = StateAcquired
		return nil
	}

	handle, err := m.Handles.Handle()
	if err != nil {
		return err
	}

	var acquired []*registry.LockRecord
	rollback := func() {
		for _, rec := range container.SliceReverse(acquired) {
			_ = m.Adapter.ConvertWait(ctx, handle, rec.KernelLockID, dlm.ModeNull, dlm.FlagConvert, rec.Name)
			_ = m.Registry.WriteSlot(rec, recordfile.StatusReleased)
			m.Registry.Remove(rec)
			_ = m.Adapter.UnlockWait(ctx, handle, rec.KernelLockID)
		}
	}

	for _, r := range s.resources {
		id, err := m.Adapter.LockWait(ctx, handle, r.mode, dlm.FlagNoQueue|dlm.FlagPersistent, r.name)
		if err != nil {
			var c dlm.Contention
			if errors.ExtractObject(err, &c) {
				m.log.Warnf("acquire: lock_wait(%s, %s) refused by the DLM, status=%d", c.Name, c.Mode, c.Status)
			} else {
				m.log.Warnf("acquire: lock_wait(%s) failed: %s", r.name, err)
			}
			rollback()
			return err
		}
		rec, err := m.Registry.Insert(r.name, r.mode, id, s.params.PID)
		if err != nil {
			_ = m.Adapter.UnlockWait(ctx, handle, id)
			rollback()
			return err
		}
		acquired = append(acquired, rec)
	}

	if flags&FlagRestrict != 0 {
		if err := m.Handles.Restrict(); err != nil {
			return err
		}
	}

	s.state = StateAcquired
	return nil
}

// Release implements release(): convert to NULL mode, flip the file
// slot, remove from Registry, then unlock, always in that order: a direct
// unlock on an adopted lock trips the callback pointers the kernel attached
// at adoption time.
func (m *Manager) Release(ctx context.Context, s *Session) error {
	if err := s.requireState(StateAcquired); err != nil {
		return err
	}

	handle, err := m.Handles.Handle()
	if err != nil {
		return err
	}

	for _, r := range s.resources {
		rec, ok := m.Registry.Find(s.params.PID, r.name, r.mode)
		if !ok {
			// may have been adopted-then-lost; skip it.
			continue
		}
		if err := m.Adapter.ConvertWait(ctx, handle, rec.KernelLockID, dlm.ModeNull, dlm.FlagConvert, rec.Name); err != nil {
			return fmt.Errorf("release: convert_wait(%s) failed: %w", r.name, err)
		}
		if err := m.Registry.WriteSlot(rec, recordfile.StatusReleased); err != nil {
			return fmt.Errorf("release: write released slot for %s failed: %w", r.name, err)
		}
		m.Registry.Remove(rec)
		if err := m.Adapter.UnlockWait(ctx, handle, rec.KernelLockID); err != nil {
			return fmt.Errorf("release: unlock_wait(%s) failed: %w", r.name, err)
		}
	}

	s.state = StateReleased
	return nil
}

// Inquire implements inquire(): intentionally always returns no state, this
// plugin does not serialize lock state for migration.
func (m *Manager) Inquire(s *Session) (any, error) {
	if err := s.requireState(StateAcquired, StateReleased); err != nil {
		return nil, err
	}
	return nil, nil
}

// Free implements free(): releases owned memory, never touches the Registry.
func (m *Manager) Free(s *Session) error {
	if s.state == StateFreed {
		return fmt.Errorf("session already freed: %w", errInvalidState)
	}
	s.state = StateFreed
	s.resources = nil
	return nil
}

func (s *Session) requireState(allowed ...State) error {
	if s.state == StateFreed {
		return fmt.Errorf("session is freed: %w", errInvalidState)
	}
	for _, a := range allowed {
		if s.state == a {
			return nil
		}
	}
	return fmt.Errorf("invalid operation in state %s: %w", s.state, errInvalidState)
}

// State exposes the session's current lifecycle state, for tests and introspection.
func (s *Session) State() State { return s.state }
