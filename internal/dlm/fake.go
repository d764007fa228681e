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
package dlm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/solarisdb/dlmguard/golibs/errors"
)

// fakeEAGAIN mirrors the kernel's EAGAIN status on a NO_QUEUE refusal, so the
// Contention payload looks the same whether the Fake or the real DLM refused.
const fakeEAGAIN = 11

// fakeHandle is the Fake adapter's Handle implementation.
type fakeHandle struct{ name string }

func (h *fakeHandle) Name() string { return h.name }

type fakeGrant struct {
	name   string
	mode   Mode
	orphan bool
	nodeID uint32
	pid    uint32
}

// Fake is an in-memory Adapter used by tests and by daemons running outside a real
// DLM cluster. It models NO_QUEUE grant/refuse semantics and orphan adopt/purge with
// a single mutex instead of the kernel's lock-grant queue, which is a faithful
// simplification: this domain never queues (acquire always uses LKF_NOQUEUE).
type Fake struct {
	mu      sync.Mutex
	nextID  uint32
	grants  map[LockID]*fakeGrant
	nodeID  uint32
	created map[string]bool
}

var _ Adapter = (*Fake)(nil)

// NewFake returns a Fake adapter reporting localNodeID for Purge's node-scoping.
func NewFake(localNodeID uint32) *Fake {
	return &Fake{
		grants:  make(map[LockID]*fakeGrant),
		created: make(map[string]bool),
		nodeID:  localNodeID,
	}
}

func (f *Fake) OpenOrCreateLockspace(_ context.Context, name string) (Handle, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	created := !f.created[name]
	f.created[name] = true
	return &fakeHandle{name: name}, created, nil
}

func (f *Fake) Close(Handle) error { return nil }

func compatible(a, b Mode) bool {
	if a == ModeNull || b == ModeNull {
		return true
	}
	return a == ModeShared && b == ModeShared
}

func (f *Fake) LockWait(_ context.Context, h Handle, mode Mode, flags Flags, name string) (LockID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, g := range f.grants {
		if g.name == name && !compatible(g.mode, mode) {
			return 0, contentionError(name, mode, fakeEAGAIN)
		}
	}

	id := LockID(atomic.AddUint32(&f.nextID, 1))
	f.grants[id] = &fakeGrant{name: name, mode: mode, orphan: false, nodeID: f.nodeID}
	return id, nil
}

func (f *Fake) ConvertWait(_ context.Context, h Handle, id LockID, newMode Mode, flags Flags, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.grants[id]
	if !ok {
		return fmt.Errorf("convert on unknown lock id %d: %w", id, errors.ErrNotExist)
	}
	g.mode = newMode
	if newMode == ModeNull {
		g.orphan = false
	}
	return nil
}

func (f *Fake) UnlockWait(_ context.Context, h Handle, id LockID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.grants[id]; !ok {
		return fmt.Errorf("unlock on unknown lock id %d: %w", id, errors.ErrNotExist)
	}
	delete(f.grants, id)
	return nil
}

// Orphan marks an existing grant as orphaned by pid, simulating the owning process
// having died while PERSISTENT kept the lock alive. Test-only helper.
func (f *Fake) Orphan(id LockID, pid uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.grants[id]; ok {
		g.orphan = true
		g.pid = pid
	}
}

func (f *Fake) Adopt(_ context.Context, h Handle, mode Mode, name string, flags Flags) (LockID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, g := range f.grants {
		if g.name != name || !g.orphan {
			continue
		}
		if g.mode != mode {
			return 0, ErrIncompatibleOrphan
		}
		g.orphan = false
		return id, nil
	}
	return 0, ErrNoOrphan
}

func (f *Fake) Purge(_ context.Context, h Handle, nodeID uint32, pid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, g := range f.grants {
		if !g.orphan || g.nodeID != nodeID {
			continue
		}
		if pid != 0 && g.pid != pid {
			continue
		}
		delete(f.grants, id)
	}
	return nil
}

func (f *Fake) StartNotificationThread(Handle) error { return nil }
