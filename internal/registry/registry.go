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

// Package registry implements the in-memory lock registry: the ordered
// collection of held locks, kept in lock-step with the Record File and the kernel
// DLM. It owns two guarding mutexes: a list mutex
// for structural edits to the collection and a file mutex for Record File writes,
// always acquired disjointly (never list-then-file) to avoid a lock-order cycle.
package registry

import (
	"sync"

	"github.com/solarisdb/dlmguard/golibs/container"
	"github.com/solarisdb/dlmguard/golibs/logging"
	"github.com/solarisdb/dlmguard/internal/dlm"
	"github.com/solarisdb/dlmguard/internal/recordfile"
)

// LockRecord is one held lock, mirrored into the Record File. The Registry
// exclusively owns LockRecords; the Record File holds a durable shadow, never
// an owner.
type LockRecord struct {
	Name         string
	Mode         dlm.Mode
	KernelLockID dlm.LockID
	OwnerPID     uint32
}

// Registry is the ordered collection of LockRecords plus the Record File shadowing
// them. listMu guards structural edits to records; fileMu guards File writes.
type Registry struct {
	listMu sync.Mutex
	fileMu sync.Mutex

	records []*LockRecord
	file    *recordfile.File
	log     logging.Logger
}

// New wraps an already-open Record File. file may be nil if the caller manages
// slot writes itself (e.g. during Recovery Engine's initial scan, before the file
// is reinitialized).
func New(file *recordfile.File) *Registry {
	return &Registry{file: file, log: logging.NewLogger("registry.Registry")}
}

// SetFile (re)points the Registry at a Record File, e.g. after Recovery replaces it.
func (r *Registry) SetFile(file *recordfile.File) {
	r.fileMu.Lock()
	defer r.fileMu.Unlock()
	r.file = file
}

// Insert adds a LockRecord to the Registry and writes its slot as HELD to the
// Record File.
func (r *Registry) Insert(name string, mode dlm.Mode, id dlm.LockID, pid uint32) (*LockRecord, error) {
	rec := &LockRecord{Name: name, Mode: mode, KernelLockID: id, OwnerPID: pid}

	if err := r.writeSlot(rec, recordfile.StatusHeld); err != nil {
		return nil, err
	}

	r.listMu.Lock()
	r.records = append(r.records, rec)
	r.listMu.Unlock()
	return rec, nil
}

// Remove deletes rec from the Registry. It does not touch the Record File; callers
// flip the slot to RELEASED themselves (the release path requires convert,
// then file-flip, then remove, then unlock — a specific sequence Remove must not
// impose its own order on).
func (r *Registry) Remove(rec *LockRecord) {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	if idx := container.IndexOf(r.records, rec); idx >= 0 {
		r.records = append(r.records[:idx], r.records[idx+1:]...)
	}
}

// Find scans linearly for the Registry entry matching (pid, name, mode). The
// collection is small by design (resources per running VM × live VMs), so a
// linear scan is the right tool.
func (r *Registry) Find(pid uint32, name string, mode dlm.Mode) (*LockRecord, bool) {
	probe := &LockRecord{Name: name, Mode: mode, OwnerPID: pid}
	r.listMu.Lock()
	defer r.listMu.Unlock()
	idx := container.IndexOfAny(r.records, probe, func(v1, v2 *LockRecord) bool {
		return v1.OwnerPID == v2.OwnerPID && v1.Name == v2.Name && v1.Mode == v2.Mode
	})
	if idx < 0 {
		return nil, false
	}
	return r.records[idx], true
}

// WriteSlot writes rec's slot to the Record File under the file mutex with the
// given status, without touching the in-memory list. Used by release to flip a
// slot to RELEASED before the entry is removed.
func (r *Registry) WriteSlot(rec *LockRecord, status recordfile.Status) error {
	return r.writeSlot(rec, status)
}

func (r *Registry) writeSlot(rec *LockRecord, status recordfile.Status) error {
	r.fileMu.Lock()
	defer r.fileMu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.WriteLock(recordfile.Slot{
		KernelLockID: rec.KernelLockID,
		Name:         rec.Name,
		Mode:         rec.Mode,
		PID:          rec.OwnerPID,
		Status:       status,
	})
}

// Snapshot returns a copy of the currently held records, for ListLocks introspection
// and for Recovery's final Record File rewrite.
func (r *Registry) Snapshot() []LockRecord {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	out := make([]LockRecord, len(r.records))
	for i, e := range r.records {
		out[i] = *e
	}
	return out
}

// Drain empties the Registry's in-memory list without writing to the Record File
// or unlocking in the DLM: at deinit time outstanding locks are deliberately
// left as orphans for the next start's recovery to adopt.
func (r *Registry) Drain() {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	r.records = nil
}
