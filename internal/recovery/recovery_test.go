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
package recovery

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarisdb/dlmguard/internal/auditlog"
	"github.com/solarisdb/dlmguard/internal/cpg"
	"github.com/solarisdb/dlmguard/internal/dlm"
	"github.com/solarisdb/dlmguard/internal/recordfile"
)

func newAudit(t *testing.T) *auditlog.Log {
	t.Helper()
	a := auditlog.New(auditlog.Config{})
	require.Nil(t, a.Init(context.Background()))
	t.Cleanup(a.Shutdown)
	return a
}

func TestRun_FreshLockspaceSkipsScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockfile")
	adapter := dlm.NewFake(1)
	handle, _, _ := adapter.OpenOrCreateLockspace(context.Background(), "libvirt")

	reg, err := Run(context.Background(), adapter, handle, true, &cpg.Fake{NodeID: 1}, Config{
		LockRecordFilePath: path,
	}, nil)
	require.Nil(t, err)
	assert.Empty(t, reg.Snapshot())
}

func TestRun_AdoptsMatchingOrphan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockfile")
	_, err := recordfile.Initialize(path, []recordfile.Slot{
		{KernelLockID: 0, Name: "disk0", Mode: dlm.ModeExclusive, PID: 100},
	})
	require.Nil(t, err)

	adapter := dlm.NewFake(1)
	handle, _, _ := adapter.OpenOrCreateLockspace(context.Background(), "libvirt")
	id, err := adapter.LockWait(context.Background(), handle, dlm.ModeExclusive, dlm.FlagNoQueue|dlm.FlagPersistent, "disk0")
	require.Nil(t, err)
	adapter.Orphan(id, 100)

	audit := newAudit(t)
	reg, err := Run(context.Background(), adapter, handle, false, &cpg.Fake{NodeID: 1}, Config{
		LockRecordFilePath: path,
		TimestampUTC:       42,
	}, audit)
	require.Nil(t, err)

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "disk0", snap[0].Name)

	entries, err := audit.List()
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, auditlog.DecisionAdopted, entries[0].Decision)
	assert.Equal(t, int64(42), entries[0].TimestampUTC)
}

func TestRun_DropsWhenNoOrphanExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockfile")
	_, err := recordfile.Initialize(path, []recordfile.Slot{
		{KernelLockID: 0, Name: "disk0", Mode: dlm.ModeExclusive, PID: 100},
	})
	require.Nil(t, err)

	adapter := dlm.NewFake(1)
	handle, _, _ := adapter.OpenOrCreateLockspace(context.Background(), "libvirt")

	audit := newAudit(t)
	reg, err := Run(context.Background(), adapter, handle, false, &cpg.Fake{NodeID: 1}, Config{
		LockRecordFilePath: path,
	}, audit)
	require.Nil(t, err)
	assert.Empty(t, reg.Snapshot())

	entries, err := audit.List()
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, auditlog.DecisionDroppedENOENT, entries[0].Decision)
}

func TestRun_DropsIncompatibleOrphan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockfile")
	_, err := recordfile.Initialize(path, []recordfile.Slot{
		{KernelLockID: 0, Name: "disk0", Mode: dlm.ModeShared, PID: 100},
	})
	require.Nil(t, err)

	adapter := dlm.NewFake(1)
	handle, _, _ := adapter.OpenOrCreateLockspace(context.Background(), "libvirt")
	id, err := adapter.LockWait(context.Background(), handle, dlm.ModeExclusive, dlm.FlagNoQueue|dlm.FlagPersistent, "disk0")
	require.Nil(t, err)
	adapter.Orphan(id, 100)

	audit := newAudit(t)
	reg, err := Run(context.Background(), adapter, handle, false, &cpg.Fake{NodeID: 1}, Config{
		LockRecordFilePath: path,
	}, audit)
	require.Nil(t, err)
	assert.Empty(t, reg.Snapshot())

	entries, err := audit.List()
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, auditlog.DecisionDroppedEAGAIN, entries[0].Decision)
}

func TestRun_PurgeRemovesRemainingOrphansForThisNode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockfile")
	adapter := dlm.NewFake(1)
	handle, _, _ := adapter.OpenOrCreateLockspace(context.Background(), "libvirt")
	id, err := adapter.LockWait(context.Background(), handle, dlm.ModeExclusive, dlm.FlagNoQueue|dlm.FlagPersistent, "stray")
	require.Nil(t, err)
	adapter.Orphan(id, 999)

	audit := newAudit(t)
	reg, err := Run(context.Background(), adapter, handle, false, &cpg.Fake{NodeID: 1}, Config{
		LockRecordFilePath: path,
		PurgeLockspace:     true,
	}, audit)
	require.Nil(t, err)
	assert.Empty(t, reg.Snapshot())

	// the purged orphan must be gone from the DLM too, not just absent from the registry.
	_, err = adapter.Adopt(context.Background(), handle, dlm.ModeExclusive, "stray", dlm.FlagPersistent|dlm.FlagOrphan)
	assert.ErrorIs(t, err, dlm.ErrNoOrphan)

	entries, err := audit.List()
	require.Nil(t, err)
	var sawPurge bool
	for _, e := range entries {
		if e.Decision == auditlog.DecisionPurged {
			sawPurge = true
		}
	}
	assert.True(t, sawPurge)
}

func TestRun_RewritesRecordFileFromRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockfile")
	_, err := recordfile.Initialize(path, []recordfile.Slot{
		{KernelLockID: 0, Name: "disk0", Mode: dlm.ModeExclusive, PID: 100},
	})
	require.Nil(t, err)

	adapter := dlm.NewFake(1)
	handle, _, _ := adapter.OpenOrCreateLockspace(context.Background(), "libvirt")
	id, err := adapter.LockWait(context.Background(), handle, dlm.ModeExclusive, dlm.FlagNoQueue|dlm.FlagPersistent, "disk0")
	require.Nil(t, err)
	adapter.Orphan(id, 100)

	reg, err := Run(context.Background(), adapter, handle, false, &cpg.Fake{NodeID: 1}, Config{
		LockRecordFilePath: path,
	}, nil)
	require.Nil(t, err)
	require.Len(t, reg.Snapshot(), 1)

	reopened, err := recordfile.Open(path)
	require.Nil(t, err)
	defer reopened.Close()
	it, err := reopened.Scan()
	require.Nil(t, err)
	defer it.Close()
	require.True(t, it.HasNext())
	pl, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "disk0", pl.Name)
}
