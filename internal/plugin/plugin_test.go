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
package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarisdb/dlmguard/internal/cpg"
	"github.com/solarisdb/dlmguard/internal/dlm"
	"github.com/solarisdb/dlmguard/internal/session"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	body := `{
		"auto_disk_leases": true,
		"require_lease_for_disks": false,
		"purge_lockspace": true,
		"lockspace_name": "libvirt",
		"lock_record_file_path": "` + filepath.Join(dir, "lockfile") + `",
		"admin_listen_addr": "127.0.0.1:0",
		"audit_db_file_path": ""
	}`
	require.Nil(t, os.WriteFile(cfgPath, []byte(body), 0644))
	return cfgPath
}

func testParams() session.Params {
	return session.Params{PID: 100, Name: "vm0", ID: 1, UUID: uuid.UUID{1}}
}

// newTestPlugin builds a Plugin over Fake adapters with a satisfied dlm_controld
// liveness probe, a precondition a test host cannot provide for real.
func newTestPlugin(t *testing.T) *Plugin {
	t.Helper()
	probe := filepath.Join(t.TempDir(), "cluster_name")
	require.Nil(t, os.WriteFile(probe, []byte("testcluster\n"), 0644))
	return New(WithDLMAdapter(dlm.NewFake(1)), WithCPGAdapter(&cpg.Fake{NodeID: 1}),
		WithSkipRootCheck(), WithClusterProbePath(probe))
}

func TestInit_FailsWhenDLMDown(t *testing.T) {
	p := New(WithDLMAdapter(dlm.NewFake(1)), WithCPGAdapter(&cpg.Fake{NodeID: 1}),
		WithSkipRootCheck(), WithClusterProbePath(filepath.Join(t.TempDir(), "no-such-probe")))
	err := p.Init(context.Background(), "test", writeTestConfig(t), 0)
	assert.NotNil(t, err)
}

func TestInit_IsIdempotent(t *testing.T) {
	p := newTestPlugin(t)
	cfgPath := writeTestConfig(t)

	require.Nil(t, p.Init(context.Background(), "test", cfgPath, 0))
	require.Nil(t, p.Init(context.Background(), "test", cfgPath, 0))
	require.Nil(t, p.Deinit())
}

func TestInit_RejectsNonZeroFlags(t *testing.T) {
	p := newTestPlugin(t)
	err := p.Init(context.Background(), "test", writeTestConfig(t), 1)
	assert.NotNil(t, err)
}

func TestFullSessionLifecycle(t *testing.T) {
	p := newTestPlugin(t)
	require.Nil(t, p.Init(context.Background(), "test", writeTestConfig(t), 0))
	defer p.Deinit()

	h, err := p.NewSession(TypeDomain, testParams())
	require.Nil(t, err)
	assert.Contains(t, p.SessionHandles(), h)

	require.Nil(t, p.AddResource(h, session.TypeLease, "lease0", 0))
	fd, err := p.Acquire(context.Background(), h, 0)
	require.Nil(t, err)
	assert.Equal(t, -1, fd)

	assert.Len(t, p.Registry().Snapshot(), 1)

	require.Nil(t, p.Release(context.Background(), h))
	assert.Empty(t, p.Registry().Snapshot())

	require.Nil(t, p.Free(h))
	assert.NotContains(t, p.SessionHandles(), h)
}

func TestNewSession_RejectsNonDomainType(t *testing.T) {
	p := newTestPlugin(t)
	require.Nil(t, p.Init(context.Background(), "test", writeTestConfig(t), 0))
	defer p.Deinit()

	_, err := p.NewSession(SessionType(99), testParams())
	assert.NotNil(t, err)
}

func TestOperations_BeforeInit_Fail(t *testing.T) {
	p := newTestPlugin(t)
	_, err := p.NewSession(TypeDomain, testParams())
	assert.NotNil(t, err)
}

func TestAcquireRestrict_ClosesLockspaceForLaterOperations(t *testing.T) {
	p := newTestPlugin(t)
	require.Nil(t, p.Init(context.Background(), "test", writeTestConfig(t), 0))
	defer p.Deinit()

	h, err := p.NewSession(TypeDomain, testParams())
	require.Nil(t, err)
	require.Nil(t, p.AddResource(h, session.TypeLease, "lease0", 0))
	_, err = p.Acquire(context.Background(), h, session.FlagRestrict)
	require.Nil(t, err)

	h2, err := p.NewSession(TypeDomain, session.Params{PID: 200, Name: "vm1", ID: 2, UUID: uuid.UUID{2}})
	require.Nil(t, err)
	require.Nil(t, p.AddResource(h2, session.TypeLease, "lease1", 0))
	_, err = p.Acquire(context.Background(), h2, 0)
	assert.ErrorIs(t, err, session.ErrLockspaceNotOpen)
}
