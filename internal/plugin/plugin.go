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

// Package plugin implements the lock-manager plugin surface: init/deinit and the
// session lifecycle entry points the virtualization host daemon calls directly.
// It threads the two process-wide singletons, the loaded Config and the open
// lockspace Handle, through a single Plugin value built once in Init and torn
// down in Deinit, rather than package-level globals.
package plugin

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/logrange/linker"
	"github.com/solarisdb/dlmguard/golibs/cast"
	"github.com/solarisdb/dlmguard/golibs/container"
	"github.com/solarisdb/dlmguard/golibs/errors"
	"github.com/solarisdb/dlmguard/golibs/logging"
	"github.com/solarisdb/dlmguard/golibs/transport"
	"github.com/solarisdb/dlmguard/internal/adminsvc"
	"github.com/solarisdb/dlmguard/internal/auditlog"
	"github.com/solarisdb/dlmguard/internal/cpg"
	"github.com/solarisdb/dlmguard/internal/dlm"
	"github.com/solarisdb/dlmguard/internal/plugstate"
	"github.com/solarisdb/dlmguard/internal/recovery"
	"github.com/solarisdb/dlmguard/internal/registry"
	"github.com/solarisdb/dlmguard/internal/session"
)

// SessionType mirrors the plugin ABI's VIR_DOMAIN_LOCK_MANAGER_OBJECT_* enum; only
// the domain type is supported.
type SessionType int

const TypeDomain SessionType = 0

// SessionHandle addresses one live Session across the Plugin Surface's entry
// points; the host daemon never sees the underlying *session.Session.
type SessionHandle uint64

var log = logging.NewLogger("plugin.Plugin")

// Plugin is the top-level process-wide state: flags=0-only Init, idempotent,
// rejecting non-root, wiring every other component and running the Recovery
// Engine before accepting session work.
type Plugin struct {
	mu sync.Mutex

	skipRootCheck bool
	probePath     string
	clock         func() int64
	dlmAdapter    dlm.Adapter
	cpgAdapter    cpg.Adapter

	initialized bool
	restricted  bool
	cfg         *plugstate.Config
	handle      dlm.Handle
	registry    *registry.Registry
	sessions    *session.Manager
	audit       *auditlog.Log
	watch       *clusterWatch
	admin       *adminsvc.Server
	inj         *linker.Injector

	nextSessionID uint64
	sessionTable  map[SessionHandle]*session.Session
}

// Option customizes a Plugin before Init, used by tests to inject Fakes instead
// of the real cgo-backed DLM/CPG adapters and to skip the root-uid precondition.
type Option func(*Plugin)

func WithDLMAdapter(a dlm.Adapter) Option { return func(p *Plugin) { p.dlmAdapter = a } }
func WithCPGAdapter(a cpg.Adapter) Option { return func(p *Plugin) { p.cpgAdapter = a } }
func WithSkipRootCheck() Option           { return func(p *Plugin) { p.skipRootCheck = true } }
func WithClock(clock func() int64) Option { return func(p *Plugin) { p.clock = clock } }

// WithClusterProbePath overrides the dlm_controld liveness probe path, used by
// tests that have no /sys/kernel/config mounted.
func WithClusterProbePath(path string) Option { return func(p *Plugin) { p.probePath = path } }

// New constructs an uninitialized Plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{sessionTable: make(map[SessionHandle]*session.Session), probePath: clusterNamePath}
	for _, o := range opts {
		o(p)
	}
	if p.clock == nil {
		p.clock = func() int64 { return 0 }
	}
	return p
}

// Init is the init(version, config_path, flags) entry point: idempotent (a second
// call returns success), rejects non-root, loads config, runs the Recovery
// Engine, and starts the DLM notification thread.
func (p *Plugin) Init(ctx context.Context, version, configPath string, flags uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		log.Infof("init called again on an already-initialized plugin, returning success")
		return nil
	}
	if flags != 0 {
		return fmt.Errorf("init: flags must be 0, got %d: %w", flags, errors.ErrInvalid)
	}
	if !p.skipRootCheck {
		if err := cpg.RequireRoot(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(p.probePath); err != nil {
		return fmt.Errorf("init: dlm_controld is not running, %s is missing: %w", p.probePath, errors.ErrInvalid)
	}

	log.Infof("initializing dlmguard %s, configPath=%s", version, configPath)

	cfg, err := plugstate.BuildConfig(configPath)
	if err != nil {
		return fmt.Errorf("init: could not build config: %w", err)
	}
	log.Infof(spew.Sprint(*cfg))

	if p.dlmAdapter == nil {
		p.dlmAdapter = dlm.NewDefault(0)
	}
	if p.cpgAdapter == nil {
		p.cpgAdapter = cpg.NewDefault()
	}

	handle, created, err := p.dlmAdapter.OpenOrCreateLockspace(ctx, cfg.LockspaceName)
	if err != nil {
		return fmt.Errorf("init: could not open lockspace %s: %w", cfg.LockspaceName, err)
	}
	if err := p.dlmAdapter.StartNotificationThread(handle); err != nil {
		_ = p.dlmAdapter.Close(handle)
		return fmt.Errorf("init: could not start notification thread: %w", err)
	}

	audit := auditlog.New(auditlog.Config{DBFilePath: cfg.AuditDBFilePath})
	if err := audit.Init(ctx); err != nil {
		_ = p.dlmAdapter.Close(handle)
		return fmt.Errorf("init: could not start audit log: %w", err)
	}

	reg, err := recovery.Run(ctx, p.dlmAdapter, handle, created, p.cpgAdapter, recovery.Config{
		PurgeLockspace:     cast.Bool(cfg.PurgeLockspace, true),
		LockRecordFilePath: cfg.LockRecordFilePath,
		TimestampUTC:       p.clock(),
	}, audit)
	if err != nil {
		audit.Shutdown()
		_ = p.dlmAdapter.Close(handle)
		return fmt.Errorf("init: recovery failed: %w", err)
	}

	watch := newClusterWatch(p.probePath, defaultWatchInterval)
	admin := adminsvc.NewServer(addrConfig(cfg.AdminListenAddr), reg)

	inj := linker.New()
	inj.Register(linker.Component{Name: "", Value: watch})
	inj.Register(linker.Component{Name: "", Value: admin})
	inj.Init(ctx)

	p.cfg = cfg
	p.handle = handle
	p.registry = reg
	p.audit = audit
	p.watch = watch
	p.admin = admin
	p.inj = inj
	p.sessions = session.NewManager(p.dlmAdapter, reg, (*handleSource)(p), session.Config{
		AutoDiskLeases:       cast.Bool(cfg.AutoDiskLeases, true),
		RequireLeaseForDisks: cast.Bool(cfg.RequireLeaseForDisks, false),
	})
	p.initialized = true
	p.restricted = false
	return nil
}

// Deinit closes the lockspace and drains the
// Registry's memory without unlocking in the DLM — outstanding locks are left
// as orphans deliberately, for the next start's Recovery Engine to adopt.
func (p *Plugin) Deinit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	log.Infof("deinitializing, leaving any outstanding locks as orphans for next-start recovery")

	if p.handle != nil && !p.restricted {
		if err := p.dlmAdapter.Close(p.handle); err != nil {
			log.Warnf("deinit: close lockspace failed: %s", err)
		}
	}
	p.handle = nil
	p.registry.Drain()
	if p.inj != nil {
		p.inj.Shutdown()
	}
	if p.audit != nil {
		p.audit.Shutdown()
	}
	p.initialized = false
	p.sessionTable = make(map[SessionHandle]*session.Session)
	return nil
}

// NewSession implements new_session(type=DOMAIN, params).
func (p *Plugin) NewSession(stype SessionType, params session.Params) (SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return 0, fmt.Errorf("new_session: plugin is not initialized: %w", errors.ErrInvalid)
	}
	if stype != TypeDomain {
		return 0, fmt.Errorf("new_session: only domain-type sessions are supported: %w", errors.ErrInvalid)
	}

	s, err := p.sessions.NewSession(params)
	if err != nil {
		return 0, err
	}

	p.nextSessionID++
	h := SessionHandle(p.nextSessionID)
	p.sessionTable[h] = s
	return h, nil
}

// AddResource implements add_resource(Session, type, name, flags).
func (p *Plugin) AddResource(h SessionHandle, rtype session.ResourceType, name string, flags session.AddFlags) error {
	s, mgr, err := p.lookupLocked(h)
	if err != nil {
		return err
	}
	return mgr.AddResource(s, rtype, name, flags)
}

// Acquire implements acquire(Session, flags). The returned fd is always
// -1: this plugin never hands the caller a file descriptor to watch.
func (p *Plugin) Acquire(ctx context.Context, h SessionHandle, flags session.AcquireFlags) (int, error) {
	s, mgr, err := p.lookupLocked(h)
	if err != nil {
		return -1, err
	}
	if err := mgr.Acquire(ctx, s, flags); err != nil {
		return -1, err
	}
	return -1, nil
}

// Release implements release(Session).
func (p *Plugin) Release(ctx context.Context, h SessionHandle) error {
	s, mgr, err := p.lookupLocked(h)
	if err != nil {
		return err
	}
	return mgr.Release(ctx, s)
}

// Inquire implements inquire(Session): always returns nil state, lock state is
// never serialized for migration.
func (p *Plugin) Inquire(h SessionHandle) (any, error) {
	s, mgr, err := p.lookupLocked(h)
	if err != nil {
		return nil, err
	}
	return mgr.Inquire(s)
}

// Free implements free(Session): releases owned memory and forgets the handle.
func (p *Plugin) Free(h SessionHandle) error {
	p.mu.Lock()
	s, ok := p.sessionTable[h]
	mgr := p.sessions
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("free: unknown session handle: %w", errors.ErrInvalid)
	}
	err := mgr.Free(s)
	p.mu.Lock()
	delete(p.sessionTable, h)
	p.mu.Unlock()
	return err
}

// SessionHandles returns the handles of every live (not-yet-freed) session, for
// admin introspection.
func (p *Plugin) SessionHandles() []SessionHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return container.Keys(p.sessionTable)
}

// Registry exposes the Lock Registry for read-only introspection (internal/adminsvc).
func (p *Plugin) Registry() *registry.Registry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry
}

func (p *Plugin) lookupLocked(h SessionHandle) (*session.Session, *session.Manager, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil, nil, fmt.Errorf("plugin is not initialized: %w", errors.ErrInvalid)
	}
	s, ok := p.sessionTable[h]
	if !ok {
		return nil, nil, fmt.Errorf("unknown session handle: %w", errors.ErrInvalid)
	}
	return s, p.sessions, nil
}

// handleSource implements session.HandleSource over *Plugin, giving the Session
// Manager access to the shared lockspace handle and the one-way RESTRICT close
// without exposing Plugin's other state.
type handleSource Plugin

func (h *handleSource) Handle() (dlm.Handle, error) {
	p := (*Plugin)(h)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return nil, session.ErrLockspaceNotOpen
	}
	return p.handle, nil
}

// addrConfig turns a configured "host:port" admin listen address into the
// transport.Config internal/adminsvc needs, defaulting to tcp.
func addrConfig(addr string) transport.Config {
	cfg, err := transport.ScanAddr(addr)
	if err != nil {
		log.Warnf("invalid admin_listen_addr %q, admin surface will fail to bind: %s", addr, err)
	}
	cfg.Network = "tcp"
	return cfg
}

func (h *handleSource) Restrict() error {
	p := (*Plugin)(h)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return nil
	}
	err := p.dlmAdapter.Close(p.handle)
	p.handle = nil
	p.restricted = true
	return err
}
