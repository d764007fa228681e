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

// Package adminsvc is the read-only introspection surface: it never
// acquires, releases, or converts a lock, so it exposes no manual
// lock operations to end users. Cluster health is exposed over
// a real gRPC health-check service (the one thing safe to answer over the wire
// without a bespoke protobuf schema); the held-lock listing (ListLocks) is a
// local, in-process accessor only. cmd/dlmguardctl's list-locks command does not
// use it: it reads the host's Record File directly.
package adminsvc

import (
	"context"
	"fmt"
	"net"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/solarisdb/dlmguard/golibs/logging"
	"github.com/solarisdb/dlmguard/golibs/transport"
	"github.com/solarisdb/dlmguard/internal/registry"
)

var log = logging.NewLogger("adminsvc.Server")

// ServiceName is the health-check service name this node's lockspace liveness
// is reported under, analogous to a gRPC service's fully-qualified name.
const ServiceName = "dlmguard.Lockspace"

// Server is the admin gRPC surface: a standard health.Server reporting this
// node's lockspace liveness, plus ListLocks for local introspection tooling.
type Server struct {
	cfg    transport.Config
	reg    *registry.Registry
	gs     *ggrpc.Server
	health *health.Server
	lis    net.Listener
}

// NewServer wires an admin Server over reg, to be wired as a linker component
// alongside the rest of Plugin's singletons (internal/plugin).
func NewServer(cfg transport.Config, reg *registry.Registry) *Server {
	return &Server{cfg: cfg, reg: reg}
}

// Init implements linker.Initializer: opens the listener, starts the gRPC
// server with only the health service registered, and marks the lockspace
// SERVING. It never blocks — Serve runs on its own goroutine.
func (s *Server) Init(ctx context.Context) error {
	lis, err := transport.NewServerListener(s.cfg)
	if err != nil {
		return fmt.Errorf("adminsvc: could not listen on %s: %w", s.cfg.Addr(), err)
	}
	s.lis = lis

	s.health = health.NewServer()
	s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	s.gs = ggrpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s.gs, s.health)

	log.Infof("admin surface listening on %s", s.cfg.Addr())
	go func() {
		if err := s.gs.Serve(lis); err != nil {
			log.Warnf("admin surface stopped serving: %s", err)
		}
	}()
	return nil
}

// Shutdown implements linker.Shutdowner: marks the lockspace NOT_SERVING, then
// gracefully stops the gRPC server.
func (s *Server) Shutdown() {
	if s.health != nil {
		s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	if s.gs != nil {
		s.gs.GracefulStop()
	}
}

// ListLocks returns a snapshot of every currently held lock, for local
// introspection tooling. It is never exposed as a remote RPC: manual lock
// inspection over the wire is outside this plugin's remit.
func (s *Server) ListLocks() []registry.LockRecord {
	return s.reg.Snapshot()
}
