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
package adminsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/solarisdb/dlmguard/golibs/transport"
	"github.com/solarisdb/dlmguard/internal/dlm"
	"github.com/solarisdb/dlmguard/internal/registry"
)

func TestServer_HealthCheckServesOverGRPC(t *testing.T) {
	reg := registry.New(nil)
	_, err := reg.Insert("disk0", dlm.ModeExclusive, dlm.LockID(1), 100)
	require.Nil(t, err)

	s := NewServer(transport.Config{Network: "tcp", Address: "127.0.0.1", Port: 0}, reg)
	require.Nil(t, s.Init(context.Background()))
	defer s.Shutdown()

	assert.Len(t, s.ListLocks(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, s.lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithBlock())
	require.Nil(t, err)
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.Nil(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}
