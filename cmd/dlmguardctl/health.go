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
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	dlmcontext "github.com/solarisdb/dlmguard/golibs/context"
	"github.com/solarisdb/dlmguard/golibs/errors"
	"github.com/solarisdb/dlmguard/internal/adminsvc"
)

var healthWait time.Duration

const healthRetryInterval = 2 * time.Second

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the admin health-check service of a running dlmguard instance",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().DurationVar(&healthWait, "wait", 0,
		"keep retrying for up to this long until the service reports SERVING")
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	deadline := time.Now().Add(healthWait)

	for {
		st, err := checkOnce(ctx)
		if err == nil && st == grpc_health_v1.HealthCheckResponse_SERVING {
			fmt.Printf("%s: %s\n", adminsvc.ServiceName, st)
			return nil
		}

		if healthWait == 0 || time.Now().After(deadline) || ctx.Err() != nil {
			if err != nil {
				if errors.GRPCStatusCode(err) == codes.Unavailable {
					return fmt.Errorf("could not reach %s, is the plugin running? %s", adminAddr, errors.FromGRPCErrorMsg(err))
				}
				return fmt.Errorf("health check failed: %s", errors.FromGRPCErrorMsg(err))
			}
			return fmt.Errorf("lockspace is not serving, status=%s", st)
		}
		dlmcontext.Sleep(ctx, healthRetryInterval)
	}
}

func checkOnce(ctx context.Context) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.DialContext(ctx, adminAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	defer func() { _ = conn.Close() }()

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: adminsvc.ServiceName})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
