/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package grpc

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	dephealth "github.com/loqalabs/loqa-voicechat/internal/health"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// ServiceName is the gRPC health service name of the voice chat pipeline
const ServiceName = "loqa.voicechat.Pipeline"

// HealthServer exposes dependency health over the standard gRPC health protocol
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer creates a gRPC server whose health mirrors checker
func NewHealthServer(checker *dephealth.Checker) *HealthServer {
	hs := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}

	healthpb.RegisterHealthServer(hs.server, hs.health)
	reflection.Register(hs.server)

	hs.SetServing(checker.Report().Serving())
	checker.OnChange(func(old, new dephealth.Report) {
		hs.SetServing(new.Serving())
	})

	return hs
}

// SetServing updates both the overall and the pipeline service status
func (hs *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	hs.health.SetServingStatus("", status)
	hs.health.SetServingStatus(ServiceName, status)
}

// Serve accepts connections on lis until Stop is called
func (hs *HealthServer) Serve(lis net.Listener) error {
	if logging.Sugar != nil {
		logging.Sugar.Infow("🛰️  gRPC health server listening", "addr", lis.Addr().String())
	}

	if err := hs.server.Serve(lis); err != nil {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}

// Stop marks the service as shutting down and stops the server gracefully
func (hs *HealthServer) Stop() {
	hs.health.Shutdown()
	hs.server.GracefulStop()
}
