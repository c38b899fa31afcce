package server

import (
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "transcendence/backend/internal/health/handler"
)

// GRPCDeps holds the services exposed on the gRPC listener.
type GRPCDeps struct {
	// Health answers grpc.health.v1 probes. If nil, no service is registered.
	Health *healthhandler.Server
}

// RegisterServices registers the gRPC services with s.
//
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps GRPCDeps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}
