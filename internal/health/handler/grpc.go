package handler

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the name reported by the health service besides the
// server-wide "" entry.
const ServiceName = "transcendence.backend"

const pingTimeout = 2 * time.Second

// Pinger checks database reachability (e.g. *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server implements grpc.health.v1.Health for readiness probes. It reports
// SERVING only while the database answers a ping.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger Pinger
}

// NewServer returns a health server. A nil pinger always reports SERVING.
func NewServer(pinger Pinger) *Server {
	return &Server{pinger: pinger}
}

// Check reports the serving status of the server or of ServiceName.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	return &healthpb.HealthCheckResponse{Status: s.status(ctx)}, nil
}

// Ready reports whether the dependencies answer.
func (s *Server) Ready(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.pinger.Ping(ctx)
}

func (s *Server) status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if err := s.Ready(ctx); err != nil {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
