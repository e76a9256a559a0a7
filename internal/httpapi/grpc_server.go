package httpapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"vcsync.org/internal/obs"
)

// GRPCServer serves grpc.health.v1 backed by the same readiness probe as /readyz.
type GRPCServer struct {
	*health.Server

	readiness readinessChecker
	version   string
}

// NewGRPCServer creates the gRPC health service wrapper.
func NewGRPCServer(r readinessChecker, version string) *GRPCServer {
	return &GRPCServer{
		Server:    health.NewServer(),
		readiness: r,
		version:   version,
	}
}

// Register attaches the health service to s.
func (g *GRPCServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, g)
}

// Check refreshes the serving status from the readiness probe before answering.
func (g *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := g.readiness.Check(ctx); err != nil {
		obs.Logger().Sugar().Warnw("grpc readiness failed", "error", err, "version", g.version)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(st == healthpb.HealthCheckResponse_SERVING)
	g.SetServingStatus("", st)
	g.SetServingStatus(serviceName, st)
	return g.Server.Check(ctx, req)
}
