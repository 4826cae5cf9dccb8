// Package server exposes the internal gRPC endpoint: the standard health
// service, driven by the readiness probe, and reflection for grpcurl.
package server

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/grpc/interceptors"
)

// ServiceName is the health service name clients may query besides ""
const ServiceName = "evrental.Rental"

// ReadinessFunc reports whether the process can serve traffic
type ReadinessFunc func(ctx context.Context) bool

type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	ready  ReadinessFunc
	log    *zap.Logger
}

func NewGRPCServer(ready ReadinessFunc, log *zap.Logger) *GRPCServer {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.UnaryMetricsInterceptor(),
			interceptors.UnaryLoggingInterceptor(log),
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	// Enable reflection for debugging (e.g. grpcurl)
	reflection.Register(s)

	g := &GRPCServer{server: s, health: hs, ready: ready, log: log}
	g.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return g
}

// Refresh probes readiness once and publishes the result
func (s *GRPCServer) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.ready(ctx) {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.setStatus(status)
}

// WatchReadiness refreshes the health status every interval until ctx ends
func (s *GRPCServer) WatchReadiness(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *GRPCServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks the server not serving and drains in-flight calls
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
