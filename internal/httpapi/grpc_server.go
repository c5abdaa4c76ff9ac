package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tallybook.io/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthMonitor mirrors the readiness probe onto the standard gRPC health
// service, both for the whole server ("") and for serviceName.
type HealthMonitor struct {
	health    *health.Server
	readiness readinessChecker
	interval  time.Duration
}

// NewGRPCServer returns a gRPC server exposing grpc.health.v1 and the monitor
// that keeps it current. Statuses start as NOT_SERVING until the first Refresh.
func NewGRPCServer(r readinessChecker, interval time.Duration, opts ...grpc.ServerOption) (*grpc.Server, *HealthMonitor) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, &HealthMonitor{health: hs, readiness: r, interval: interval}
}

// Refresh evaluates readiness once and publishes the result.
func (m *HealthMonitor) Refresh(ctx context.Context) error {
	status := healthpb.HealthCheckResponse_SERVING
	err := m.readiness.Check(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(err == nil)
	m.health.SetServingStatus("", status)
	m.health.SetServingStatus(serviceName, status)
	return err
}

// Run refreshes until ctx is done, then marks the server as shutting down.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			obs.FromContext(ctx).WithError(err).Warn("readiness check failed")
		}
		select {
		case <-ctx.Done():
			m.health.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
