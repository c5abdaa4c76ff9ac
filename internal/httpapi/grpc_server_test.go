package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		srv.Stop()
		_ = conn.Close()
		_ = listener.Close()
	})
	return conn
}

type staticReadiness struct{ err error }

func (s staticReadiness) Check(context.Context) error { return s.err }

func healthStatus(t *testing.T, conn *grpc.ClientConn, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthMonitor_Serving(t *testing.T) {
	srv, monitor := NewGRPCServer(staticReadiness{}, time.Minute)
	conn := startBufGRPC(t, srv)

	if got := healthStatus(t, conn, serviceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status before refresh = %v", got)
	}
	if err := monitor.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, svc := range []string{"", serviceName} {
		if got := healthStatus(t, conn, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("status %q = %v, want SERVING", svc, got)
		}
	}
}

func TestHealthMonitor_NotServing(t *testing.T) {
	srv, monitor := NewGRPCServer(staticReadiness{err: errors.New("db down")}, time.Minute)
	conn := startBufGRPC(t, srv)

	if err := monitor.Refresh(context.Background()); err == nil {
		t.Fatal("expected readiness error")
	}
	if got := healthStatus(t, conn, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", got)
	}
}

func TestHealthMonitor_RunStopsWithContext(t *testing.T) {
	_, monitor := NewGRPCServer(staticReadiness{}, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
