package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/fidde/agripredict/internal/artifacts"
	"github.com/fidde/agripredict/internal/artifacts/artifactstest"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := New("bufnet", quietLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
		if err := <-errCh; err != nil {
			t.Errorf("Serve returned: %v", err)
		}
	})

	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	return resp.GetStatus()
}

func TestHealthFollowsReadiness(t *testing.T) {
	srv, client := startServer(t)

	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected overall SERVING, got %v", got)
	}
	if got := check(t, client, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected predictor NOT_SERVING before any bundle, got %v", got)
	}

	srv.SetReady(true)
	if got := check(t, client, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected predictor SERVING, got %v", got)
	}

	srv.SetReady(false)
	if got := check(t, client, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected predictor NOT_SERVING, got %v", got)
	}
}

func TestObserveBundleViaHolder(t *testing.T) {
	srv, client := startServer(t)

	dir := t.TempDir()
	opts := artifactstest.DefaultOptions(4)
	opts.Skip = []string{artifacts.NameModalPrice}
	paths := artifactstest.Write(t, filepath.Join(dir, "models"), opts)

	holder := artifacts.NewHolder(paths, nil, quietLogger())
	holder.OnSwap(srv.ObserveBundle)

	if got := check(t, client, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING with missing artifact, got %v", got)
	}

	artifactstest.Write(t, filepath.Join(dir, "models"), artifactstest.DefaultOptions(4))
	holder.Reload()

	if got := check(t, client, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING after reload, got %v", got)
	}
}
