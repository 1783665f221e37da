// Package grpcserver exposes the standard gRPC health service, reporting the
// predictor as SERVING only while every artifact is loaded.
package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/fidde/agripredict/internal/artifacts"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check service name for the predictor.
const ServiceName = "agripredict.v1.Predictor"

// Server is the gRPC health endpoint.
type Server struct {
	addr   string
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// New creates a server. The predictor starts NOT_SERVING until the first
// bundle is observed.
func New(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:   addr,
		server: grpc.NewServer(),
		health: health.NewServer(),
		logger: logger,
	}

	healthpb.RegisterHealthServer(s.server, s.health)

	// Register reflection service for debugging with grpcurl
	reflection.Register(s.server)

	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetReady updates the predictor's serving status. The overall ("")
// status stays SERVING while the process is up.
func (s *Server) SetReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// ObserveBundle is suitable for artifacts.Holder.OnSwap.
func (s *Server) ObserveBundle(b *artifacts.Bundle) {
	s.SetReady(b.Ready())
}

// Start listens on the configured address and serves until shutdown.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// Shutdown gracefully shuts down the gRPC server, forcing a stop if ctx
// expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		<-done
		return ctx.Err()
	}
}
