// Package grpcserver exposes the standard grpc.health.v1 service backed by
// the process's dependency checks.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/health"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceName is the named health entry clients may query besides "".
	ServiceName = "boxoffice.Booking"

	defaultRefreshInterval = 10 * time.Second
	defaultProbeTimeout    = 2 * time.Second
)

// HealthReporter keeps the gRPC health status in line with dependency checks.
type HealthReporter struct {
	server   *grpchealth.Server
	checks   []health.Check
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHealthReporter wires a reporter. Non-positive durations use defaults.
func NewHealthReporter(checks []health.Check, interval time.Duration, timeout time.Duration, logger *zap.Logger) *HealthReporter {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := grpchealth.NewServer()
	server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	server.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{
		server:   server,
		checks:   checks,
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("grpc_health"),
	}
}

// Refresh runs every check once and publishes the result.
func (reporter *HealthReporter) Refresh(ctx context.Context) health.Result {
	result := health.Run(ctx, reporter.checks, reporter.timeout)
	status := healthpb.HealthCheckResponse_SERVING
	if !result.Healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		reporter.logger.Warn("dependency check failed", zap.Any("components", result.Components))
	}
	reporter.server.SetServingStatus("", status)
	reporter.server.SetServingStatus(ServiceName, status)
	return result
}

// Run refreshes on every interval until ctx is cancelled, then marks the
// server as shutting down.
func (reporter *HealthReporter) Run(ctx context.Context) {
	reporter.Refresh(ctx)
	ticker := time.NewTicker(reporter.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			reporter.server.Shutdown()
			return
		case <-ticker.C:
			reporter.Refresh(ctx)
		}
	}
}

// NewServer builds a gRPC server with the health service registered.
func NewServer(reporter *HealthReporter, options ...grpc.ServerOption) *grpc.Server {
	server := grpc.NewServer(options...)
	healthpb.RegisterHealthServer(server, reporter.server)
	return server
}

// Serve runs server on listener until ctx is cancelled.
func Serve(ctx context.Context, server *grpc.Server, listener net.Listener, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", listener.Addr().String()))
		errCh <- server.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		logger.Info("gRPC shutdown requested")
		server.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}
