package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall "".
const ServiceName = "botsentry.Detection"

// Readiness reports whether the detector can answer from a loaded catalog.
type Readiness interface {
	Ready() bool
}

// HealthServer serves grpc.health.v1 and flips to SERVING once ready
// reports true. It implements suture.Service.
type HealthServer struct {
	addr     string
	ready    Readiness
	interval time.Duration
	health   *health.Server
	logger   *zap.Logger
}

// NewHealthServer creates a health server for addr (e.g. ":9090").
func NewHealthServer(addr string, ready Readiness, logger *zap.Logger) *HealthServer {
	return &HealthServer{
		addr:     addr,
		ready:    ready,
		interval: time.Second,
		health:   health.NewServer(),
		logger:   logger,
	}
}

// Serve listens on the configured address until ctx is cancelled.
func (s *HealthServer) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, lis)
}

func (s *HealthServer) String() string { return "grpc-health" }

func (s *HealthServer) serve(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
		errCh <- grpcServer.Serve(lis)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	serving := false
	for {
		if !serving && s.ready.Ready() {
			serving = true
			s.setStatus(healthpb.HealthCheckResponse_SERVING)
			s.logger.Info("catalog loaded, reporting SERVING")
		}

		select {
		case <-ctx.Done():
			// Shutdown flips every service to NOT_SERVING before connections drain.
			s.health.Shutdown()
			grpcServer.GracefulStop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return err
		case <-ticker.C:
		}
	}
}

func (s *HealthServer) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}
