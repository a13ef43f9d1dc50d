package handler

import (
	"context"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"bizlens/backend/internal/health"
	"bizlens/backend/internal/platform/logger"
)

// RefreshInterval is how often the gRPC serving status is recomputed.
const RefreshInterval = 15 * time.Second

// ServiceName is the named service reported next to the overall ("") status.
const ServiceName = "bizlens.api"

// Checker produces a readiness report; *health.Checker implements it.
type Checker interface {
	Check(ctx context.Context) health.Report
}

// Server serves grpc.health.v1.Health with a status that follows the readiness checks.
type Server struct {
	*grpchealth.Server
	checker  Checker
	interval time.Duration
	lggr     logger.Logger
	last     healthpb.HealthCheckResponse_ServingStatus
}

// NewServer returns a health server that reports NOT_SERVING until the first Refresh.
func NewServer(checker Checker, lggr logger.Logger) *Server {
	s := &Server{
		Server:   grpchealth.NewServer(),
		checker:  checker,
		interval: RefreshInterval,
		lggr:     lggr,
		last:     healthpb.HealthCheckResponse_NOT_SERVING,
	}
	s.SetServingStatus("", s.last)
	s.SetServingStatus(ServiceName, s.last)
	return s
}

// Refresh runs the checks once and publishes the result.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil {
		if report := s.checker.Check(ctx); !report.Healthy() {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if st != s.last {
		s.lggr.Infow("serving status changed", "from", s.last.String(), "to", st.String())
		s.last = st
	}
	s.SetServingStatus("", st)
	s.SetServingStatus(ServiceName, st)
	return st
}

// Run refreshes every RefreshInterval until ctx is done, then marks everything NOT_SERVING.
func (s *Server) Run(ctx context.Context) {
	s.Refresh(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}
