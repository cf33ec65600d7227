package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// DefaultHealthTimeout bounds each backend probe.
const DefaultHealthTimeout = 3 * time.Second

// HealthService probes backend liveness.
type HealthService interface {
	Check(ctx context.Context) *models.HealthReport
}

type healthService struct {
	connections ConnectionProvider
	timeout     time.Duration
	logger      *zap.Logger
}

// NewHealthService creates a health service. A zero timeout takes DefaultHealthTimeout.
func NewHealthService(connections ConnectionProvider, timeout time.Duration, logger *zap.Logger) HealthService {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &healthService{
		connections: connections,
		timeout:     timeout,
		logger:      logger.Named("health"),
	}
}

// Check probes every backend concurrently. Status is ok when the pooled
// backend answers; the odbc backend is optional and only reported.
func (s *healthService) Check(ctx context.Context) *models.HealthReport {
	var (
		wg     sync.WaitGroup
		pooled bool
		odbc   bool
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		pooled = s.probe(ctx, models.BackendPooled)
	}()
	go func() {
		defer wg.Done()
		odbc = s.probe(ctx, models.BackendODBC)
	}()
	wg.Wait()

	report := &models.HealthReport{
		Status:    models.HealthStatusOK,
		Message:   "All configured databases are reachable",
		Timestamp: time.Now().UTC(),
		DatabaseStatus: models.DatabaseStatus{
			Pooled: pooled,
			ODBC:   odbc,
		},
	}

	switch {
	case !pooled:
		report.Status = models.HealthStatusDegraded
		report.Message = "Pooled database is unreachable"
	case !odbc && s.connections.Configured(models.BackendODBC):
		report.Message = "ODBC database is unreachable"
	case !odbc:
		report.Message = "ODBC database is not configured"
	}
	return report
}

func (s *healthService) probe(ctx context.Context, backend models.Backend) bool {
	if !s.connections.Configured(backend) {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.connections.Ping(probeCtx, backend); err != nil {
		s.logger.Warn("health probe failed",
			zap.String("backend", backend.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return false
	}
	return true
}
