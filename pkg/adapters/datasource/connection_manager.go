package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/metrics"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

const (
	DefaultAcquireTimeout = 5 * time.Second
	DefaultPoolMaxConns   = 10
	DefaultPoolMinConns   = 1
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	// AcquireTimeout bounds how long Acquire waits for a pooled slot and a
	// healthy connection before failing with PoolExhausted.
	AcquireTimeout time.Duration
}

// ConnectionManager hands out connection leases for every configured
// backend. Bounded (pooled) backends are gated by a semaphore sized to the
// pool, so concurrent leases never exceed the pool and waiters give up
// after AcquireTimeout. Per-call backends open and close a connection per
// lease with no gateway-side limit. Acquisition is never retried.
type ConnectionManager struct {
	mu             sync.RWMutex
	backends       map[models.Backend]*managedBackend
	acquireTimeout time.Duration
	stopped        bool
	logger         *zap.Logger
	metrics        *metrics.Recorder
}

type managedBackend struct {
	connector Connector
	slots     chan struct{} // nil for per-call connectors

	inUse     atomic.Int64
	acquired  atomic.Int64
	exhausted atomic.Int64
	discarded atomic.Int64
}

// NewConnectionManager creates a manager with no backends registered.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger, rec *metrics.Recorder) *ConnectionManager {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionManager{
		backends:       make(map[models.Backend]*managedBackend),
		acquireTimeout: cfg.AcquireTimeout,
		logger:         logger.Named("connections"),
		metrics:        rec,
	}
}

// Register adds a connector. Called once per backend at startup; a backend
// without a connector is unavailable and every Acquire for it fails fast.
func (m *ConnectionManager) Register(c Connector) {
	mb := &managedBackend{connector: c}
	if c.Bounded() {
		size := c.MaxConns()
		if size <= 0 {
			size = DefaultPoolMaxConns
		}
		mb.slots = make(chan struct{}, size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends[c.Backend()] = mb

	m.logger.Info("registered backend",
		zap.String("backend", c.Backend().String()),
		zap.Bool("bounded", c.Bounded()),
		zap.Int("max_conns", cap(mb.slots)),
	)
}

// Configured reports whether a connector is registered for backend.
func (m *ConnectionManager) Configured(backend models.Backend) bool {
	_, ok := m.lookup(backend)
	return ok
}

func (m *ConnectionManager) lookup(backend models.Backend) (*managedBackend, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return nil, false
	}
	mb, ok := m.backends[backend]
	return mb, ok
}

// Acquire leases a healthy connection for backend.
//
// Fails with BackendUnavailable without any I/O when the backend has no
// connector, with PoolExhausted when a bounded pool has no free slot or
// healthy connection within AcquireTimeout, and with BackendUnavailable
// when the backend cannot be reached.
func (m *ConnectionManager) Acquire(ctx context.Context, backend models.Backend) (*Lease, error) {
	mb, ok := m.lookup(backend)
	if !ok {
		return nil, apperrors.ErrBackendNotConfigured
	}

	start := time.Now()
	acquireCtx, cancel := context.WithTimeout(ctx, m.acquireTimeout)
	defer cancel()

	if mb.slots != nil {
		select {
		case mb.slots <- struct{}{}:
		case <-acquireCtx.Done():
			mb.exhausted.Add(1)
			m.metrics.ObserveAcquire(backend.String(), "exhausted", time.Since(start))
			m.logger.Warn("pool exhausted",
				zap.String("backend", backend.String()),
				zap.Int("max_conns", cap(mb.slots)),
				zap.Duration("waited", time.Since(start)),
			)
			return nil, apperrors.WithCause(apperrors.ErrPoolExhausted, acquireCtx.Err())
		}
	}

	conn, err := m.connect(acquireCtx, mb)
	if err != nil {
		if mb.slots != nil {
			<-mb.slots
		}
		m.metrics.ObserveAcquire(backend.String(), string(apperrors.KindOf(err)), time.Since(start))
		return nil, err
	}

	mb.inUse.Add(1)
	mb.acquired.Add(1)
	m.metrics.ObserveAcquire(backend.String(), metrics.OutcomeSuccess, time.Since(start))
	m.metrics.LeaseOpened(backend.String())

	return newLease(uuid.NewString(), backend, conn, func(l *Lease, discarded bool) {
		m.leaseDone(mb, l, discarded)
	}), nil
}

// connect obtains a connection and pings it before handing it out. On a
// bounded pool a dead connection is destroyed and replaced, up to the pool
// size, within the acquire deadline. Per-call connections are fresh, so a
// failed ping means the backend itself is unhealthy.
func (m *ConnectionManager) connect(ctx context.Context, mb *managedBackend) (PhysicalConn, error) {
	backend := mb.connector.Backend()
	replacements := 0
	if mb.slots != nil {
		replacements = cap(mb.slots)
	}

	for attempt := 0; ; attempt++ {
		conn, err := mb.connector.Connect(ctx)
		if err != nil {
			return nil, m.connectError(ctx, mb, err)
		}

		pingErr := conn.Ping(ctx)
		if pingErr == nil {
			return conn, nil
		}

		conn.Discard()
		mb.discarded.Add(1)
		m.metrics.ConnectionDiscarded(backend.String())
		m.logger.Warn("discarding dead connection",
			zap.String("backend", backend.String()),
			zap.Int("attempt", attempt+1),
			zap.String("error", logging.SanitizeError(pingErr)),
		)

		if ctx.Err() != nil || attempt >= replacements {
			return nil, m.connectError(ctx, mb, pingErr)
		}
	}
}

func (m *ConnectionManager) connectError(ctx context.Context, mb *managedBackend, err error) error {
	backend := mb.connector.Backend()
	if mb.slots != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		mb.exhausted.Add(1)
		m.logger.Warn("timed out waiting for a healthy pooled connection",
			zap.String("backend", backend.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return apperrors.WithCause(apperrors.ErrPoolExhausted, err)
	}

	m.logger.Error("backend unreachable",
		zap.String("backend", backend.String()),
		zap.String("error", logging.SanitizeError(err)),
	)
	return apperrors.WithCause(apperrors.ErrBackendUnreachable, err)
}

func (m *ConnectionManager) leaseDone(mb *managedBackend, l *Lease, discarded bool) {
	mb.inUse.Add(-1)
	if discarded {
		mb.discarded.Add(1)
	}
	if mb.slots != nil {
		<-mb.slots
	}
	m.metrics.LeaseClosed(l.Backend().String(), discarded)
	m.logger.Debug("lease ended",
		zap.String("backend", l.Backend().String()),
		zap.String("lease_id", l.ID()),
		zap.Bool("discarded", discarded),
		zap.Duration("held", l.Held()),
	)
}

// Ping probes backend liveness. An unconfigured backend fails without I/O.
func (m *ConnectionManager) Ping(ctx context.Context, backend models.Backend) error {
	mb, ok := m.lookup(backend)
	if !ok {
		return apperrors.ErrBackendNotConfigured
	}
	if err := mb.connector.Ping(ctx); err != nil {
		return apperrors.WithCause(apperrors.ErrBackendUnreachable, err)
	}
	return nil
}

// Close drains and closes every connector. Safe to call more than once;
// afterwards every Acquire fails with BackendUnavailable.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true

	var errs []error
	for backend, mb := range m.backends {
		if err := mb.connector.Close(); err != nil {
			m.logger.Error("failed to close connector",
				zap.String("backend", backend.String()),
				zap.String("error", logging.SanitizeError(err)),
			)
			errs = append(errs, err)
		}
	}
	m.backends = make(map[models.Backend]*managedBackend)
	return errors.Join(errs...)
}

// BackendStats is a point-in-time view of one backend's leases.
type BackendStats struct {
	Backend   models.Backend `json:"backend"`
	Bounded   bool           `json:"bounded"`
	MaxConns  int            `json:"max_conns"`
	InUse     int64          `json:"in_use"`
	Acquired  int64          `json:"acquired"`
	Exhausted int64          `json:"exhausted"`
	Discarded int64          `json:"discarded"`
	Pool      *PoolStats     `json:"pool,omitempty"`
}

// ConnectionStats holds statistics about managed connections
type ConnectionStats struct {
	Backends []BackendStats `json:"backends"`
}

// GetStats returns per-backend lease statistics in reporting order.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats ConnectionStats
	for _, backend := range models.AllBackends {
		mb, ok := m.backends[backend]
		if !ok {
			continue
		}
		bs := BackendStats{
			Backend:   backend,
			Bounded:   mb.slots != nil,
			MaxConns:  cap(mb.slots),
			InUse:     mb.inUse.Load(),
			Acquired:  mb.acquired.Load(),
			Exhausted: mb.exhausted.Load(),
			Discarded: mb.discarded.Load(),
		}
		if r, ok := mb.connector.(PoolStatsReporter); ok {
			ps := r.PoolStats()
			bs.Pool = &ps
		}
		stats.Backends = append(stats.Backends, bs)
	}
	return stats
}
