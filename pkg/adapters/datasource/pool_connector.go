package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// PhysicalConn is a connection handed out by a Connector.
type PhysicalConn interface {
	Conn

	// Release gives the connection back: pooled connectors return it to
	// their pool, per-call connectors close it.
	Release()

	// Discard destroys the connection. It is never reused.
	Discard()
}

// Connector opens physical connections to one backend.
type Connector interface {
	Backend() models.Backend

	// Bounded reports whether the connector keeps a fixed-size pool. The
	// ConnectionManager gates bounded connectors with a semaphore; per-call
	// connectors are not limited at the gateway.
	Bounded() bool

	// MaxConns is the pool capacity for bounded connectors.
	MaxConns() int

	Connect(ctx context.Context) (PhysicalConn, error)

	// Ping is the cheap liveness probe used by health checks.
	Ping(ctx context.Context) error

	Close() error
}

// PoolStats are driver-side pool counters, reported next to the gateway's
// own lease counters.
type PoolStats struct {
	TotalConns        int32 `json:"total_conns"`
	IdleConns         int32 `json:"idle_conns"`
	AcquiredConns     int32 `json:"acquired_conns"`
	AcquireCount      int64 `json:"acquire_count"`
	EmptyAcquireCount int64 `json:"empty_acquire_count"`
}

// PoolStatsReporter is implemented by connectors that keep a driver pool.
type PoolStatsReporter interface {
	PoolStats() PoolStats
}
