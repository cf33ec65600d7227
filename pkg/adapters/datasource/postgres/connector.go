package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	"github.com/ekaya-inc/ekaya-gateway/pkg/retry"
)

// Connector owns the process-wide pgx pool for the pooled backend.
type Connector struct {
	pool     *pgxpool.Pool
	maxConns int
	logger   *zap.Logger
}

// NewConnector creates the pool and establishes its initial connections.
// The backend being down at startup is not fatal: the gateway comes up
// degraded and the pool connects lazily once the server is reachable.
func NewConnector(ctx context.Context, cfg *Config, logger *zap.Logger) (*Connector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("postgres")

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = poolCfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	c := &Connector{pool: pool, maxConns: int(poolCfg.MaxConns), logger: logger}

	if err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return pool.Ping(ctx)
	}); err != nil {
		logger.Warn("PostgreSQL not reachable at startup; continuing degraded",
			zap.String("host", poolCfg.ConnConfig.Host),
			zap.String("error", logging.SanitizeError(err)),
		)
	} else {
		logger.Info("PostgreSQL pool ready",
			zap.String("host", poolCfg.ConnConfig.Host),
			zap.String("database", poolCfg.ConnConfig.Database),
			zap.Int32("min_conns", poolCfg.MinConns),
			zap.Int32("max_conns", poolCfg.MaxConns),
		)
	}

	return c, nil
}

func (c *Connector) Backend() models.Backend { return models.BackendPooled }

func (c *Connector) Bounded() bool { return true }

func (c *Connector) MaxConns() int { return c.maxConns }

// Connect checks a connection out of the pool.
func (c *Connector) Connect(ctx context.Context) (datasource.PhysicalConn, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire postgres connection: %w", err)
	}
	return &pooledConn{conn: conn}, nil
}

func (c *Connector) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close drains the pool. It blocks until every checked-out connection is returned.
func (c *Connector) Close() error {
	c.pool.Close()
	return nil
}

// PoolStats reports pgxpool's counters for /ping.
func (c *Connector) PoolStats() datasource.PoolStats {
	st := c.pool.Stat()
	return datasource.PoolStats{
		TotalConns:        st.TotalConns(),
		IdleConns:         st.IdleConns(),
		AcquiredConns:     st.AcquiredConns(),
		AcquireCount:      st.AcquireCount(),
		EmptyAcquireCount: st.EmptyAcquireCount(),
	}
}

type pooledConn struct {
	conn *pgxpool.Conn
	done bool
}

func (p *pooledConn) Query(ctx context.Context, query string, args ...any) (datasource.Rows, error) {
	rows, err := p.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgRows{rows: rows, typeMap: p.conn.Conn().TypeMap()}, nil
}

func (p *pooledConn) Ping(ctx context.Context) error {
	return p.conn.Ping(ctx)
}

func (p *pooledConn) Release() {
	if p.done {
		return
	}
	p.done = true
	p.conn.Release()
}

// Discard takes the connection out of the pool and closes it, so whatever
// statement it was running dies with it.
func (p *pooledConn) Discard() {
	if p.done {
		return
	}
	p.done = true
	raw := p.conn.Hijack()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = raw.Close(ctx)
}

var (
	_ datasource.Connector    = (*Connector)(nil)
	_ datasource.PhysicalConn = (*pooledConn)(nil)
)
