package mssql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// Connector opens one physical SQL Server connection per lease and closes
// it on release. database/sql keeps no idle connections, so nothing is
// pooled between calls.
type Connector struct {
	db     *sql.DB
	cfg    *Config
	logger *zap.Logger
}

// NewConnector prepares the driver. No network I/O happens until the first Connect.
func NewConnector(cfg *Config, logger *zap.Logger) (*Connector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mssql")

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	db, err := sql.Open("sqlserver", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open SQL Server driver: %w", err)
	}
	db.SetMaxIdleConns(0)

	logger.Info("SQL Server backend configured",
		zap.String("dsn", logging.SanitizeConnectionString(cfg.DSN())),
		zap.Duration("connect_timeout", cfg.ConnectTimeout),
	)

	return &Connector{db: db, cfg: cfg, logger: logger}, nil
}

func (c *Connector) Backend() models.Backend { return models.BackendODBC }

func (c *Connector) Bounded() bool { return false }

func (c *Connector) MaxConns() int { return 0 }

// Connect opens a fresh connection bounded by the connect timeout.
func (c *Connector) Connect(ctx context.Context) (datasource.PhysicalConn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to SQL Server: %w", err)
	}
	return &callConn{conn: conn}, nil
}

// Ping opens and closes a connection.
func (c *Connector) Ping(ctx context.Context) error {
	conn, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Ping(ctx)
}

func (c *Connector) Close() error {
	return c.db.Close()
}

type callConn struct {
	conn *sql.Conn
	done bool
}

func (c *callConn) Query(ctx context.Context, query string, args ...any) (datasource.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, namedArgs(args)...)
	if err != nil {
		return nil, err
	}
	return newSQLRows(rows)
}

func (c *callConn) Ping(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

func (c *callConn) Release() {
	if c.done {
		return
	}
	c.done = true
	_ = c.conn.Close()
}

// Discard marks the driver connection bad so database/sql closes it
// instead of handing it back.
func (c *callConn) Discard() {
	if c.done {
		return
	}
	c.done = true
	_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = c.conn.Close()
}

// namedArgs binds positional values to @p1, @p2, ... as rendered by the dialect.
func namedArgs(args []any) []any {
	named := make([]any, len(args))
	for i, a := range args {
		if _, ok := a.(sql.NamedArg); ok {
			named[i] = a
			continue
		}
		named[i] = sql.Named(fmt.Sprintf("p%d", i+1), a)
	}
	return named
}

var (
	_ datasource.Connector    = (*Connector)(nil)
	_ datasource.PhysicalConn = (*callConn)(nil)
)
