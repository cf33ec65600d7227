package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// queryHandler answers one statement sent to a stub connection.
type queryHandler func(ctx context.Context, query string, args []any) (datasource.Rows, error)

type recordedQuery struct {
	text string
	args []any
}

// stubConnector is an in-memory backend whose statements are answered by handler.
type stubConnector struct {
	backend models.Backend
	bounded bool
	max     int
	pingErr error
	handler queryHandler

	mu      sync.Mutex
	queries []recordedQuery

	connects  atomic.Int32
	released  atomic.Int32
	discarded atomic.Int32
}

func (c *stubConnector) Backend() models.Backend { return c.backend }
func (c *stubConnector) Bounded() bool           { return c.bounded }
func (c *stubConnector) MaxConns() int           { return c.max }
func (c *stubConnector) Close() error            { return nil }

func (c *stubConnector) Ping(context.Context) error { return c.pingErr }

func (c *stubConnector) Connect(context.Context) (datasource.PhysicalConn, error) {
	c.connects.Add(1)
	return &stubConn{owner: c}, nil
}

func (c *stubConnector) recorded() []recordedQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedQuery(nil), c.queries...)
}

type stubConn struct {
	owner *stubConnector
}

func (c *stubConn) Query(ctx context.Context, query string, args ...any) (datasource.Rows, error) {
	c.owner.mu.Lock()
	c.owner.queries = append(c.owner.queries, recordedQuery{text: query, args: args})
	c.owner.mu.Unlock()
	return c.owner.handler(ctx, query, args)
}

func (c *stubConn) Ping(context.Context) error { return nil }
func (c *stubConn) Release()                   { c.owner.released.Add(1) }
func (c *stubConn) Discard()                   { c.owner.discarded.Add(1) }

// sliceRows serves fixed rows through the datasource.Rows interface.
type sliceRows struct {
	cols []datasource.ColumnMeta
	data [][]any
	pos  int
}

func newRows(cols []datasource.ColumnMeta, data ...[]any) *sliceRows {
	return &sliceRows{cols: cols, data: data}
}

func (r *sliceRows) Columns() []datasource.ColumnMeta { return r.cols }
func (r *sliceRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}
func (r *sliceRows) Values() ([]any, error) { return r.data[r.pos-1], nil }
func (r *sliceRows) Err() error             { return nil }
func (r *sliceRows) Close() error           { return nil }

func countRows(n int64) *sliceRows {
	return newRows([]datasource.ColumnMeta{{Name: "count", NativeType: "int8"}}, []any{n})
}

// parcelRows returns n parcel rows starting at id first.
func parcelRows(first, n int) *sliceRows {
	cols := []datasource.ColumnMeta{
		{Name: "id", NativeType: "int4"},
		{Name: "city", NativeType: "text"},
	}
	data := make([][]any, n)
	for i := range data {
		data[i] = []any{int32(first + i), "Seattle"}
	}
	return newRows(cols, data...)
}

// blockUntilDone simulates a statement that outlives its context.
func blockUntilDone(ctx context.Context) (datasource.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newStubPool(handler queryHandler) *stubConnector {
	return &stubConnector{backend: models.BackendPooled, bounded: true, max: 2, handler: handler}
}

// newManager registers connectors with a short acquire timeout.
func newManager(t *testing.T, connectors ...datasource.Connector) *datasource.ConnectionManager {
	t.Helper()
	mgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{AcquireTimeout: 200 * time.Millisecond}, zaptest.NewLogger(t), nil)
	for _, c := range connectors {
		mgr.Register(c)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func newRegistry() *datasource.Registry {
	return datasource.NewRegistry(postgres.NewDialect(), mssql.NewDialect())
}

func testQueryConfig() QueryServiceConfig {
	return QueryServiceConfig{
		MaxPageSize:      50,
		DefaultPageSize:  10,
		StatementTimeout: time.Second,
		CountTimeout:     200 * time.Millisecond,
		ExactCounts:      true,
	}
}
