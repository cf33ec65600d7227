package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

type fakeRows struct {
	cols   []ColumnMeta
	data   [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Columns() []ColumnMeta { return r.cols }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.pos-1], nil }
func (r *fakeRows) Err() error             { return r.err }

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

type fakeConn struct {
	id        int
	pingErr   error
	rows      *fakeRows
	released  atomic.Int32
	discarded atomic.Int32
}

func (c *fakeConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if c.rows == nil {
		return &fakeRows{}, nil
	}
	return c.rows, nil
}

func (c *fakeConn) Ping(ctx context.Context) error { return c.pingErr }
func (c *fakeConn) Release()                       { c.released.Add(1) }
func (c *fakeConn) Discard()                       { c.discarded.Add(1) }

// fakeConnector hands out conns from a script, then healthy conns.
type fakeConnector struct {
	backend    models.Backend
	bounded    bool
	maxConns   int
	connectErr error
	pingErr    error

	mu       sync.Mutex
	script   []*fakeConn
	opened   []*fakeConn
	connects atomic.Int32
	closed   atomic.Int32
}

func (f *fakeConnector) Backend() models.Backend { return f.backend }
func (f *fakeConnector) Bounded() bool           { return f.bounded }
func (f *fakeConnector) MaxConns() int           { return f.maxConns }

func (f *fakeConnector) Connect(ctx context.Context) (PhysicalConn, error) {
	f.connects.Add(1)
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var c *fakeConn
	if len(f.script) > 0 {
		c, f.script = f.script[0], f.script[1:]
	} else {
		c = &fakeConn{}
	}
	c.id = len(f.opened) + 1
	f.opened = append(f.opened, c)
	return c, nil
}

func (f *fakeConnector) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeConnector) Close() error {
	f.closed.Add(1)
	return nil
}

// statsConnector is a fakeConnector that also reports driver pool counters.
type statsConnector struct {
	*fakeConnector
	pool PoolStats
}

func (s *statsConnector) PoolStats() PoolStats { return s.pool }

var errDead = errors.New("connection reset by peer")
