package datasource

import (
	"sync/atomic"
	"time"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// Lease is exclusive use of one physical connection. Exactly one of
// Release or Discard takes effect; later calls are no-ops, so callers can
// defer Release and still Discard on a timeout path.
type Lease struct {
	id         string
	backend    models.Backend
	conn       PhysicalConn
	acquiredAt time.Time
	done       atomic.Bool
	onDone     func(l *Lease, discarded bool)
}

func newLease(id string, backend models.Backend, conn PhysicalConn, onDone func(*Lease, bool)) *Lease {
	return &Lease{id: id, backend: backend, conn: conn, acquiredAt: time.Now(), onDone: onDone}
}

func (l *Lease) ID() string { return l.id }

func (l *Lease) Backend() models.Backend { return l.backend }

// Conn returns the leased connection. It must not be used after the lease ends.
func (l *Lease) Conn() Conn { return l.conn }

// Held is how long the lease has been (or was) open.
func (l *Lease) Held() time.Duration { return time.Since(l.acquiredAt) }

// Done reports whether the lease has ended.
func (l *Lease) Done() bool { return l.done.Load() }

// Release hands the connection back for reuse. Returns false if the lease
// had already ended.
func (l *Lease) Release() bool {
	if !l.done.CompareAndSwap(false, true) {
		return false
	}
	l.conn.Release()
	if l.onDone != nil {
		l.onDone(l, false)
	}
	return true
}

// Discard destroys the connection instead of reusing it. Used when its
// state is unknown, such as after a statement timeout.
func (l *Lease) Discard() bool {
	if !l.done.CompareAndSwap(false, true) {
		return false
	}
	l.conn.Discard()
	if l.onDone != nil {
		l.onDone(l, true)
	}
	return true
}
