package sink

import (
	"context"
	"sync"

	ferryerrors "github.com/fileferry/ferry/errors"
)

// connPool recycles FTP control connections across chunk writes. Each
// concurrent STOR needs its own connection, so the pool holds up to maxIdle
// of them and dials on demand when empty.
type connPool struct {
	conns   chan ftpConn
	factory func(ctx context.Context) (ftpConn, error)
	health  func(ftpConn) bool

	mu    sync.Mutex
	stats PoolStats
	open  bool
}

// PoolStats reports connection churn for one sink's lifetime.
type PoolStats struct {
	Created   int64
	Reused    int64
	Destroyed int64
	Idle      int
}

func newConnPool(maxIdle int, factory func(ctx context.Context) (ftpConn, error), health func(ftpConn) bool) *connPool {
	if maxIdle < 1 {
		maxIdle = 1
	}
	if health == nil {
		health = func(ftpConn) bool { return true }
	}
	return &connPool{
		conns:   make(chan ftpConn, maxIdle),
		factory: factory,
		health:  health,
		open:    true,
	}
}

// get returns a pooled connection when a healthy one is idle and dials a new
// one otherwise.
func (p *connPool) get(ctx context.Context) (ftpConn, error) {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return nil, ferryerrors.NewError("sink.pool.get", ferryerrors.KindInternal, ferryerrors.ErrNotConnected).
			WithMessage("connection pool is closed")
	}
	p.mu.Unlock()

	select {
	case conn := <-p.conns:
		if p.health(conn) {
			p.mu.Lock()
			p.stats.Reused++
			p.mu.Unlock()
			return conn, nil
		}
		p.destroy(conn)
	default:
	}

	conn, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.stats.Created++
	p.mu.Unlock()
	return conn, nil
}

// put returns a connection to the pool, discarding it when the pool is
// closed or already full.
func (p *connPool) put(conn ftpConn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	open := p.open
	p.mu.Unlock()
	if !open || !p.health(conn) {
		p.destroy(conn)
		return
	}

	select {
	case p.conns <- conn:
	default:
		p.destroy(conn)
	}
}

func (p *connPool) destroy(conn ftpConn) {
	_ = conn.Quit()
	p.mu.Lock()
	p.stats.Destroyed++
	p.mu.Unlock()
}

func (p *connPool) snapshot() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Idle = len(p.conns)
	return s
}

// close quits every idle connection. Connections checked out at close time
// are quit when they are put back.
func (p *connPool) close() {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return
	}
	p.open = false
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.conns:
			p.destroy(conn)
		default:
			return
		}
	}
}
