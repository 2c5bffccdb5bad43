package transport

import (
	"context"
	"sync"
	"time"
)

// Pool is a per-authority cache of open Connections, reused by a
// client so repeated requests to the same authority share one QUIC
// connection instead of dialing fresh each time.
//
// Adapted from `internal/http2.clientConnPool2`: the in-flight-dial
// dedup (dialCall, "don't start a second dial for an addr already
// being dialed") and the idle-close sweep (CloseIdleConnections) are
// the same shape, generalized from HTTP/2's multi-conn-per-key pool
// (HTTP/2 multiplexes but a pool still spreads load across several TCP
// conns) down to HTTP/3's one-conn-per-key pool, since a single QUIC
// connection already multiplexes every stream a client needs for one
// authority.
type Pool struct {
	dialer      Dialer
	idleTimeout time.Duration

	mu      sync.Mutex
	conns   map[string]*pooledConn
	dialing map[string]*dialCall
}

type pooledConn struct {
	conn     Connection
	refCount int
	timer    *time.Timer
}

type dialCall struct {
	done chan struct{}
	conn Connection
	err  error
}

// NewPool creates a Pool that dials through d, closing a connection
// idleTimeout after its last Release if no new Get claims it first. A
// non-positive idleTimeout disables idle closing (connections live
// until CloseIdleConnections or the caller closes them, or the pool is
// discarded).
func NewPool(d Dialer, idleTimeout time.Duration) *Pool {
	return &Pool{
		dialer:      d,
		idleTimeout: idleTimeout,
		conns:       make(map[string]*pooledConn),
		dialing:     make(map[string]*dialCall),
	}
}

// Get returns a live connection to addr, dialing one if none is cached
// and none is already being dialed by a concurrent caller (in which
// case it waits on that dial, mirroring clientConnPool2.GetClientConn's
// "<-call.done" wait on an in-flight dialCall2).
func (p *Pool) Get(ctx context.Context, addr string) (Connection, error) {
	p.mu.Lock()
	if pc, ok := p.conns[addr]; ok {
		pc.refCount++
		if pc.timer != nil {
			pc.timer.Stop()
		}
		p.mu.Unlock()
		return pc.conn, nil
	}
	if call, ok := p.dialing[addr]; ok {
		p.mu.Unlock()
		<-call.done
		if call.err != nil {
			return nil, call.err
		}
		return p.Get(ctx, addr)
	}

	call := &dialCall{done: make(chan struct{})}
	p.dialing[addr] = call
	p.mu.Unlock()

	conn, err := p.dialer.Dial(ctx, addr)
	call.conn, call.err = conn, err

	p.mu.Lock()
	delete(p.dialing, addr)
	if err == nil {
		p.conns[addr] = &pooledConn{conn: conn, refCount: 1}
	}
	p.mu.Unlock()
	close(call.done)

	return conn, err
}

// Release gives back a connection obtained from Get. Once the
// reference count reaches zero, the connection starts its idle timer;
// a Get for the same addr before the timer fires cancels the close.
func (p *Pool) Release(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc, ok := p.conns[addr]
	if !ok {
		return
	}
	pc.refCount--
	if pc.refCount > 0 || p.idleTimeout <= 0 {
		return
	}
	pc.timer = time.AfterFunc(p.idleTimeout, func() { p.evict(addr, pc) })
}

func (p *Pool) evict(addr string, target *pooledConn) {
	p.mu.Lock()
	cur, ok := p.conns[addr]
	if !ok || cur != target || cur.refCount > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.conns, addr)
	p.mu.Unlock()
	cur.conn.CloseWithError(0, "idle timeout")
}

// CloseIdleConnections closes every pooled connection with no current
// references, regardless of its idle timer's remaining delay. Mirrors
// clientConnPool2.CloseIdleConnections.
func (p *Pool) CloseIdleConnections() {
	p.mu.Lock()
	var toClose []Connection
	for addr, pc := range p.conns {
		if pc.refCount > 0 {
			continue
		}
		if pc.timer != nil {
			pc.timer.Stop()
		}
		toClose = append(toClose, pc.conn)
		delete(p.conns, addr)
	}
	p.mu.Unlock()
	for _, c := range toClose {
		c.CloseWithError(0, "idle")
	}
}
