package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeConn struct {
	closed  atomic.Bool
	closeCh chan struct{}
}

func newFakeConn() *fakeConn { return &fakeConn{closeCh: make(chan struct{})} }

func (f *fakeConn) OpenStream() (Stream, error) { return nil, errors.New("unimplemented") }
func (f *fakeConn) OpenStreamSync(ctx context.Context) (Stream, error) {
	return nil, errors.New("unimplemented")
}
func (f *fakeConn) OpenUniStream() (SendStream, error) { return nil, errors.New("unimplemented") }
func (f *fakeConn) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	return nil, errors.New("unimplemented")
}
func (f *fakeConn) AcceptStream(ctx context.Context) (Stream, error) {
	return nil, errors.New("unimplemented")
}
func (f *fakeConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	return nil, errors.New("unimplemented")
}
func (f *fakeConn) LocalAddr() net.Addr  { return nil }
func (f *fakeConn) RemoteAddr() net.Addr { return nil }
func (f *fakeConn) CloseWithError(code ErrorCode, msg string) error {
	if f.closed.CompareAndSwap(false, true) {
		close(f.closeCh)
	}
	return nil
}
func (f *fakeConn) Context() context.Context { return context.Background() }

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	dialErr  error
	dialHook func()
}

func (d *fakeDialer) Dial(ctx context.Context, addr string) (Connection, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	if d.dialHook != nil {
		d.dialHook()
	}
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return newFakeConn(), nil
}

func TestPoolGetReusesConnection(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d, 0)

	c1, err := p.Get(context.Background(), "example.com:443")
	if err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	c2, err := p.Get(context.Background(), "example.com:443")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected the same pooled connection to be reused")
	}
	if d.dials != 1 {
		t.Fatalf("expected exactly 1 dial, got %d", d.dials)
	}
}

func TestPoolGetDifferentAuthoritiesDialSeparately(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d, 0)

	if _, err := p.Get(context.Background(), "a.example:443"); err != nil {
		t.Fatalf("Get a failed: %v", err)
	}
	if _, err := p.Get(context.Background(), "b.example:443"); err != nil {
		t.Fatalf("Get b failed: %v", err)
	}
	if d.dials != 2 {
		t.Fatalf("expected 2 dials for 2 distinct authorities, got %d", d.dials)
	}
}

func TestPoolConcurrentGetDedupsInFlightDial(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	d := &fakeDialer{dialHook: func() {
		close(started)
		<-release
	}}
	p := NewPool(d, 0)

	var wg sync.WaitGroup
	results := make([]Connection, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Get(context.Background(), "example.com:443")
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("unexpected errors: %v %v", errs[0], errs[1])
	}
	if results[0] != results[1] {
		t.Fatalf("concurrent Get calls for the same addr should return the same connection")
	}
	if d.dials != 1 {
		t.Fatalf("expected exactly 1 dial despite 2 concurrent callers, got %d", d.dials)
	}
}

func TestPoolReleaseEvictsAfterIdleTimeout(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d, 10*time.Millisecond)

	conn, err := p.Get(context.Background(), "example.com:443")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	p.Release("example.com:443")

	fc := conn.(*fakeConn)
	select {
	case <-fc.closeCh:
	case <-time.After(time.Second):
		t.Fatalf("connection was not closed after idle timeout")
	}

	conn2, err := p.Get(context.Background(), "example.com:443")
	if err != nil {
		t.Fatalf("Get after eviction failed: %v", err)
	}
	if conn2 == conn {
		t.Fatalf("expected a fresh connection after idle eviction")
	}
	if d.dials != 2 {
		t.Fatalf("expected a second dial after eviction, got %d", d.dials)
	}
}

func TestPoolGetBeforeIdleTimeoutCancelsEviction(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d, 50*time.Millisecond)

	conn, err := p.Get(context.Background(), "example.com:443")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	p.Release("example.com:443")

	conn2, err := p.Get(context.Background(), "example.com:443")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if conn2 != conn {
		t.Fatalf("expected the same connection to be reused before the idle timer fired")
	}
	if d.dials != 1 {
		t.Fatalf("expected exactly 1 dial, got %d", d.dials)
	}
}

func TestPoolCloseIdleConnections(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d, time.Hour)

	conn, err := p.Get(context.Background(), "example.com:443")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	p.Release("example.com:443")

	p.CloseIdleConnections()

	fc := conn.(*fakeConn)
	select {
	case <-fc.closeCh:
	case <-time.After(time.Second):
		t.Fatalf("CloseIdleConnections should close idle connections immediately")
	}
}

func TestPoolDialErrorPropagates(t *testing.T) {
	wantErr := errors.New("dial failed")
	d := &fakeDialer{dialErr: wantErr}
	p := NewPool(d, 0)

	_, err := p.Get(context.Background(), "example.com:443")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected dial error to propagate, got %v", err)
	}
}
