package quicx

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/caozhiyi/quicx/internal/h3errors"
	"github.com/caozhiyi/quicx/internal/h3stream"
	"github.com/caozhiyi/quicx/internal/pseudo"
	"github.com/caozhiyi/quicx/qpack"
	"github.com/caozhiyi/quicx/transport"
)

// ErrClientNotStarted is returned by DoRequest before Start has dialed
// the connection.
var ErrClientNotStarted = errors.New("quicx: client not started")

// ErrTooManyStreams is returned when a request would exceed the
// negotiated SETTINGS_MAX_CONCURRENT_STREAMS.
var ErrTooManyStreams = errors.New("quicx: too many active streams")

// ClientOptions configures a Client at construction. Grounded on
// teacher's SingleDestinationRoundTripper field set (TLSConfig,
// QUICConfig), narrowed to the single destination this core's Client
// dials.
type ClientOptions struct {
	TLSConfig  *tls.Config
	QUICConfig *quic.Config
	Settings   Settings
	Logger     *slog.Logger

	// AutoDecompress reverses a response's Content-Encoding (gzip, br)
	// before handing the body to DoRequest's handler, mirroring
	// teacher's EnableAutoDecompress/DisableAutoDecompress toggle. Off
	// by default; set true to opt in.
	AutoDecompress bool
	// AutoDecodeCharset transcodes a response body to UTF-8 per its
	// Content-Type charset parameter, mirroring teacher's
	// EnableAutoDecodeAllContentType (off by default there too).
	AutoDecodeCharset bool
}

// clientPoolIdleTimeout bounds how long the pool keeps a Client's
// connection entry after Stop releases it; Stop itself already closes
// the connection.
const clientPoolIdleTimeout = 30 * time.Second

// Client is an HTTP/3 client bound to a single remote endpoint,
// grounded on teacher's SingleDestinationRoundTripper generalized from
// http.RoundTripper's Do-one-request shape to an explicit
// DoRequest(request, handler) shape, with both a buffered
// (CompleteClientHandler) and a streaming (AsyncClientHandler) mode.
type Client struct {
	addr string
	opts ClientOptions
	pool *transport.Pool

	mu   sync.Mutex
	conn *connection

	pushPromiseHandler  func(*PushRequest) PushPromiseDecision
	pendingPushHandler  *AsyncClientHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient builds a Client for addr ("host:port"), not yet connected.
func NewClient(addr string, opts ClientOptions) *Client {
	if opts.TLSConfig == nil {
		opts.TLSConfig = NewTLSConfig("", false, FingerprintNone)
	}
	if (opts.Settings == Settings{}) {
		opts.Settings = DefaultSettings()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	dialer := transport.NewDialer(opts.TLSConfig, opts.QUICConfig)
	return &Client{addr: addr, opts: opts, pool: transport.NewPool(dialer, clientPoolIdleTimeout)}
}

// SetPushPromiseHandler installs the callback consulted when a
// PUSH_PROMISE arrives, before the pushed response itself.
func (c *Client) SetPushPromiseHandler(h func(*PushRequest) PushPromiseDecision) {
	c.pushPromiseHandler = h
}

// SetPushHandler installs the streaming handler invoked for every
// accepted push's response. Safe to call before or after Start.
func (c *Client) SetPushHandler(h AsyncClientHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.pushHandler = h
		c.conn.havePushHandler = true
	}
	c.pendingPushHandler = &h
}

// Init prepares the client's internal context; Start then dials. Kept
// separate from Start to match the Init/Start/Stop/Join lifecycle the
// Server coordinator shares.
func (c *Client) Init() {
	c.ctx, c.cancel = context.WithCancel(context.Background())
}

// Start dials the remote endpoint and runs the client-role connection
// setup: open control/QPACK-encoder/QPACK-decoder streams, send
// SETTINGS.
func (c *Client) Start(ctx context.Context) error {
	if c.ctx == nil {
		c.Init()
	}
	tc, err := c.pool.Get(ctx, c.addr)
	if err != nil {
		return err
	}
	conn := newConnection(roleClient, tc, c.opts.Settings, nil, c.opts.Logger)

	c.mu.Lock()
	if c.pendingPushHandler != nil {
		conn.pushHandler = *c.pendingPushHandler
		conn.havePushHandler = true
	}
	c.mu.Unlock()

	if err := conn.start(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Stop releases the underlying connection to the pool and closes it
// with H3_NO_ERROR; the pool drops its entry once its idle timeout
// passes.
func (c *Client) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.pool.Release(c.addr)
	return conn.close(h3errors.NoError, "client stopped")
}

// Join blocks until the connection has closed, for any reason.
func (c *Client) Join() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	<-conn.closed
}

// SetMaxPushID raises the number of pushes the server may initiate; n
// must only increase — the value is monotonic for the life of the
// connection.
func (c *Client) SetMaxPushID(n uint64) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrClientNotStarted
	}
	return conn.advanceMaxPushID(n)
}

// DoRequest sends req and blocks until the complete response (or an
// error) is available, then invokes handler exactly once. Grounded on
// teacher's RoundTrip, generalized from returning (*http.Response,
// error) to an explicit completion callback.
func (c *Client) DoRequest(ctx context.Context, req *Request, handler CompleteClientHandler) error {
	resp, err := c.doRequest(ctx, req, nil)
	if handler != nil {
		handler(resp, err)
	}
	return err
}

// DoRequestAsync sends req and streams the response to handler as
// headers and body chunks arrive, instead of waiting for completion —
// the AsyncClientHandler counterpart original_source's
// if_async_handler.h names alongside the buffered variant.
func (c *Client) DoRequestAsync(ctx context.Context, req *Request, handler AsyncClientHandler) error {
	_, err := c.doRequest(ctx, req, &handler)
	return err
}

func (c *Client) doRequest(ctx context.Context, req *Request, async *AsyncClientHandler) (*Response, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrClientNotStarted
	}
	if !conn.acquireStreamSlot() {
		return nil, ErrTooManyStreams
	}

	st, err := conn.conn.OpenStreamSync(ctx)
	if err != nil {
		conn.releaseStreamSlot()
		return nil, err
	}

	resp := NewResponse()
	var bodyBuf []byte

	cb := h3stream.RequestResponseCallbacks{
		OnResponseHeaders: func(status int, headers []qpack.HeaderField) {
			resp.StatusCode = status
			resp.Header = headerFromFields(headers)
			if async != nil && async.OnHeaders != nil {
				async.OnHeaders(resp)
			}
		},
		OnBodyChunk: func(data []byte, last bool) {
			if async != nil {
				if async.OnBodyChunk != nil {
					async.OnBodyChunk(data, last)
				}
				return
			}
			if len(data) > 0 {
				bodyBuf = append(bodyBuf, data...)
			}
			if last {
				resp.SetBody(finalizeBody(c.opts, resp.Header, bodyBuf))
			}
		},
		OnTrailers: func(headers []qpack.HeaderField) {
			for _, f := range headers {
				resp.Header.Add(f.Name, f.Value)
			}
		},
		OnPushPromise: func(pushID uint64, line pseudo.RequestLine, headers []qpack.HeaderField) {
			c.handlePushPromise(conn, pushID, line, headers)
		},
	}
	hs := h3stream.NewStream(st, conn.enc, conn.dec, cb)

	if err := hs.SendRequestHeaders(req.line(), req.Header.toFields()); err != nil {
		conn.releaseStreamSlot()
		return nil, err
	}
	if err := writeBody(hs, req.Body(), req.BodyProvider()); err != nil {
		conn.releaseStreamSlot()
		return nil, err
	}
	if err := hs.CloseSend(); err != nil {
		conn.releaseStreamSlot()
		return nil, err
	}

	if async != nil {
		go func() {
			defer conn.releaseStreamSlot()
			if err := hs.Run(); err != nil && async.OnError != nil {
				async.OnError(err)
			}
		}()
		return resp, nil
	}

	done := make(chan error, 1)
	go func() {
		defer conn.releaseStreamSlot()
		done <- hs.Run()
	}()

	select {
	case err := <-done:
		return resp, err
	case <-ctx.Done():
		hs.Reset(transport.ErrorCode(h3errors.RequestCancelled))
		return resp, ctx.Err()
	}
}

// handlePushPromise decides accept/reject for an incoming PUSH_PROMISE
// and, on acceptance, records it so the matching push stream (arriving
// later, on the connection's uni-stream accept loop) can be matched
// against it.
func (c *Client) handlePushPromise(conn *connection, pushID uint64, line pseudo.RequestLine, headers []qpack.HeaderField) {
	pr := &PushRequest{
		Method:    line.Method,
		Scheme:    line.Scheme,
		Authority: line.Authority,
		Path:      line.Path,
		Header:    headerFromFields(headers),
	}
	decision := PushAccept
	if c.pushPromiseHandler != nil {
		decision = c.pushPromiseHandler(pr)
	}
	if decision == PushReject {
		if conn.ctrlSend != nil {
			_ = conn.ctrlSend.CancelPush(pushID)
		}
		return
	}
	conn.pushMu.Lock()
	conn.promised[pushID] = pr
	conn.pushMu.Unlock()
}
