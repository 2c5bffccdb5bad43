package quicx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/caozhiyi/quicx/internal/frame"
	"github.com/caozhiyi/quicx/internal/h3errors"
	"github.com/caozhiyi/quicx/internal/h3stream"
	"github.com/caozhiyi/quicx/internal/pseudo"
	"github.com/caozhiyi/quicx/qpack"
	"github.com/caozhiyi/quicx/router"
	"github.com/caozhiyi/quicx/transport"
)

// ErrMaxPushIDNotMonotonic is returned by advanceMaxPushID when n does
// not exceed the value already advertised — Client.SetMaxPushID may
// only raise the limit, never lower it.
var ErrMaxPushIDNotMonotonic = errors.New("quicx: max push ID must only increase")

// connRole distinguishes which half of the connection coordinator —
// client-role or server-role specialization — a connection instance
// runs.
type connRole int

const (
	roleClient connRole = iota
	roleServer
)

// pushWaitDelay is the grace window between emitting PUSH_PROMISE and
// opening the actual push stream. Each scheduled push gets its own
// timer, tracked in the pending map, which a late CANCEL_PUSH from the
// peer stops; pushes are not batched behind one shared timer.
const pushWaitDelay = 50 * time.Millisecond

// connection is the per-QUIC-connection coordinator: it owns the
// control/QPACK critical streams, the QPACK encoder/decoder, the
// SETTINGS exchange, push bookkeeping, and the accept loops turning
// inbound streams into internal/h3stream state machines. Grounded on
// teacher's internal/http3/conn.go connection struct, generalized from
// client-only to both roles.
type connection struct {
	role connRole
	conn transport.Connection
	rt   *router.Router // server role only

	enc *qpack.Encoder
	dec *qpack.Decoder

	localSettings Settings

	settingsMu    sync.Mutex
	peerSettings  Settings
	peerReady     chan struct{}
	peerReadyOnce sync.Once

	ctrlSend     *h3stream.ControlSendStream
	qpackEncSend transport.SendStream
	qpackDecSend transport.SendStream

	pushMu              sync.Mutex
	nextPushID          uint64
	maxPushID           uint64
	advertisedMaxPushID uint64 // client role only: the value we last sent via MAX_PUSH_ID
	cancelled           map[uint64]bool
	pending             map[uint64]*pendingPush
	promised            map[uint64]*PushRequest // client role: pushID -> the PUSH_PROMISE request line/headers, waiting for its push stream

	pushPromiseHandler func(*PushRequest) PushPromiseDecision
	pushHandler         AsyncClientHandler
	havePushHandler     bool

	activeMu      sync.Mutex
	activeStreams int

	errMu sync.Mutex
	err   *multierror.Error

	closeOnce sync.Once
	closed    chan struct{}

	log *slog.Logger
}

type pendingPush struct {
	req   *PushRequest
	timer *time.Timer
}

// newConnection wires a freshly dialed/accepted transport.Connection
// into a coordinator. rt is nil for the client role (requests are
// dispatched by the caller of DoRequest, not by a router).
func newConnection(role connRole, conn transport.Connection, settings Settings, rt *router.Router, log *slog.Logger) *connection {
	if log == nil {
		log = slog.Default()
	}
	c := &connection{
		role:          role,
		conn:          conn,
		rt:            rt,
		localSettings: settings,
		peerReady:     make(chan struct{}),
		cancelled:     make(map[uint64]bool),
		pending:       make(map[uint64]*pendingPush),
		promised:      make(map[uint64]*PushRequest),
		closed:        make(chan struct{}),
		log:           log,
	}
	c.enc = qpack.NewEncoder(settings.QPACKMaxTableCapacity, c.writeEncoderInstruction)
	c.dec = qpack.NewDecoder(settings.QPACKMaxTableCapacity, int(settings.QPACKBlockedStreams), c.writeDecoderInstruction)
	return c
}

func (c *connection) writeEncoderInstruction(b []byte) error {
	if c.qpackEncSend == nil {
		return nil
	}
	_, err := c.qpackEncSend.Write(b)
	return err
}

func (c *connection) writeDecoderInstruction(b []byte) error {
	if c.qpackDecSend == nil {
		return nil
	}
	_, err := c.qpackDecSend.Write(b)
	return err
}

// start opens this endpoint's control/QPACK-encoder/QPACK-decoder
// streams, sends SETTINGS, and launches the background accept loops.
// The client and server construction steps are symmetric except for
// the accept-bidi loop, which only the server role runs.
func (c *connection) start(ctx context.Context) error {
	ctrlStream, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return err
	}
	c.ctrlSend, err = h3stream.NewControlSendStream(ctrlStream, c.localSettings.toFrame())
	if err != nil {
		return err
	}

	encStream, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return err
	}
	if err := h3stream.OpenQPACKEncoderSendStream(encStream); err != nil {
		return err
	}
	c.qpackEncSend = encStream

	decStream, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return err
	}
	if err := h3stream.OpenQPACKDecoderSendStream(decStream); err != nil {
		return err
	}
	c.qpackDecSend = decStream

	go c.acceptUniLoop(ctx)
	if c.role == roleServer {
		go c.acceptBidiLoop(ctx)
	}
	return nil
}

// waitPeerSettings blocks until the peer's SETTINGS frame has been
// received — neither role writes a response on a stream before the
// peer's SETTINGS is in, a symmetric reading of the server-must-wait-
// for-client-SETTINGS requirement applied to both directions.
func (c *connection) waitPeerSettings(ctx context.Context) error {
	select {
	case <-c.peerReady:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) acceptUniLoop(ctx context.Context) {
	for {
		rs, err := c.conn.AcceptUniStream(ctx)
		if err != nil {
			c.fatal(err)
			return
		}
		go c.handleUniStream(rs)
	}
}

func (c *connection) handleUniStream(rs transport.ReceiveStream) {
	t, err := h3stream.IdentifyStream(rs)
	if err != nil {
		rs.CancelRead(transport.ErrorCode(h3errors.GeneralProtocolError))
		return
	}
	switch t {
	case h3stream.TypeControl:
		if err := h3stream.RunControlRecvStream(rs, h3stream.ControlCallbacks{
			OnSettings:   c.onPeerSettings,
			OnGoAway:     c.onGoAway,
			OnMaxPushID:  c.onMaxPushID,
			OnCancelPush: c.onCancelPush,
		}); err != nil {
			c.fatal(err)
		}
	case h3stream.TypeQPACKEncoder:
		if err := h3stream.RunQPACKEncoderRecvStream(rs, c.dec.ApplyEncoderInstructions); err != nil {
			c.fatal(err)
		}
	case h3stream.TypeQPACKDecoder:
		if err := h3stream.RunQPACKDecoderRecvStream(rs, c.enc.ApplyDecoderInstructions); err != nil {
			c.fatal(err)
		}
	case h3stream.TypePush:
		c.handlePushRecvStream(rs)
	default:
		// RFC 9114 Section 9: unknown stream types are reserved grease,
		// discarded without treating them as an error.
		rs.CancelRead(transport.ErrorCode(h3errors.NoError))
	}
}

func (c *connection) onPeerSettings(f *frame.SettingsFrame) {
	s := settingsFromFrame(f)
	c.settingsMu.Lock()
	c.peerSettings = s
	c.settingsMu.Unlock()
	if err := c.enc.SetCapacity(s.QPACKMaxTableCapacity); err != nil {
		c.log.Warn("peer QPACK table capacity rejected", "err", err)
	}
	c.enc.SetAllowedBlockedStreams(s.QPACKBlockedStreams)
	c.peerReadyOnce.Do(func() { close(c.peerReady) })
}

func (c *connection) onGoAway(id uint64) {
	c.log.Info("received GOAWAY", "id", id)
}

func (c *connection) onMaxPushID(id uint64) {
	c.pushMu.Lock()
	if id > c.maxPushID {
		c.maxPushID = id
	}
	c.pushMu.Unlock()
}

func (c *connection) onCancelPush(pushID uint64) {
	c.pushMu.Lock()
	c.cancelled[pushID] = true
	if p, ok := c.pending[pushID]; ok {
		p.timer.Stop()
		delete(c.pending, pushID)
	}
	c.pushMu.Unlock()
}

func (c *connection) fatal(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	c.err = multierror.Append(c.err, err)
	c.errMu.Unlock()
	if errors.Is(err, h3stream.ErrCriticalStreamClosed) {
		_ = c.conn.CloseWithError(transport.ErrorCode(h3errors.ClosedCriticalStream), err.Error())
	}
	c.closeOnce.Do(func() { close(c.closed) })
}

// lastError returns the aggregate of every background error recorded
// via fatal, or nil if none occurred — go-multierror aggregates
// connection-teardown errors here the same way teacher's root client.go
// used it to aggregate HTTP digest-auth errors, a concern this core
// dropped (see DESIGN.md).
func (c *connection) lastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		return nil
	}
	return c.err.ErrorOrNil()
}

func (c *connection) acquireStreamSlot() bool {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	if uint64(c.activeStreams) >= c.localSettings.MaxConcurrentStreams {
		return false
	}
	c.activeStreams++
	return true
}

func (c *connection) releaseStreamSlot() {
	c.activeMu.Lock()
	c.activeStreams--
	c.activeMu.Unlock()
}

// close tears the connection down with code, recording reason for
// CloseWithError's human-readable argument.
func (c *connection) close(code h3errors.Code, reason string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.CloseWithError(transport.ErrorCode(code), reason)
}

// --- server-push bookkeeping shared by both roles ---

// allocatePushID returns the next Push ID to use for a new server
// push, or ok=false if push is disabled or exhausted (the next ID
// would meet or exceed the client's advertised max_push_id).
func (c *connection) allocatePushID() (id uint64, ok bool) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	if !c.localSettings.EnablePush {
		return 0, false
	}
	c.settingsMu.Lock()
	peerEnabled := c.peerSettings.EnablePush
	c.settingsMu.Unlock()
	if !peerEnabled {
		return 0, false
	}
	if c.nextPushID >= c.maxPushID {
		return 0, false
	}
	id = c.nextPushID
	c.nextPushID++
	return id, true
}

// schedulePush arms the push_wait_delay timer for id: if CANCEL_PUSH
// for id arrives first, onCancelPush stops the timer and the push
// never opens a stream.
func (c *connection) schedulePush(id uint64, open func()) {
	c.pushMu.Lock()
	if c.cancelled[id] {
		c.pushMu.Unlock()
		return
	}
	p := &pendingPush{}
	p.timer = time.AfterFunc(pushWaitDelay, func() {
		c.pushMu.Lock()
		cancelled := c.cancelled[id]
		delete(c.pending, id)
		c.pushMu.Unlock()
		if !cancelled {
			open()
		}
	})
	c.pending[id] = p
	c.pushMu.Unlock()
}

func (c *connection) advanceMaxPushID(n uint64) error {
	c.pushMu.Lock()
	if n <= c.advertisedMaxPushID && c.advertisedMaxPushID != 0 {
		c.pushMu.Unlock()
		return ErrMaxPushIDNotMonotonic
	}
	c.advertisedMaxPushID = n
	c.pushMu.Unlock()
	if c.ctrlSend == nil {
		return nil
	}
	return c.ctrlSend.MaxPushID(n)
}

func (c *connection) handlePushRecvStream(rs transport.ReceiveStream) {
	pushID, err := h3stream.ReadPushID(rs)
	if err != nil {
		rs.CancelRead(transport.ErrorCode(h3errors.GeneralProtocolError))
		return
	}
	c.pushMu.Lock()
	_, ok := c.promised[pushID]
	delete(c.promised, pushID)
	c.pushMu.Unlock()
	if !ok {
		// A push stream with no matching PUSH_PROMISE is a protocol
		// violation on a non-critical stream: reset just this stream.
		rs.CancelRead(transport.ErrorCode(h3errors.IDError))
		return
	}

	prs := h3stream.NewPushRecvStream(rs, c.dec)
	resp := NewResponse()
	err = prs.Run(pushID, h3stream.RequestResponseCallbacks{
		OnResponseHeaders: func(status int, headers []qpack.HeaderField) {
			resp.StatusCode = status
			resp.Header = headerFromFields(headers)
			if c.havePushHandler && c.pushHandler.OnHeaders != nil {
				c.pushHandler.OnHeaders(resp)
			}
		},
		OnBodyChunk: func(data []byte, last bool) {
			if c.havePushHandler && c.pushHandler.OnBodyChunk != nil {
				c.pushHandler.OnBodyChunk(data, last)
				return
			}
			if len(data) > 0 {
				resp.SetBody(append(resp.Body(), data...))
			}
		},
	})
	if err != nil && c.havePushHandler && c.pushHandler.OnError != nil {
		c.pushHandler.OnError(err)
	}
}

// --- pseudo-header <-> Request/Response glue shared by client/server ---

func requestFromLine(line pseudo.RequestLine, headers []qpack.HeaderField) *Request {
	return &Request{
		Method:    line.Method,
		Scheme:    line.Scheme,
		Authority: line.Authority,
		Path:      line.Path,
		Header:    headerFromFields(headers),
	}
}

// dataSender is the common outbound-body surface both *h3stream.Stream
// and *h3stream.PushSendStream implement, letting writeBody serve
// requests, responses, and pushed responses alike.
type dataSender interface {
	SendData(chunk []byte) error
}

// writeBody drains either a buffered body or a BodyProvider onto s,
// preferring the provider when both are set (SetBodyProvider already
// clears body, so this is really either/or in practice).
func writeBody(s dataSender, body []byte, provider BodyProvider) error {
	if provider != nil {
		for {
			chunk, last, err := provider()
			if err != nil {
				return err
			}
			if len(chunk) > 0 {
				if err := s.SendData(chunk); err != nil {
					return err
				}
			}
			if last {
				return nil
			}
		}
	}
	if len(body) > 0 {
		return s.SendData(body)
	}
	return nil
}
