package quicx

import (
	"context"

	"github.com/caozhiyi/quicx/internal/h3errors"
	"github.com/caozhiyi/quicx/internal/h3stream"
	"github.com/caozhiyi/quicx/internal/pseudo"
	"github.com/caozhiyi/quicx/qpack"
	"github.com/caozhiyi/quicx/router"
	"github.com/caozhiyi/quicx/transport"
)

// dispatchKind tags what a server connection decided to do with an
// inbound request stream once its headers resolved: which handler
// shape to run, or that no route matched.
type dispatchKind int

const (
	dispatchNotFound dispatchKind = iota
	dispatchComplete
	dispatchAsync
)

// acceptBidiLoop is the server role's accept loop: for each inbound
// bidi stream, create a response-stream object bound to the router and
// the handler-dispatch logic.
func (c *connection) acceptBidiLoop(ctx context.Context) {
	for {
		st, err := c.conn.AcceptStream(ctx)
		if err != nil {
			c.fatal(err)
			return
		}
		if !c.acquireStreamSlot() {
			st.CancelWrite(transport.ErrorCode(h3errors.RequestRejected))
			st.CancelRead(transport.ErrorCode(h3errors.RequestRejected))
			continue
		}
		go c.handleRequestStream(st)
	}
}

// handleRequestStream reads one request to completion and dispatches
// it to the matched handler, writing the response once the handler
// (and, for a streaming request, the request body) is done. The
// forward-declared hs lets the callbacks below call back into the very
// stream object that invokes them — they only ever run during hs.Run(),
// by which point hs is already assigned.
func (c *connection) handleRequestStream(st transport.Stream) {
	defer c.releaseStreamSlot()

	var (
		hs      *h3stream.Stream
		req     *Request
		resp    *Response
		bodyBuf []byte
		kind    dispatchKind
		async   AsyncServerHandler
		complete CompleteHandler
	)

	cb := h3stream.RequestResponseCallbacks{
		OnRequestHeaders: func(line pseudo.RequestLine, headers []qpack.HeaderField) {
			req = requestFromLine(line, headers)
			resp = NewResponse()

			match := c.rt.Match(router.Method(req.Method), req.Path)
			if !match.Matched {
				kind = dispatchNotFound
				resp.StatusCode = 404
				return
			}
			req.PathParams = match.Params

			switch match.Config.Kind {
			case router.HandlerComplete:
				kind = dispatchComplete
				complete = match.Config.Handler.(CompleteHandler)
			case router.HandlerAsyncServer:
				kind = dispatchAsync
				async = match.Config.Handler.(AsyncServerHandler)
				if async.OnHeaders != nil {
					async.OnHeaders(req, resp)
				}
			default:
				kind = dispatchNotFound
				resp.StatusCode = 500
			}
		},
		OnBodyChunk: func(data []byte, last bool) {
			if req == nil {
				return
			}
			switch kind {
			case dispatchComplete:
				if len(data) > 0 {
					bodyBuf = append(bodyBuf, data...)
				}
				if last {
					req.SetBody(bodyBuf)
					complete(req, resp)
					c.sendResponse(hs, st, resp)
				}
			case dispatchAsync:
				if async.OnBodyChunk != nil {
					async.OnBodyChunk(data, last)
				}
				if last {
					c.sendResponse(hs, st, resp)
				}
			case dispatchNotFound:
				if last {
					c.sendResponse(hs, st, resp)
				}
			}
		},
		OnTrailers: func(headers []qpack.HeaderField) {
			if req == nil {
				return
			}
			for _, f := range headers {
				req.Header.Add(f.Name, f.Value)
			}
		},
	}
	hs = h3stream.NewStream(st, c.enc, c.dec, cb)

	if err := hs.Run(); err != nil {
		hs.Reset(transport.ErrorCode(h3errors.RequestIncomplete))
	}
}

// sendResponse waits for the settings barrier, writes headers, emits
// any server pushes the handler queued, streams the body, and closes
// the send side.
func (c *connection) sendResponse(hs *h3stream.Stream, st transport.Stream, resp *Response) {
	if err := c.waitPeerSettings(st.Context()); err != nil {
		hs.Reset(transport.ErrorCode(h3errors.InternalError))
		return
	}
	if err := hs.SendResponseHeaders(resp.StatusCode, resp.Header.toFields()); err != nil {
		return
	}
	c.emitPushes(hs, resp)
	if err := writeBody(hs, resp.Body(), resp.BodyProvider()); err != nil {
		return
	}
	_ = hs.CloseSend()
}

// emitPushes walks the handler's queued push children: for each,
// allocate a Push ID (skipping it silently if push is disabled or the
// client's advertised max_push_id is exhausted), emit PUSH_PROMISE on
// the originating stream, then arm pushWaitDelay before actually
// opening the push stream.
func (c *connection) emitPushes(hs *h3stream.Stream, resp *Response) {
	for _, child := range resp.PushChildren {
		id, ok := c.allocatePushID()
		if !ok {
			c.log.Debug("dropping queued push: no push ID available", "path", child.Path)
			continue
		}
		if err := hs.SendPushPromise(id, child.line(), child.Header.toFields()); err != nil {
			c.log.Warn("PUSH_PROMISE send failed", "err", err)
			continue
		}
		pushID, pushChild := id, child
		c.schedulePush(pushID, func() { c.openPushStream(pushID, pushChild) })
	}
}

func (c *connection) openPushStream(pushID uint64, child *PushRequest) {
	send, err := c.conn.OpenUniStreamSync(context.Background())
	if err != nil {
		c.log.Warn("opening push stream failed", "err", err)
		return
	}
	ps, err := h3stream.OpenPushSendStream(send, c.enc, pushID)
	if err != nil {
		c.log.Warn("push stream preamble failed", "err", err)
		return
	}
	resp := child.Response
	if resp == nil {
		resp = NewResponse()
	}
	if err := ps.SendResponseHeaders(resp.StatusCode, resp.Header.toFields()); err != nil {
		return
	}
	if err := writeBody(ps, resp.Body(), resp.BodyProvider()); err != nil {
		return
	}
	_ = ps.Close()
}
