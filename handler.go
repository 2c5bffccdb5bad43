package quicx

import "github.com/caozhiyi/quicx/router"

// CompleteHandler is the buffered (request, response) server callback,
// invoked once the full request body has been received. Grounded on
// original_source's http_handler alias used by RouteConfig's
// complete-mode variant.
type CompleteHandler func(req *Request, resp *Response)

// AsyncServerHandler is the streaming server callback pair, grounded on
// if_async_handler.h's IAsyncServerHandler: OnHeaders fires once
// headers arrive (body not yet received), OnBodyChunk fires per chunk
// with is_last=true on the final call.
type AsyncServerHandler struct {
	OnHeaders   func(req *Request, resp *Response)
	OnBodyChunk func(data []byte, last bool)
}

// AsyncClientHandler is the streaming client callback pair, grounded on
// if_async_handler.h's IAsyncClientHandler.
type AsyncClientHandler struct {
	OnHeaders   func(resp *Response)
	OnBodyChunk func(data []byte, last bool)
	OnError     func(err error)
}

// CompleteClientHandler is the buffered client callback, invoked once
// with the complete response.
type CompleteClientHandler func(resp *Response, err error)

// PushPromiseDecision is returned by a client's push-promise handler to
// accept or reject an incoming PUSH_PROMISE before the pushed response
// arrives.
type PushPromiseDecision int

const (
	PushAccept PushPromiseDecision = iota
	PushReject
)

// routeConfigForComplete/routeConfigForAsyncServer adapt the typed
// handler variants above into router.RouteConfig's opaque (Kind,
// Handler any) pair — the router itself never sees these concrete
// types, only the tag and an opaque value (see router/router.go's doc
// comment on why).
func routeConfigForComplete(h CompleteHandler) router.RouteConfig {
	return router.RouteConfig{Kind: router.HandlerComplete, Handler: h}
}

func routeConfigForAsyncServer(h AsyncServerHandler) router.RouteConfig {
	return router.RouteConfig{Kind: router.HandlerAsyncServer, Handler: h}
}
