// Package quicx is the public surface of the HTTP/3 core: Request,
// Response, Client, Server, and the handler-variant types the router
// and connection coordinator dispatch through. Grounded on
// original_source/src/http3/http/{request,response,client,server}.h.
package quicx

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/caozhiyi/quicx/internal/pseudo"
	"github.com/caozhiyi/quicx/qpack"
)

// headerCaser lowercases header field names the Unicode-safe way,
// matching the normalization pseudo.normalizeAuthority applies to
// :authority.
var headerCaser = cases.Lower(language.Und)

// BodyProvider supplies outbound body chunks on demand; it signals the
// end of the body by returning last=true. A non-nil err aborts the send.
// Grounded on original_source's SetRequestBodyProvider /
// SetResponseBodyProvider streaming hooks.
type BodyProvider func() (chunk []byte, last bool, err error)

// BodyConsumer receives inbound body chunks as they arrive.
type BodyConsumer func(chunk []byte, last bool)

// Request is a mutable HTTP/3 request container: method/scheme/
// authority/path, headers, either a buffered body or a provider, and
// the path/query parameter maps. The server fills PathParams from the
// router's match; it does not parse the query string, so QueryParams
// holds only what the caller sets.
type Request struct {
	Method    string
	Scheme    string
	Authority string
	Path      string

	Header Header

	body         []byte
	bodyProvider BodyProvider

	PathParams  map[string]string
	QueryParams map[string]string
}

// NewRequest builds a Request for method/path against authority, with
// an empty header map ready for Header.Add.
func NewRequest(method, scheme, authority, path string) *Request {
	return &Request{
		Method:    method,
		Scheme:    scheme,
		Authority: authority,
		Path:      path,
		Header:    make(Header),
	}
}

// SetBody buffers a complete request body.
func (r *Request) SetBody(b []byte) { r.body = b; r.bodyProvider = nil }

// Body returns the buffered body, if any.
func (r *Request) Body() []byte { return r.body }

// SetBodyProvider switches the request to streaming mode.
func (r *Request) SetBodyProvider(p BodyProvider) { r.bodyProvider = p; r.body = nil }

// BodyProvider returns the streaming provider, if set.
func (r *Request) BodyProvider() BodyProvider { return r.bodyProvider }

// PathParam looks up a captured path parameter (router.Match's Params).
func (r *Request) PathParam(name string) string { return r.PathParams[name] }

// QueryParam looks up a parsed query-string parameter.
func (r *Request) QueryParam(name string) string { return r.QueryParams[name] }

func (r *Request) line() pseudo.RequestLine {
	return pseudo.RequestLine{Method: r.Method, Scheme: r.Scheme, Authority: r.Authority, Path: r.Path}
}

// Response is a mutable HTTP/3 response container: status, headers,
// either a buffered body or a provider, and a list of server-push
// children the handler has appended.
type Response struct {
	StatusCode int
	Header     Header

	body         []byte
	bodyProvider BodyProvider

	PushChildren []*PushRequest
}

// NewResponse builds an empty 200 response ready for the handler to
// fill in.
func NewResponse() *Response {
	return &Response{StatusCode: 200, Header: make(Header)}
}

func (r *Response) SetBody(b []byte)              { r.body = b; r.bodyProvider = nil }
func (r *Response) Body() []byte                  { return r.body }
func (r *Response) SetBodyProvider(p BodyProvider) { r.bodyProvider = p; r.body = nil }
func (r *Response) BodyProvider() BodyProvider     { return r.bodyProvider }

// AddPush appends a server-push child: the request line of the pushed
// resource and the response to push for it, populated ahead of time by
// the handler.
func (r *Response) AddPush(req *PushRequest) {
	r.PushChildren = append(r.PushChildren, req)
}

// PushRequest is a server-push child: the synthetic request line the
// client will see in PUSH_PROMISE, paired with the response to push.
type PushRequest struct {
	Method, Scheme, Authority, Path string
	Header                         Header
	Response                       *Response
}

func (p *PushRequest) line() pseudo.RequestLine {
	return pseudo.RequestLine{Method: p.Method, Scheme: p.Scheme, Authority: p.Authority, Path: p.Path}
}

// Header is a case-insensitive (lowercased-on-write) multi-map of
// regular (non-pseudo) header fields, the representation both QPACK
// encode and the handler API share.
type Header map[string][]string

// Add appends a value under name, lowercasing name first (header field
// names are case-insensitive; this map stores them canonically lower).
func (h Header) Add(name, value string) {
	name = headerCaser.String(name)
	h[name] = append(h[name], value)
}

// Set replaces every value under name with value.
func (h Header) Set(name, value string) {
	h[headerCaser.String(name)] = []string{value}
}

// Get returns the first value under name, or "".
func (h Header) Get(name string) string {
	vs := h[headerCaser.String(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// toFields flattens the map into the ordered field list QPACK encodes.
func (h Header) toFields() []qpack.HeaderField {
	fields := make([]qpack.HeaderField, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			fields = append(fields, qpack.HeaderField{Name: name, Value: v})
		}
	}
	return fields
}

func headerFromFields(fields []qpack.HeaderField) Header {
	h := make(Header, len(fields))
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}
