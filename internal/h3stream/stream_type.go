// Package h3stream implements the per-stream state machines driven by
// the connection coordinator: the unidentified-stream type sniffer,
// the control stream, the QPACK encoder/decoder stream wrappers, the
// request/response bidirectional stream, and the server-push streams.
// Grounded on original_source/src/http3/stream/*.h and teacher's
// internal/http3 stream handling; see DESIGN.md.
//
// This package knows about wire-level HTTP/3 concepts (pseudo-headers,
// QPACK header fields, frames) but nothing about the root package's
// Request/Response types — it reports decoded headers and body chunks
// through plain callbacks, and the root package is the one that turns
// those into Request/Response objects and invokes user handlers. This
// keeps the dependency direction leaves-first: h3stream sits below the
// public surface, not beside it.
package h3stream

import "github.com/quic-go/quic-go/quicvarint"

// Type is a unidirectional HTTP/3 stream type, RFC 9114 Section 6.2 /
// RFC 9204 Section 4.2.
type Type uint64

const (
	TypeControl      Type = 0x00
	TypePush         Type = 0x01
	TypeQPACKEncoder Type = 0x02
	TypeQPACKDecoder Type = 0x03
)

// AppendStreamType appends a unidirectional stream's type prefix, sent
// once as the first bytes of the stream.
func AppendStreamType(buf []byte, t Type) []byte {
	return quicvarint.Append(buf, uint64(t))
}
