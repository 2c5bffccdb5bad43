package h3stream

import (
	"github.com/quic-go/quic-go/quicvarint"

	"github.com/caozhiyi/quicx/transport"
)

// IdentifyStream reads the single type varint that opens every
// unidirectional HTTP/3 stream (RFC 9114 Section 6.2) and reports it.
// Unlike original_source's UnidentifiedStream, which buffers bytes
// until a full varint has arrived because its transport delivers data
// asynchronously in chunks, this blocks on transport.ReceiveStream's
// plain io.Reader — quicvarint.Read pulls exactly as many bytes as the
// varint needs and leaves the rest on the stream for whatever reads
// next, so no replay buffer is needed.
func IdentifyStream(s transport.ReceiveStream) (Type, error) {
	t, err := quicvarint.Read(quicvarint.NewReader(s))
	if err != nil {
		return 0, err
	}
	return Type(t), nil
}
