package h3stream

import (
	"github.com/quic-go/quic-go/quicvarint"

	"github.com/caozhiyi/quicx/internal/frame"
	"github.com/caozhiyi/quicx/internal/pseudo"
	"github.com/caozhiyi/quicx/qpack"
	"github.com/caozhiyi/quicx/transport"
)

// SendPushPromise emits a PUSH_PROMISE frame on the originating request
// stream, RFC 9114 Section 7.2.5. It must be sent before that stream's
// send side is closed (FIN).
func (s *Stream) SendPushPromise(pushID uint64, line pseudo.RequestLine, headers []qpack.HeaderField) error {
	fields := pseudo.EncodeRequest(line, headers)
	block, refs, err := s.enc.EncodeHeaderBlock(fields)
	if err != nil {
		return err
	}
	s.enc.TrackSection(pushID, refs)
	pf := &frame.PushPromiseFrame{PushID: pushID, EncodedHeaderBlock: block}
	_, err = s.stream.Write(pf.Append(nil))
	return err
}

// PushSendStream is the server's send side of an actual pushed
// response, opened after a PUSH_PROMISE and the configured
// push_wait_delay, grounded on original_source's push_sender_stream.h.
type PushSendStream struct {
	send   transport.SendStream
	enc    *qpack.Encoder
	pushID uint64
}

// OpenPushSendStream opens a new unidirectional push stream and writes
// its type prefix and push ID, RFC 9114 Section 4.6.
func OpenPushSendStream(send transport.SendStream, enc *qpack.Encoder, pushID uint64) (*PushSendStream, error) {
	buf := AppendStreamType(nil, TypePush)
	buf = quicvarint.Append(buf, pushID)
	if _, err := send.Write(buf); err != nil {
		return nil, err
	}
	return &PushSendStream{send: send, enc: enc, pushID: pushID}, nil
}

func (p *PushSendStream) SendResponseHeaders(status int, headers []qpack.HeaderField) error {
	fields := pseudo.EncodeResponse(status, headers)
	block, refs, err := p.enc.EncodeHeaderBlock(fields)
	if err != nil {
		return err
	}
	p.enc.TrackSection(p.pushID, refs)
	hf := &frame.HeadersFrame{EncodedHeaderBlock: block}
	_, err = p.send.Write(hf.Append(nil))
	return err
}

func (p *PushSendStream) SendData(chunk []byte) error {
	df := &frame.DataFrame{Data: chunk}
	_, err := p.send.Write(df.Append(nil))
	return err
}

func (p *PushSendStream) Close() error { return p.send.Close() }

// PushRecvStream is the client's receive side of a pushed response,
// grounded on original_source's push_receiver_stream.h. The caller
// reads the push ID with ReadPushID before constructing one, exactly
// as it reads a control/QPACK stream's type before dispatch.
type PushRecvStream struct {
	recv transport.ReceiveStream
	dec  *qpack.Decoder
}

// ReadPushID reads the push stream's push-ID varint, the payload
// immediately following the already-consumed type prefix.
func ReadPushID(recv transport.ReceiveStream) (uint64, error) {
	return quicvarint.Read(quicvarint.NewReader(recv))
}

func NewPushRecvStream(recv transport.ReceiveStream, dec *qpack.Decoder) *PushRecvStream {
	return &PushRecvStream{recv: recv, dec: dec}
}

// Run decodes the pushed response's HEADERS/DATA/trailing-HEADERS,
// dispatching to cb exactly like Stream.Run. sectionKey scopes the
// QPACK blocked-registry key; callers pass the push ID's stream-ID
// space reserved for this purpose (push responses have no bidi stream
// ID of their own to key blocking on).
func (p *PushRecvStream) Run(sectionKey uint64, cb RequestResponseCallbacks) error {
	return runFrameLoop(p.recv, sectionKey, p.dec, cb)
}
