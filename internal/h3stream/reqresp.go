package h3stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/caozhiyi/quicx/internal/frame"
	"github.com/caozhiyi/quicx/internal/pseudo"
	"github.com/caozhiyi/quicx/qpack"
	"github.com/caozhiyi/quicx/transport"
)

// ErrUnexpectedBody is returned when DATA arrives before any HEADERS
// frame has been decoded.
var ErrUnexpectedBody = errors.New("h3stream: DATA frame before HEADERS")

// RequestResponseCallbacks are invoked as a request/response bidi
// stream's frames decode, in wire order: exactly one of
// OnRequestHeaders/OnResponseHeaders, then zero or more OnBodyChunk,
// then an optional OnTrailers — mirroring req_resp_base_stream.h's
// HandleHeaders/HandleData split, generalized here to one struct for
// both stream roles instead of a base class with two subclasses
// (request_stream.h / response_stream.h), since Go favors a role flag
// over inheritance for two very similar state machines.
type RequestResponseCallbacks struct {
	OnRequestHeaders  func(pseudo.RequestLine, []qpack.HeaderField)
	OnResponseHeaders func(status int, headers []qpack.HeaderField)
	OnBodyChunk       func(data []byte, last bool)
	OnTrailers        func([]qpack.HeaderField)

	// OnPushPromise fires when a PUSH_PROMISE frame arrives on this
	// request stream (client side only; a server never receives one),
	// RFC 9114 Section 7.2.5. The pushed response itself arrives later
	// on a separate push stream, matched by pushID.
	OnPushPromise func(pushID uint64, line pseudo.RequestLine, headers []qpack.HeaderField)
}

// Stream drives one request/response exchange on a bidirectional QUIC
// stream: QPACK-encoding outbound headers, framing outbound data, and
// decoding inbound HEADERS/DATA/trailing-HEADERS in order.
type Stream struct {
	stream transport.Stream
	enc    *qpack.Encoder
	dec    *qpack.Decoder
	cb     RequestResponseCallbacks

	section uint64 // 0 = leading headers, 1 = trailers
}

// NewStream wraps an already-open bidirectional stream. enc/dec are
// the connection's shared QPACK encoder/decoder — one dynamic table
// per direction, per connection, RFC 9204 Section 2.1.
func NewStream(s transport.Stream, enc *qpack.Encoder, dec *qpack.Decoder, cb RequestResponseCallbacks) *Stream {
	return &Stream{stream: s, enc: enc, dec: dec, cb: cb}
}

func (s *Stream) StreamID() transport.StreamID { return s.stream.StreamID() }

// SendRequestHeaders QPACK-encodes and sends the request line plus
// headers as a single HEADERS frame.
func (s *Stream) SendRequestHeaders(line pseudo.RequestLine, headers []qpack.HeaderField) error {
	fields := pseudo.EncodeRequest(line, headers)
	return s.sendHeaderBlock(fields)
}

// SendResponseHeaders is the response-side analogue.
func (s *Stream) SendResponseHeaders(status int, headers []qpack.HeaderField) error {
	fields := pseudo.EncodeResponse(status, headers)
	return s.sendHeaderBlock(fields)
}

// SendTrailers sends a trailing HEADERS frame (no pseudo-headers
// permitted, RFC 9114 Section 4.3).
func (s *Stream) SendTrailers(headers []qpack.HeaderField) error {
	return s.sendHeaderBlock(headers)
}

func (s *Stream) sendHeaderBlock(fields []qpack.HeaderField) error {
	block, refs, err := s.enc.EncodeHeaderBlock(fields)
	if err != nil {
		return err
	}
	s.enc.TrackSection(uint64(s.stream.StreamID()), refs)
	hf := &frame.HeadersFrame{EncodedHeaderBlock: block}
	_, err = s.stream.Write(hf.Append(nil))
	return err
}

// SendData sends one DATA frame carrying chunk.
func (s *Stream) SendData(chunk []byte) error {
	df := &frame.DataFrame{Data: chunk}
	_, err := s.stream.Write(df.Append(nil))
	return err
}

// CloseSend closes the send side (FIN), signaling no more frames follow.
func (s *Stream) CloseSend() error { return s.stream.Close() }

// Reset aborts both directions of the stream and tells the QPACK
// decoder to give up on any header block still blocked for it — the
// leading-headers and trailer sections are the only two this stream
// type ever decodes, so both are cancelled unconditionally rather than
// tracking which one was actually outstanding.
func (s *Stream) Reset(code transport.ErrorCode) {
	s.stream.CancelWrite(code)
	s.stream.CancelRead(code)
	s.dec.CancelStream(uint64(s.stream.StreamID()), []uint64{0, 1})
}

// Run reads frames until the stream closes or errors, dispatching
// decoded headers/body/trailers to cb in wire order. It blocks; run it
// in its own goroutine per stream, as the connection coordinator does
// for every accepted or opened request stream.
func (s *Stream) Run() error {
	return runFrameLoop(s.stream, uint64(s.stream.StreamID()), s.dec, s.cb)
}

// runFrameLoop reads HEADERS/DATA/trailing-HEADERS frames from r in
// order and dispatches them to cb, blocking on the QPACK decoder
// whenever a header block's Required Insert Count isn't satisfied yet,
// resolved once whatever goroutine later advances the dynamic table
// (the connection's QPACK encoder-stream reader) or acknowledges the
// section. Shared by
// Stream.Run (bidi request/response) and PushRecvStream.Run (uni push
// response), since both decode the identical HEADERS/DATA/HEADERS
// sequence once their respective stream-specific preamble (nothing, or
// the push ID) has been consumed.
func runFrameLoop(r io.Reader, sectionKey uint64, dec *qpack.Decoder, cb RequestResponseCallbacks) error {
	br := bufio.NewReader(r)
	bodyStarted := false
	var section uint64

	for {
		hdr, err := frame.ParseHeader(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if cb.OnBodyChunk != nil {
					cb.OnBodyChunk(nil, true)
				}
				return nil
			}
			return err
		}

		switch hdr.Type {
		case frame.TypeHeaders:
			block := make([]byte, hdr.Length)
			if _, err := io.ReadFull(br, block); err != nil {
				return err
			}
			isTrailers := bodyStarted
			if err := decodeHeaderBlock(dec, sectionKey, section, block, isTrailers, cb); err != nil {
				return err
			}
			section++
			if isTrailers {
				// Trailing HEADERS is always the last frame on this
				// stream per RFC 9114 Section 4.1.
				if cb.OnBodyChunk != nil {
					cb.OnBodyChunk(nil, true)
				}
				return nil
			}
		case frame.TypeData:
			bodyStarted = true
			data := make([]byte, hdr.Length)
			if _, err := io.ReadFull(br, data); err != nil {
				return err
			}
			if cb.OnBodyChunk != nil {
				cb.OnBodyChunk(data, false)
			}
		case frame.TypePushPromise:
			payload := make([]byte, hdr.Length)
			if _, err := io.ReadFull(br, payload); err != nil {
				return err
			}
			if cb.OnPushPromise != nil {
				pushID, block, err := splitPushPromisePayload(payload)
				if err != nil {
					return err
				}
				line, headers, err := decodePushPromiseBlock(dec, pushID, block)
				if err != nil {
					return err
				}
				cb.OnPushPromise(pushID, line, headers)
			}
		default:
			if _, err := io.CopyN(io.Discard, br, int64(hdr.Length)); err != nil {
				return err
			}
		}
	}
}

// splitPushPromisePayload separates a PUSH_PROMISE frame's leading Push
// ID varint from its QPACK-encoded header block.
func splitPushPromisePayload(payload []byte) (pushID uint64, block []byte, err error) {
	r := bytes.NewReader(payload)
	pushID, err = quicvarint.Read(r)
	if err != nil {
		return 0, nil, err
	}
	return pushID, payload[len(payload)-r.Len():], nil
}

// decodePushPromiseBlock decodes a PUSH_PROMISE header block, blocking
// this goroutine until the QPACK decoder resolves it. Push Promise
// header blocks reference the dynamic table under the Push ID's own
// number space, per RFC 9204 Section 4.5.3.
func decodePushPromiseBlock(dec *qpack.Decoder, pushID uint64, block []byte) (pseudo.RequestLine, []qpack.HeaderField, error) {
	done := make(chan struct{})
	var fields []qpack.HeaderField
	var decErr error
	_, err := dec.DecodeHeaderBlock(pushID, 0, block, func(res qpack.DecodeResult, e error) {
		fields, decErr = res.Fields, e
		close(done)
	})
	if err != nil {
		return pseudo.RequestLine{}, nil, err
	}
	<-done
	if decErr != nil {
		return pseudo.RequestLine{}, nil, decErr
	}
	return pseudo.DecodeRequest(fields)
}

// decodeHeaderBlock decodes one header block and blocks (this
// goroutine only) until the QPACK decoder resolves it.
func decodeHeaderBlock(dec *qpack.Decoder, sectionKey, section uint64, block []byte, isTrailers bool, cb RequestResponseCallbacks) error {
	done := make(chan struct{})
	var fields []qpack.HeaderField
	var decErr error

	_, err := dec.DecodeHeaderBlock(sectionKey, section, block, func(res qpack.DecodeResult, e error) {
		fields, decErr = res.Fields, e
		close(done)
	})
	if err != nil {
		return err
	}
	<-done
	if decErr != nil {
		return decErr
	}

	if isTrailers {
		if cb.OnTrailers != nil {
			cb.OnTrailers(fields)
		}
		return nil
	}

	if cb.OnRequestHeaders != nil {
		line, headers, err := pseudo.DecodeRequest(fields)
		if err != nil {
			return err
		}
		cb.OnRequestHeaders(line, headers)
		return nil
	}
	if cb.OnResponseHeaders != nil {
		status, headers, err := pseudo.DecodeResponse(fields)
		if err != nil {
			return err
		}
		cb.OnResponseHeaders(status, headers)
		return nil
	}
	return nil
}
