// Package frame implements the HTTP/3 frame codec: encode/decode for
// DATA, HEADERS, SETTINGS, GOAWAY, MAX_PUSH_ID, CANCEL_PUSH, and
// PUSH_PROMISE frames (RFC 9114 Section 7), each framed as
// type-varint || length-varint || payload. Grounded on
// other_examples' saitolume-quic-go http3/conn.go FrameReader and
// MiraiMindz-watt shockwave http3/frames.go for the dispatch shape; see
// DESIGN.md.
package frame

import (
	"errors"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// Type identifies an HTTP/3 frame, RFC 9114 Section 7.2.
type Type uint64

const (
	TypeData        Type = 0x00
	TypeHeaders      Type = 0x01
	TypeCancelPush   Type = 0x03
	TypeSettings     Type = 0x04
	TypePushPromise  Type = 0x05
	TypeGoAway       Type = 0x07
	TypeMaxPushID    Type = 0x0d
)

// ErrUnexpectedFrame is returned when a frame type valid on the wire
// appears somewhere RFC 9114's ordering rules forbid it (H3_FRAME_UNEXPECTED).
var ErrUnexpectedFrame = errors.New("frame: unexpected frame type for this stream")

// Header is a parsed type+length pair, with the reader positioned at the
// start of its payload (length bytes remain to be read).
type Header struct {
	Type   Type
	Length uint64
}

// ParseHeader reads a frame's type and length varints, skipping any
// unknown frame type by returning it to the caller rather than failing —
// RFC 9114 Section 9 requires unknown types to be ignored, not rejected.
func ParseHeader(r io.ByteReader) (Header, error) {
	t, err := quicvarint.Read(r)
	if err != nil {
		return Header{}, err
	}
	l, err := quicvarint.Read(r)
	if err != nil {
		return Header{}, err
	}
	return Header{Type: Type(t), Length: l}, nil
}

// AppendHeader appends a frame's type+length prefix to buf.
func AppendHeader(buf []byte, t Type, length uint64) []byte {
	buf = quicvarint.Append(buf, uint64(t))
	buf = quicvarint.Append(buf, length)
	return buf
}

// DataFrame carries one chunk of a request/response body, RFC 9114
// Section 7.2.1.
type DataFrame struct {
	Data []byte
}

func (f *DataFrame) Append(buf []byte) []byte {
	buf = AppendHeader(buf, TypeData, uint64(len(f.Data)))
	return append(buf, f.Data...)
}

// HeadersFrame carries a QPACK-encoded header block, RFC 9114 Section
// 7.2.2. Decoding the block itself is the qpack package's job; this
// frame only carries the opaque bytes.
type HeadersFrame struct {
	EncodedHeaderBlock []byte
}

func (f *HeadersFrame) Append(buf []byte) []byte {
	buf = AppendHeader(buf, TypeHeaders, uint64(len(f.EncodedHeaderBlock)))
	return append(buf, f.EncodedHeaderBlock...)
}

// SettingsFrame carries the connection's SETTINGS, RFC 9114 Section
// 7.2.4. Known setting IDs are promoted to named fields; everything
// else round-trips through Other unexamined.
type SettingsFrame struct {
	QPACKMaxTableCapacity uint64
	MaxFieldSectionSize   uint64
	QPACKBlockedStreams   uint64
	EnableConnectProtocol bool
	EnablePush            bool // client->server only; RFC 9114 formally removed SETTINGS_ENABLE_PUSH but this core still negotiates server push via it
	MaxConcurrentStreams  uint64 // implementation extension beyond the base RFC settings registry
	Other                 map[uint64]uint64
}

const (
	settingQPACKMaxTableCapacity = 0x01
	settingMaxFieldSectionSize   = 0x06
	settingQPACKBlockedStreams   = 0x07
	settingEnableConnectProto    = 0x08
	settingEnablePush            = 0x02
	// settingMaxConcurrentStreams is a vendor extension ID, chosen out of
	// the reserved-for-private-use range (RFC 9114 Section 7.2.4.1).
	settingMaxConcurrentStreams = 0xff0a
)

func (f *SettingsFrame) Append(buf []byte) []byte {
	var payload []byte
	appendSetting := func(id, v uint64) {
		payload = quicvarint.Append(payload, id)
		payload = quicvarint.Append(payload, v)
	}
	if f.QPACKMaxTableCapacity > 0 {
		appendSetting(settingQPACKMaxTableCapacity, f.QPACKMaxTableCapacity)
	}
	if f.MaxFieldSectionSize > 0 {
		appendSetting(settingMaxFieldSectionSize, f.MaxFieldSectionSize)
	}
	if f.QPACKBlockedStreams > 0 {
		appendSetting(settingQPACKBlockedStreams, f.QPACKBlockedStreams)
	}
	if f.EnableConnectProtocol {
		appendSetting(settingEnableConnectProto, 1)
	}
	if f.EnablePush {
		appendSetting(settingEnablePush, 1)
	}
	if f.MaxConcurrentStreams > 0 {
		appendSetting(settingMaxConcurrentStreams, f.MaxConcurrentStreams)
	}
	for id, v := range f.Other {
		appendSetting(id, v)
	}
	buf = AppendHeader(buf, TypeSettings, uint64(len(payload)))
	return append(buf, payload...)
}

// ParseSettingsFrame decodes a SETTINGS payload of the given length from r.
func ParseSettingsFrame(r io.ByteReader, length uint64) (*SettingsFrame, error) {
	lr := &limitedByteReader{r: r, n: int64(length)}
	sf := &SettingsFrame{Other: make(map[uint64]uint64)}
	for lr.n > 0 {
		id, err := quicvarint.Read(lr)
		if err != nil {
			return nil, err
		}
		v, err := quicvarint.Read(lr)
		if err != nil {
			return nil, err
		}
		switch id {
		case settingQPACKMaxTableCapacity:
			sf.QPACKMaxTableCapacity = v
		case settingMaxFieldSectionSize:
			sf.MaxFieldSectionSize = v
		case settingQPACKBlockedStreams:
			sf.QPACKBlockedStreams = v
		case settingEnableConnectProto:
			sf.EnableConnectProtocol = v == 1
		case settingEnablePush:
			sf.EnablePush = v == 1
		case settingMaxConcurrentStreams:
			sf.MaxConcurrentStreams = v
		default:
			sf.Other[id] = v
		}
	}
	return sf, nil
}

// GoAwayFrame signals the highest stream/push ID the sender will still
// process, RFC 9114 Section 7.2.6.
type GoAwayFrame struct {
	ID uint64
}

func (f *GoAwayFrame) Append(buf []byte) []byte {
	payload := quicvarint.Append(nil, f.ID)
	buf = AppendHeader(buf, TypeGoAway, uint64(len(payload)))
	return append(buf, payload...)
}

// MaxPushIDFrame raises the number of pushes a server may initiate, RFC
// 9114 Section 7.2.7. Client to server only; monotonically increasing.
type MaxPushIDFrame struct {
	ID uint64
}

func (f *MaxPushIDFrame) Append(buf []byte) []byte {
	payload := quicvarint.Append(nil, f.ID)
	buf = AppendHeader(buf, TypeMaxPushID, uint64(len(payload)))
	return append(buf, payload...)
}

// CancelPushFrame aborts a server push the client no longer wants, RFC
// 9114 Section 7.2.3.
type CancelPushFrame struct {
	PushID uint64
}

func (f *CancelPushFrame) Append(buf []byte) []byte {
	payload := quicvarint.Append(nil, f.PushID)
	buf = AppendHeader(buf, TypeCancelPush, uint64(len(payload)))
	return append(buf, payload...)
}

// PushPromiseFrame carries the QPACK-encoded request headers of a
// server-initiated push, RFC 9114 Section 7.2.5, sent on the originating
// request stream.
type PushPromiseFrame struct {
	PushID             uint64
	EncodedHeaderBlock []byte
}

func (f *PushPromiseFrame) Append(buf []byte) []byte {
	var payload []byte
	payload = quicvarint.Append(payload, f.PushID)
	payload = append(payload, f.EncodedHeaderBlock...)
	buf = AppendHeader(buf, TypePushPromise, uint64(len(payload)))
	return append(buf, payload...)
}

// limitedByteReader adapts io.ByteReader to a bounded view, since
// quicvarint.Read only needs ReadByte and SETTINGS parsing must not read
// past its declared length.
type limitedByteReader struct {
	r io.ByteReader
	n int64
}

func (l *limitedByteReader) ReadByte() (byte, error) {
	if l.n <= 0 {
		return 0, io.EOF
	}
	b, err := l.r.ReadByte()
	if err != nil {
		return 0, err
	}
	l.n--
	return b, nil
}
