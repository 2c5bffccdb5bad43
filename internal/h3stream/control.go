package h3stream

import (
	"bufio"
	"errors"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/caozhiyi/quicx/internal/frame"
	"github.com/caozhiyi/quicx/transport"
)

// ErrMissingSettings is returned when the first frame on a control
// stream is not SETTINGS, RFC 9114 Section 7.2.4.1.
var ErrMissingSettings = errors.New("h3stream: first control-stream frame must be SETTINGS")

// ControlCallbacks are invoked as frames arrive on the peer's control
// stream. Exactly one of OnSettings/OnGoAway/OnMaxPushID/OnCancelPush
// is called per frame; OnSettings always fires first.
type ControlCallbacks struct {
	OnSettings   func(*frame.SettingsFrame)
	OnGoAway     func(id uint64)
	OnMaxPushID  func(id uint64)
	OnCancelPush func(pushID uint64)
}

// ControlSendStream is this endpoint's send-only control stream: it
// carries our SETTINGS (sent once, immediately) followed by any
// GOAWAY / MAX_PUSH_ID / CANCEL_PUSH frames we originate.
type ControlSendStream struct {
	send transport.SendStream
}

// NewControlSendStream opens the control stream's type prefix and
// sends settings immediately — RFC 9114 Section 7.2.4.1 requires
// SETTINGS be sent first and at most once.
func NewControlSendStream(send transport.SendStream, settings *frame.SettingsFrame) (*ControlSendStream, error) {
	buf := AppendStreamType(nil, TypeControl)
	buf = settings.Append(buf)
	if _, err := send.Write(buf); err != nil {
		return nil, err
	}
	return &ControlSendStream{send: send}, nil
}

func (c *ControlSendStream) GoAway(id uint64) error {
	f := &frame.GoAwayFrame{ID: id}
	_, err := c.send.Write(f.Append(nil))
	return err
}

func (c *ControlSendStream) MaxPushID(id uint64) error {
	f := &frame.MaxPushIDFrame{ID: id}
	_, err := c.send.Write(f.Append(nil))
	return err
}

func (c *ControlSendStream) CancelPush(pushID uint64) error {
	f := &frame.CancelPushFrame{PushID: pushID}
	_, err := c.send.Write(f.Append(nil))
	return err
}

// RunControlRecvStream reads frames from the peer's control stream
// until it errors or the stream closes, rejecting anything other than
// SETTINGS as the first frame and dispatching every subsequent frame
// to cb. The peer closing the stream returns ErrCriticalStreamClosed. It blocks; callers run it in its own goroutine, as teacher's
// HandleUnidirectionalStreams does for the (single, equivalent)
// control stream handling.
func RunControlRecvStream(recv transport.ReceiveStream, cb ControlCallbacks) error {
	r := bufio.NewReader(recv)

	first := true
	for {
		hdr, err := frame.ParseHeader(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrCriticalStreamClosed
			}
			return err
		}

		if first {
			if hdr.Type != frame.TypeSettings {
				return ErrMissingSettings
			}
			first = false
		}

		switch hdr.Type {
		case frame.TypeSettings:
			sf, err := frame.ParseSettingsFrame(r, hdr.Length)
			if err != nil {
				return err
			}
			if cb.OnSettings != nil {
				cb.OnSettings(sf)
			}
		case frame.TypeGoAway:
			id, err := readVarintPayload(r, hdr.Length)
			if err != nil {
				return err
			}
			if cb.OnGoAway != nil {
				cb.OnGoAway(id)
			}
		case frame.TypeMaxPushID:
			id, err := readVarintPayload(r, hdr.Length)
			if err != nil {
				return err
			}
			if cb.OnMaxPushID != nil {
				cb.OnMaxPushID(id)
			}
		case frame.TypeCancelPush:
			id, err := readVarintPayload(r, hdr.Length)
			if err != nil {
				return err
			}
			if cb.OnCancelPush != nil {
				cb.OnCancelPush(id)
			}
		default:
			// RFC 9114 Section 9: unknown frame types on a known stream
			// type are ignored, after skipping their payload.
			if err := skip(r, hdr.Length); err != nil {
				return err
			}
		}
	}
}

// readVarintPayload reads a single-varint frame payload (GOAWAY,
// MAX_PUSH_ID, CANCEL_PUSH all carry exactly one). length is the
// frame's declared byte length; it is not otherwise enforced here
// since quicvarint.Read naturally consumes only the bytes the varint
// needs and a well-formed frame's length matches that exactly.
func readVarintPayload(r *bufio.Reader, length uint64) (uint64, error) {
	return quicvarint.Read(r)
}

func skip(r *bufio.Reader, length uint64) error {
	_, err := io.CopyN(io.Discard, r, int64(length))
	return err
}
