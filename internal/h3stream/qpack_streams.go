package h3stream

import (
	"io"

	"github.com/caozhiyi/quicx/transport"
)

// OpenQPACKEncoderSendStream opens our outbound QPACK encoder stream
// (RFC 9204 Section 4.2), writing only the type prefix; subsequent
// writes are raw encoder-stream instructions from a qpack.Encoder's
// onInstruction callback.
func OpenQPACKEncoderSendStream(send transport.SendStream) error {
	_, err := send.Write(AppendStreamType(nil, TypeQPACKEncoder))
	return err
}

// OpenQPACKDecoderSendStream is the decoder-stream analogue.
func OpenQPACKDecoderSendStream(send transport.SendStream) error {
	_, err := send.Write(AppendStreamType(nil, TypeQPACKDecoder))
	return err
}

// RunQPACKEncoderRecvStream forwards every byte received on the peer's
// QPACK encoder stream to apply, which should be
// (*qpack.Decoder).ApplyEncoderInstructions. The stream never closes
// under normal operation (RFC 9204 Section 4.2: "this stream ...
// critical ... MUST NOT be closed"); EOF here returns
// ErrCriticalStreamClosed, which the caller raises as a connection error
// (h3errors.ClosedCriticalStream). Any other read error is returned
// unchanged.
func RunQPACKEncoderRecvStream(recv transport.ReceiveStream, apply func([]byte) error) error {
	buf := make([]byte, 4096)
	for {
		n, err := recv.Read(buf)
		if n > 0 {
			if aerr := apply(buf[:n]); aerr != nil {
				return aerr
			}
		}
		if err != nil {
			if err == io.EOF {
				return ErrCriticalStreamClosed
			}
			return err
		}
	}
}

// RunQPACKDecoderRecvStream forwards bytes from the peer's QPACK
// decoder stream to apply, which should decode Section
// Acknowledgement / Stream Cancellation / Insert Count Increment
// instructions and drive (*qpack.Encoder) bookkeeping.
func RunQPACKDecoderRecvStream(recv transport.ReceiveStream, apply func([]byte) error) error {
	return RunQPACKEncoderRecvStream(recv, apply)
}

// ErrCriticalStreamClosed is returned when a stream RFC 9114 Section
// 6.2.1 designates critical (control, QPACK encoder, QPACK decoder)
// is closed by the peer (EOF). A reset surfaces as the transport's own
// read error instead.
var ErrCriticalStreamClosed = criticalStreamClosedError{}

type criticalStreamClosedError struct{}

func (criticalStreamClosedError) Error() string { return "h3stream: critical stream closed" }
