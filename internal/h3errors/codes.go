// Package h3errors defines the HTTP/3 and QPACK application-error codes,
// RFC 9114 Section 8 and RFC 9204 Section 6, used as
// quic.ApplicationErrorCode / quic.StreamErrorCode values across the
// stream layer and connection coordinator.
package h3errors

// Code is an HTTP/3 application-protocol error code.
type Code uint64

// Connection-level errors, RFC 9114 Section 8.1.
const (
	NoError                  Code = 0x0100
	GeneralProtocolError     Code = 0x0101
	InternalError            Code = 0x0102
	StreamCreationError      Code = 0x0103
	ClosedCriticalStream     Code = 0x0104
	FrameUnexpected          Code = 0x0105
	FrameError               Code = 0x0106
	ExcessiveLoad            Code = 0x0107
	IDError                  Code = 0x0108
	SettingsError            Code = 0x0109
	MissingSettings          Code = 0x010a
	RequestRejected          Code = 0x010b
	RequestCancelled         Code = 0x010c
	RequestIncomplete        Code = 0x010d
	MessageError             Code = 0x010e
	ConnectError             Code = 0x010f
	VersionFallback          Code = 0x0110
)

// QPACK errors, RFC 9204 Section 6.
const (
	QPACKDecompressionFailed Code = 0x0200
	QPACKEncoderStreamError  Code = 0x0201
	QPACKDecoderStreamError  Code = 0x0202
)

func (c Code) String() string {
	switch c {
	case NoError:
		return "H3_NO_ERROR"
	case GeneralProtocolError:
		return "H3_GENERAL_PROTOCOL_ERROR"
	case InternalError:
		return "H3_INTERNAL_ERROR"
	case StreamCreationError:
		return "H3_STREAM_CREATION_ERROR"
	case ClosedCriticalStream:
		return "H3_CLOSED_CRITICAL_STREAM"
	case FrameUnexpected:
		return "H3_FRAME_UNEXPECTED"
	case FrameError:
		return "H3_FRAME_ERROR"
	case ExcessiveLoad:
		return "H3_EXCESSIVE_LOAD"
	case IDError:
		return "H3_ID_ERROR"
	case SettingsError:
		return "H3_SETTINGS_ERROR"
	case MissingSettings:
		return "H3_MISSING_SETTINGS"
	case RequestRejected:
		return "H3_REQUEST_REJECTED"
	case RequestCancelled:
		return "H3_REQUEST_CANCELLED"
	case RequestIncomplete:
		return "H3_REQUEST_INCOMPLETE"
	case MessageError:
		return "H3_MESSAGE_ERROR"
	case ConnectError:
		return "H3_CONNECT_ERROR"
	case VersionFallback:
		return "H3_VERSION_FALLBACK"
	case QPACKDecompressionFailed:
		return "QPACK_DECOMPRESSION_FAILED"
	case QPACKEncoderStreamError:
		return "QPACK_ENCODER_STREAM_ERROR"
	case QPACKDecoderStreamError:
		return "QPACK_DECODER_STREAM_ERROR"
	default:
		return "H3_UNKNOWN_ERROR"
	}
}
