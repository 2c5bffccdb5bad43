package qpack

import "errors"

// Connection-level QPACK errors, per RFC 9204 Section 6.
var (
	// ErrDecompressionFailed is returned when a header block cannot be
	// decoded: malformed prefix, integer overflow, truncated literal, or a
	// dynamic table reference that is out of range.
	ErrDecompressionFailed = errors.New("qpack: decompression failed")

	// ErrEncoderStreamError is returned when an encoder-stream instruction
	// is malformed or would exceed the negotiated dynamic table capacity.
	ErrEncoderStreamError = errors.New("qpack: encoder stream error")

	// ErrDecoderStreamError is returned when a decoder-stream instruction
	// (section acknowledgement, stream cancellation, insert count
	// increment) is malformed or refers to an unknown stream/section.
	ErrDecoderStreamError = errors.New("qpack: decoder stream error")

	// errBlocked is the internal sentinel signaling that a header block
	// could not be completed because RequiredInsertCount has not yet been
	// satisfied by the dynamic table. It is never returned to callers of
	// Decoder.DecodeHeaderBlock; instead it returns (true, nil).
	errBlocked = errors.New("qpack: header block blocked")
)
