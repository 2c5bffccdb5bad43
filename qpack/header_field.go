package qpack

// headerField is a single (name, value) header pair, ASCII-lowercase
// name, as stored in the static and dynamic tables and returned by
// Decoder.DecodeHeaderBlock. The exported alias HeaderField is what
// callers outside the package work with.
type headerField struct {
	Name  string
	Value string
}

// HeaderField is a single (name, value) header pair. Names are expected
// to already be ASCII-lowercase; see internal/pseudo for pseudo-header
// handling and golang.org/x/net/http/httpguts for validation.
type HeaderField = headerField

// size is the entry's contribution to dynamic-table accounting, RFC 9204
// Section 3.2.1: name length + value length + 32.
func (f headerField) size() uint64 {
	return uint64(len(f.Name)) + uint64(len(f.Value)) + 32
}
