// Package pseudo encodes and decodes the :method, :scheme, :authority,
// :path, and :status pseudo-headers to and from a plain header-field
// list, RFC 9114 Section 4.3. Grounded on
// original_source/src/http3/stream/pseudo_header.h's
// EncodeRequest/DecodeRequest/EncodeResponse/DecodeResponse, translated
// from a singleton (PseudoHeader::Instance()) to stateless package
// functions — idiomatic Go has no reason to make this a singleton for
// a comparable pure-function codec.
package pseudo

import (
	"errors"
	"strconv"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/caozhiyi/quicx/qpack"
)

// authorityCaser lowercases a :authority value the Unicode-safe way
// (hostnames are case-insensitive; a plain ASCII strings.ToLower would
// mishandle non-ASCII authority forms, e.g. IDN hosts carried verbatim
// rather than punycode-encoded).
var authorityCaser = cases.Lower(language.Und)

func normalizeAuthority(authority string) string {
	if authority == "" {
		return authority
	}
	return authorityCaser.String(authority)
}

// ErrMixedPseudoHeaders is returned when a pseudo-header field appears
// after a regular header field, violating RFC 9114 Section 4.3's
// ordering requirement.
var ErrMixedPseudoHeaders = errors.New("pseudo: pseudo-header fields must precede all regular header fields")

// ErrInvalidPseudoHeader is returned when a required pseudo-header is
// missing or a present one fails validation.
var ErrInvalidPseudoHeader = errors.New("pseudo: invalid or missing pseudo-header")

const (
	headerMethod    = ":method"
	headerScheme    = ":scheme"
	headerAuthority = ":authority"
	headerPath      = ":path"
	headerStatus    = ":status"
)

// RequestLine is the subset of IRequest needed to encode/decode
// pseudo-headers, kept minimal so this package has no dependency on the
// root package's Request type (avoids an import cycle: root imports
// pseudo, not the reverse).
type RequestLine struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
}

// EncodeRequest prepends :method, :scheme, :authority, :path to headers,
// in that order, as RFC 9114 Section 4.3 requires for the pseudo-headers
// to precede regular fields.
func EncodeRequest(line RequestLine, headers []qpack.HeaderField) []qpack.HeaderField {
	out := make([]qpack.HeaderField, 0, len(headers)+4)
	out = append(out,
		qpack.HeaderField{Name: headerMethod, Value: line.Method},
		qpack.HeaderField{Name: headerScheme, Value: line.Scheme},
		qpack.HeaderField{Name: headerAuthority, Value: normalizeAuthority(line.Authority)},
		qpack.HeaderField{Name: headerPath, Value: line.Path},
	)
	return append(out, headers...)
}

// DecodeRequest splits fields into the request line and the remaining
// regular headers. It rejects a pseudo-header appearing after the first
// regular header, and rejects a request missing :method, :scheme, or
// :path (or carrying an empty value for one of them). :authority is not
// required: it may be absent or empty (a common relaxation of RFC 9114
// Section 4.3.1).
func DecodeRequest(fields []qpack.HeaderField) (RequestLine, []qpack.HeaderField, error) {
	var line RequestLine
	var seenRegular bool
	headers := make([]qpack.HeaderField, 0, len(fields))

	for _, f := range fields {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			if seenRegular {
				return RequestLine{}, nil, ErrMixedPseudoHeaders
			}
			switch f.Name {
			case headerMethod:
				line.Method = f.Value
			case headerScheme:
				line.Scheme = f.Value
			case headerAuthority:
				line.Authority = f.Value
			case headerPath:
				line.Path = f.Value
			default:
				return RequestLine{}, nil, ErrInvalidPseudoHeader
			}
			continue
		}
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return RequestLine{}, nil, ErrInvalidPseudoHeader
		}
		seenRegular = true
		headers = append(headers, f)
	}

	if line.Method == "" || line.Scheme == "" || line.Path == "" {
		return RequestLine{}, nil, ErrInvalidPseudoHeader
	}
	return line, headers, nil
}

// EncodeResponse prepends :status to headers.
func EncodeResponse(status int, headers []qpack.HeaderField) []qpack.HeaderField {
	out := make([]qpack.HeaderField, 0, len(headers)+1)
	out = append(out, qpack.HeaderField{Name: headerStatus, Value: strconv.Itoa(status)})
	return append(out, headers...)
}

// DecodeResponse splits fields into the status code and remaining
// regular headers.
func DecodeResponse(fields []qpack.HeaderField) (int, []qpack.HeaderField, error) {
	var status int
	var haveStatus bool
	var seenRegular bool
	headers := make([]qpack.HeaderField, 0, len(fields))

	for _, f := range fields {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			if seenRegular {
				return 0, nil, ErrMixedPseudoHeaders
			}
			if f.Name != headerStatus {
				return 0, nil, ErrInvalidPseudoHeader
			}
			v, err := strconv.Atoi(f.Value)
			if err != nil || v < 100 || v > 599 {
				return 0, nil, ErrInvalidPseudoHeader
			}
			status, haveStatus = v, true
			continue
		}
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return 0, nil, ErrInvalidPseudoHeader
		}
		seenRegular = true
		headers = append(headers, f)
	}
	if !haveStatus {
		return 0, nil, ErrInvalidPseudoHeader
	}
	return status, headers, nil
}
