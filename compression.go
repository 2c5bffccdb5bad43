package quicx

import (
	"bytes"
	"fmt"
	"io"
	"mime"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// decompressBody reverses a response's Content-Encoding, grounded on
// teacher's EnableAutoDecompress/DisableAutoDecompress toggle — this
// core narrows that concern from the negotiated-on-dial-Transport
// shape to a per-response helper finalizeBody calls once a client
// response body is complete. "identity" and "" pass the body through
// unchanged; any other coding is reported rather than guessed at.
func decompressBody(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("quicx: gzip decode: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	default:
		return nil, fmt.Errorf("quicx: unsupported content-encoding %q", encoding)
	}
}

// compressBody applies encoding to body for an outbound message,
// the send-side counterpart teacher's Transport applies automatically
// when "Accept-Encoding: gzip" round-trips a gzipped response; here
// the caller (client or handler) opts in explicitly per request by
// choosing the encoding rather than the Transport choosing it for them.
func compressBody(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip":
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "br":
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		if _, err := bw.Write(body); err != nil {
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("quicx: unsupported content-encoding %q", encoding)
	}
}

// decodeCharset transcodes body to UTF-8 according to the charset
// parameter on contentType, grounded on teacher's
// SetAutoDecodeContentType/EnableAutoDecodeAllContentType feature
// ("auto-detect charset and decode all content type to utf-8"). A
// missing charset parameter, or one htmlindex doesn't recognize,
// leaves body untouched — this is a best-effort convenience, not a
// strict protocol requirement.
func decodeCharset(contentType string, body []byte) []byte {
	if contentType == "" {
		return body
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	charset := params["charset"]
	if charset == "" || charset == "utf-8" || charset == "UTF-8" {
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return body
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return body
	}
	return decoded
}

// finalizeBody applies auto-decompress and auto-charset-decode to a
// completed response body according to opts, mutating nothing if both
// are disabled. Both are off by default in ClientOptions.
func finalizeBody(opts ClientOptions, header Header, body []byte) []byte {
	if opts.AutoDecompress {
		if decoded, err := decompressBody(header.Get("content-encoding"), body); err == nil {
			body = decoded
		}
	}
	if opts.AutoDecodeCharset {
		body = decodeCharset(header.Get("content-type"), body)
	}
	return body
}
