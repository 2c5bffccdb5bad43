package pseudo

import (
	"testing"

	"github.com/caozhiyi/quicx/qpack"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	line := RequestLine{Method: "GET", Scheme: "https", Authority: "Example.COM", Path: "/users/1"}
	headers := []qpack.HeaderField{{Name: "x-custom", Value: "hello"}}

	fields := EncodeRequest(line, headers)
	if len(fields) != 5 {
		t.Fatalf("expected 4 pseudo-headers + 1 regular, got %d", len(fields))
	}
	if fields[2].Name != ":authority" || fields[2].Value != "example.com" {
		t.Fatalf(":authority not normalized to lowercase: %+v", fields[2])
	}

	gotLine, gotHeaders, err := DecodeRequest(fields)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if gotLine.Method != "GET" || gotLine.Scheme != "https" || gotLine.Authority != "example.com" || gotLine.Path != "/users/1" {
		t.Fatalf("unexpected request line: %+v", gotLine)
	}
	if len(gotHeaders) != 1 || gotHeaders[0].Name != "x-custom" {
		t.Fatalf("unexpected regular headers: %+v", gotHeaders)
	}
}

func TestDecodeRequestMixedOrderRejected(t *testing.T) {
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: "x-custom", Value: "hello"},
		{Name: ":scheme", Value: "https"},
	}
	if _, _, err := DecodeRequest(fields); err != ErrMixedPseudoHeaders {
		t.Fatalf("expected ErrMixedPseudoHeaders, got %v", err)
	}
}

func TestDecodeRequestMissingRequiredPseudoHeader(t *testing.T) {
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
	}
	if _, _, err := DecodeRequest(fields); err != ErrInvalidPseudoHeader {
		t.Fatalf("expected ErrInvalidPseudoHeader, got %v", err)
	}
}

func TestDecodeRequestEmptyAuthorityAllowed(t *testing.T) {
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: ""},
		{Name: ":path", Value: "/"},
	}
	line, _, err := DecodeRequest(fields)
	if err != nil {
		t.Fatalf("empty :authority should be accepted: %v", err)
	}
	if line.Authority != "" {
		t.Fatalf("expected empty authority, got %q", line.Authority)
	}
}

func TestDecodeRequestUnknownPseudoHeaderRejected(t *testing.T) {
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/"},
		{Name: ":bogus", Value: "x"},
	}
	if _, _, err := DecodeRequest(fields); err != ErrInvalidPseudoHeader {
		t.Fatalf("expected ErrInvalidPseudoHeader for unknown pseudo-header, got %v", err)
	}
}

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	headers := []qpack.HeaderField{{Name: "content-type", Value: "text/plain"}}
	fields := EncodeResponse(200, headers)

	status, gotHeaders, err := DecodeResponse(fields)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if status != 200 {
		t.Fatalf("expected status 200, got %d", status)
	}
	if len(gotHeaders) != 1 || gotHeaders[0].Name != "content-type" {
		t.Fatalf("unexpected regular headers: %+v", gotHeaders)
	}
}

func TestDecodeResponseInvalidStatusRejected(t *testing.T) {
	fields := []qpack.HeaderField{{Name: ":status", Value: "999"}}
	if _, _, err := DecodeResponse(fields); err != ErrInvalidPseudoHeader {
		t.Fatalf("expected ErrInvalidPseudoHeader for out-of-range status, got %v", err)
	}

	fields = []qpack.HeaderField{{Name: ":status", Value: "not-a-number"}}
	if _, _, err := DecodeResponse(fields); err != ErrInvalidPseudoHeader {
		t.Fatalf("expected ErrInvalidPseudoHeader for non-numeric status, got %v", err)
	}
}

func TestDecodeResponseMissingStatusRejected(t *testing.T) {
	fields := []qpack.HeaderField{{Name: "content-type", Value: "text/plain"}}
	if _, _, err := DecodeResponse(fields); err != ErrInvalidPseudoHeader {
		t.Fatalf("expected ErrInvalidPseudoHeader for missing :status, got %v", err)
	}
}
