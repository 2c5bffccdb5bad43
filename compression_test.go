package quicx

import (
	"bytes"
	"testing"
)

func TestCompressDecompressBodyRoundTrip(t *testing.T) {
	original := []byte("hello, quicx, hello, quicx, hello, quicx")

	for _, encoding := range []string{"gzip", "br"} {
		compressed, err := compressBody(encoding, original)
		if err != nil {
			t.Fatalf("compressBody(%q) failed: %v", encoding, err)
		}
		if bytes.Equal(compressed, original) {
			t.Fatalf("compressBody(%q) did not change the body", encoding)
		}
		decompressed, err := decompressBody(encoding, compressed)
		if err != nil {
			t.Fatalf("decompressBody(%q) failed: %v", encoding, err)
		}
		if !bytes.Equal(decompressed, original) {
			t.Fatalf("round trip mismatch for %q: got %q, want %q", encoding, decompressed, original)
		}
	}
}

func TestCompressDecompressBodyIdentity(t *testing.T) {
	original := []byte("unchanged")
	for _, encoding := range []string{"", "identity"} {
		got, err := compressBody(encoding, original)
		if err != nil || !bytes.Equal(got, original) {
			t.Fatalf("compressBody(%q) should pass through unchanged, got %q, err %v", encoding, got, err)
		}
		got, err = decompressBody(encoding, original)
		if err != nil || !bytes.Equal(got, original) {
			t.Fatalf("decompressBody(%q) should pass through unchanged, got %q, err %v", encoding, got, err)
		}
	}
}

func TestDecompressBodyUnsupportedEncoding(t *testing.T) {
	if _, err := decompressBody("deflate", []byte("x")); err == nil {
		t.Fatalf("expected an error for an unsupported content-encoding")
	}
}

func TestDecodeCharsetNoCharsetParamUnchanged(t *testing.T) {
	body := []byte("plain text")
	if got := decodeCharset("text/plain", body); !bytes.Equal(got, body) {
		t.Fatalf("expected body unchanged with no charset param, got %q", got)
	}
	if got := decodeCharset("", body); !bytes.Equal(got, body) {
		t.Fatalf("expected body unchanged with empty content-type, got %q", got)
	}
}

func TestDecodeCharsetUTF8Unchanged(t *testing.T) {
	body := []byte("plain text")
	got := decodeCharset(`text/plain; charset=utf-8`, body)
	if !bytes.Equal(got, body) {
		t.Fatalf("expected utf-8 body unchanged, got %q", got)
	}
}

func TestFinalizeBodyAppliesDecompressWhenEnabled(t *testing.T) {
	original := []byte("decompress me please")
	compressed, err := compressBody("gzip", original)
	if err != nil {
		t.Fatalf("compressBody failed: %v", err)
	}

	header := make(Header)
	header.Set("content-encoding", "gzip")

	opts := ClientOptions{AutoDecompress: true}
	got := finalizeBody(opts, header, compressed)
	if !bytes.Equal(got, original) {
		t.Fatalf("finalizeBody did not decompress: got %q, want %q", got, original)
	}
}

func TestFinalizeBodyLeavesBodyUntouchedWhenDisabled(t *testing.T) {
	original := []byte("decompress me please")
	compressed, err := compressBody("gzip", original)
	if err != nil {
		t.Fatalf("compressBody failed: %v", err)
	}

	header := make(Header)
	header.Set("content-encoding", "gzip")

	opts := ClientOptions{}
	got := finalizeBody(opts, header, compressed)
	if !bytes.Equal(got, compressed) {
		t.Fatalf("finalizeBody should leave body untouched when AutoDecompress is off")
	}
}
