package qpack

import "testing"

func TestHuffmanRoundTripNonByteAligned(t *testing.T) {
	// Each of these has a Huffman-coded bit length that is not a
	// multiple of 8, so decoding exercises the trailing-padding check.
	cases := []string{"a", "GET", "/users/1", "example.com"}
	for _, s := range cases {
		bits := 0
		for i := 0; i < len(s); i++ {
			bits += int(huffmanCodeLen[s[i]])
		}
		if bits%8 == 0 {
			t.Fatalf("test fixture %q is unexpectedly byte-aligned (%d bits); pick a different string", s, bits)
		}

		encoded := appendHuffman(nil, s)
		got, err := huffmanDecode(encoded)
		if err != nil {
			t.Fatalf("huffmanDecode(%q) failed: %v", s, err)
		}
		if got != s {
			t.Fatalf("huffmanDecode round trip: got %q, want %q", got, s)
		}
	}
}

func TestHuffmanRoundTripByteAligned(t *testing.T) {
	// "aaaaaaaa" is 8*5=40 bits, a multiple of 8: no padding byte at all.
	s := "aaaaaaaa"
	bits := 0
	for i := 0; i < len(s); i++ {
		bits += int(huffmanCodeLen[s[i]])
	}
	if bits%8 != 0 {
		t.Fatalf("test fixture %q is unexpectedly non-byte-aligned (%d bits)", s, bits)
	}

	encoded := appendHuffman(nil, s)
	got, err := huffmanDecode(encoded)
	if err != nil {
		t.Fatalf("huffmanDecode(%q) failed: %v", s, err)
	}
	if got != s {
		t.Fatalf("huffmanDecode round trip: got %q, want %q", got, s)
	}
}

func TestHuffmanDecodeRejectsNonAllOnesPadding(t *testing.T) {
	s := "a" // 5 bits, 3 bits of padding
	encoded := appendHuffman(nil, s)
	if len(encoded) != 1 {
		t.Fatalf("expected a single encoded byte for %q, got %d", s, len(encoded))
	}

	// Flip the lowest (final padding) bit from 1 to 0: the codeword
	// bits are untouched, only the all-ones padding is corrupted.
	corrupted := []byte{encoded[0] &^ 1}
	if _, err := huffmanDecode(corrupted); err != ErrDecompressionFailed {
		t.Fatalf("expected ErrDecompressionFailed for non-all-ones padding, got %v", err)
	}
}

func TestHuffmanDecodeRejectsOverlongPadding(t *testing.T) {
	// Two bytes of pure EOS-prefix ones with no real symbol ever
	// completes: more than 7 bits of leftover padding must be rejected.
	corrupted := []byte{0xff, 0xff}
	if _, err := huffmanDecode(corrupted); err != ErrDecompressionFailed {
		t.Fatalf("expected ErrDecompressionFailed for overlong padding, got %v", err)
	}
}
