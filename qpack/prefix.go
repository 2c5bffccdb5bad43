package qpack

import "bufio"

// Header-block prefix encode/decode, RFC 9204 Section 4.5.1. The prefix
// carries Required Insert Count and Base using the "base modulus"
// encoding so a block survives reordering: the raw insert count is
// reduced modulo 2*MaxEntries before transmission, and the receiver
// reconstructs it from its own current insert count.

// maxEntries is the largest number of entries capacity could ever hold,
// used as the modulus for the insert-count wraparound encoding.
func maxEntries(capacity uint64) uint64 {
	return capacity / 32
}

func encodeRequiredInsertCount(ric, capacity uint64) uint64 {
	if ric == 0 {
		return 0
	}
	me := maxEntries(capacity)
	if me == 0 {
		return ric + 1
	}
	return (ric % (2 * me)) + 1
}

// decodeRequiredInsertCount reverses encodeRequiredInsertCount given the
// decoder's current total insert count, per RFC 9204 Section 4.5.1.1.
func decodeRequiredInsertCount(encoded, capacity, totalInserts uint64) (uint64, error) {
	if encoded == 0 {
		return 0, nil
	}
	me := maxEntries(capacity)
	if me == 0 {
		return 0, ErrDecompressionFailed
	}
	fullRange := 2 * me
	if encoded > fullRange {
		return 0, ErrDecompressionFailed
	}
	maxValue := totalInserts + me
	maxWrapped := (maxValue / fullRange) * fullRange
	ric := maxWrapped + encoded - 1
	if ric > maxValue {
		if ric < fullRange {
			return 0, ErrDecompressionFailed
		}
		ric -= fullRange
	}
	if ric == 0 {
		return 0, ErrDecompressionFailed
	}
	return ric, nil
}

type headerBlockPrefix struct {
	RequiredInsertCount uint64
	Base                uint64
}

func appendHeaderBlockPrefix(buf []byte, p headerBlockPrefix, capacity uint64) []byte {
	enc := encodeRequiredInsertCount(p.RequiredInsertCount, capacity)
	buf = appendPrefixIntFirstByte(buf, 8, enc)

	if p.Base >= p.RequiredInsertCount {
		delta := p.Base - p.RequiredInsertCount
		buf = append(buf, 0) // sign bit 0
		buf = appendPrefixInt(buf, 7, delta)
	} else {
		delta := p.RequiredInsertCount - p.Base - 1
		buf = append(buf, 0x80) // sign bit 1
		buf = appendPrefixInt(buf, 7, delta)
	}
	return buf
}

// appendPrefixIntFirstByte is appendPrefixInt specialized for an 8-bit
// prefix that occupies the whole first byte (no shared flag bits).
func appendPrefixIntFirstByte(buf []byte, prefixBits uint8, v uint64) []byte {
	return appendPrefixInt(buf, prefixBits, v)
}

func readHeaderBlockPrefix(r *bufio.Reader, capacity, totalInserts uint64) (headerBlockPrefix, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return headerBlockPrefix{}, err
	}
	encRIC, err := readPrefixInt(b0, 8, r)
	if err != nil {
		return headerBlockPrefix{}, err
	}
	ric, err := decodeRequiredInsertCount(encRIC, capacity, totalInserts)
	if err != nil {
		return headerBlockPrefix{}, err
	}

	b1, err := r.ReadByte()
	if err != nil {
		return headerBlockPrefix{}, err
	}
	sign := b1&0x80 != 0
	delta, err := readPrefixInt(b1, 7, r)
	if err != nil {
		return headerBlockPrefix{}, err
	}

	var base uint64
	if !sign {
		base = ric + delta
	} else {
		if delta+1 > ric {
			return headerBlockPrefix{}, ErrDecompressionFailed
		}
		base = ric - delta - 1
	}
	return headerBlockPrefix{RequiredInsertCount: ric, Base: base}, nil
}
