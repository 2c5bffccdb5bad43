package qpack

import "bufio"

// Header-block field-line representations, RFC 9204 Section 4.5.2-4.5.6.
// Indices here are relative to the block's Base: pre-base references
// count back from Base-1, post-base references count forward from Base.

func appendIndexedFieldLine(buf []byte, static bool, relIdx uint64) []byte {
	flag := byte(0x80)
	if static {
		flag |= 0x40
	}
	buf = append(buf, flag)
	return appendPrefixInt(buf, 6, relIdx)
}

func appendIndexedFieldLinePostBase(buf []byte, relIdx uint64) []byte {
	buf = append(buf, 0x10)
	return appendPrefixInt(buf, 4, relIdx)
}

func appendLiteralWithNameRef(buf []byte, static bool, relIdx uint64, value string) []byte {
	flag := byte(0x40)
	if static {
		flag |= 0x10
	}
	buf = append(buf, flag)
	buf = appendPrefixInt(buf, 4, relIdx)
	return appendStringLiteral(buf, value)
}

func appendLiteralWithNameRefPostBase(buf []byte, relIdx uint64, value string) []byte {
	buf = append(buf, 0x00)
	buf = appendPrefixInt(buf, 3, relIdx)
	return appendStringLiteral(buf, value)
}

func appendLiteralWithLiteralName(buf []byte, name, value string) []byte {
	buf = append(buf, 0x20)
	buf = appendStringLiteralPrefix(buf, name, 3)
	return appendStringLiteral(buf, value)
}

type representation struct {
	field     headerField
	isIndexed bool
	static    bool
	postBase  bool
	relIdx    uint64
}

// readRepresentation reads and classifies the next field-line
// representation, resolving any dynamic-table reference against the
// block's Base via resolve.
func readRepresentation(r *bufio.Reader, base uint64, resolve func(absIdx uint64) (headerField, bool)) (headerField, error) {
	first, err := r.ReadByte()
	if err != nil {
		return headerField{}, err
	}
	switch {
	case first&0x80 != 0: // Indexed Field Line: 1 T iiiiii
		static := first&0x40 != 0
		idx, err := readPrefixInt(first, 6, r)
		if err != nil {
			return headerField{}, err
		}
		if static {
			f, ok := staticLookup(int(idx))
			if !ok {
				return headerField{}, ErrDecompressionFailed
			}
			return f, nil
		}
		if idx > base-1 {
			return headerField{}, ErrDecompressionFailed
		}
		abs := base - 1 - idx
		f, ok := resolve(abs)
		if !ok {
			return headerField{}, ErrDecompressionFailed
		}
		return f, nil

	case first&0x40 != 0: // Literal With Name Reference: 01 N T iiii
		static := first&0x10 != 0
		idx, err := readPrefixInt(first, 4, r)
		if err != nil {
			return headerField{}, err
		}
		value, err := readStringLiteral(r)
		if err != nil {
			return headerField{}, err
		}
		var name string
		if static {
			f, ok := staticLookup(int(idx))
			if !ok {
				return headerField{}, ErrDecompressionFailed
			}
			name = f.Name
		} else {
			if idx > base-1 {
				return headerField{}, ErrDecompressionFailed
			}
			f, ok := resolve(base - 1 - idx)
			if !ok {
				return headerField{}, ErrDecompressionFailed
			}
			name = f.Name
		}
		return headerField{Name: name, Value: value}, nil

	case first&0x20 != 0: // Literal With Literal Name: 001 N H nnn
		name, err := readStringLiteralPrefix(first, 3, r)
		if err != nil {
			return headerField{}, err
		}
		value, err := readStringLiteral(r)
		if err != nil {
			return headerField{}, err
		}
		return headerField{Name: name, Value: value}, nil

	case first&0x10 != 0: // Indexed Post-Base: 0001 iiii
		idx, err := readPrefixInt(first, 4, r)
		if err != nil {
			return headerField{}, err
		}
		f, ok := resolve(base + idx)
		if !ok {
			return headerField{}, ErrDecompressionFailed
		}
		return f, nil

	default: // Literal With Post-Base Name Reference: 0000 N iii
		idx, err := readPrefixInt(first, 3, r)
		if err != nil {
			return headerField{}, err
		}
		value, err := readStringLiteral(r)
		if err != nil {
			return headerField{}, err
		}
		f, ok := resolve(base + idx)
		if !ok {
			return headerField{}, ErrDecompressionFailed
		}
		return headerField{Name: f.Name, Value: value}, nil
	}
}
