package qpack

import (
	"bufio"
	"io"
)

// Encoder-stream instructions, RFC 9204 Section 4.3. Each updates the
// dynamic table identically on both endpoints.

// appendSetCapacity encodes a "Set Dynamic Table Capacity" instruction:
// pattern 001, capacity as a 5-bit prefix integer.
func appendSetCapacity(buf []byte, capacity uint64) []byte {
	buf = append(buf, 0x20)
	return appendPrefixInt(buf, 5, capacity)
}

// appendInsertWithNameRef encodes "Insert With Name Reference": pattern
// 1T, name index as a 6-bit prefix integer, then the value as an
// H-flagged 7-bit-prefix string literal.
func appendInsertWithNameRef(buf []byte, static bool, nameIdx uint64, value string) []byte {
	flag := byte(0x80)
	if static {
		flag |= 0x40
	}
	buf = append(buf, flag)
	buf = appendPrefixInt(buf, 6, nameIdx)
	return appendStringLiteral(buf, value)
}

// appendInsertWithLiteralName encodes "Insert Without Name Reference":
// pattern 01, name as an H-flagged 5-bit-prefix string, value as an
// H-flagged 7-bit-prefix string.
func appendInsertWithLiteralName(buf []byte, name, value string) []byte {
	buf = append(buf, 0x40)
	buf = appendStringLiteralPrefix(buf, name, 5)
	return appendStringLiteral(buf, value)
}

// appendDuplicate encodes "Duplicate": pattern 000, index as a 5-bit
// prefix integer.
func appendDuplicate(buf []byte, idx uint64) []byte {
	buf = append(buf, 0x00)
	return appendPrefixInt(buf, 5, idx)
}

// encoderInstruction is the parsed form of one encoder-stream
// instruction, applied identically by the peer's dynamic table.
type encoderInstruction struct {
	kind      encInstrKind
	static    bool
	nameIdx   uint64
	name      string
	value     string
	dupIdx    uint64
	capacity  uint64
}

type encInstrKind int

const (
	encInstrSetCapacity encInstrKind = iota
	encInstrInsertWithNameRef
	encInstrInsertWithLiteralName
	encInstrDuplicate
)

// readEncoderInstruction reads and classifies the next encoder-stream
// instruction from r.
func readEncoderInstruction(r *bufio.Reader) (*encoderInstruction, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch {
	case first&0x80 != 0: // 1T......
		static := first&0x40 != 0
		nameIdx, err := readPrefixInt(first, 6, r)
		if err != nil {
			return nil, err
		}
		value, err := readStringLiteral(r)
		if err != nil {
			return nil, err
		}
		return &encoderInstruction{kind: encInstrInsertWithNameRef, static: static, nameIdx: nameIdx, value: value}, nil
	case first&0x40 != 0: // 01......
		name, err := readStringLiteralPrefix(first, 5, r)
		if err != nil {
			return nil, err
		}
		value, err := readStringLiteral(r)
		if err != nil {
			return nil, err
		}
		return &encoderInstruction{kind: encInstrInsertWithLiteralName, name: name, value: value}, nil
	case first&0x20 != 0: // 001.....
		cap, err := readPrefixInt(first, 5, r)
		if err != nil {
			return nil, err
		}
		return &encoderInstruction{kind: encInstrSetCapacity, capacity: cap}, nil
	default: // 000.....
		idx, err := readPrefixInt(first, 5, r)
		if err != nil {
			return nil, err
		}
		return &encoderInstruction{kind: encInstrDuplicate, dupIdx: idx}, nil
	}
}

// Decoder-stream instructions, RFC 9204 Section 4.4.

// appendSectionAck encodes a Section Acknowledgement: pattern 1,
// stream ID as a 7-bit prefix integer.
func appendSectionAck(buf []byte, streamID uint64) []byte {
	buf = append(buf, 0x80)
	return appendPrefixInt(buf, 7, streamID)
}

// appendStreamCancellation encodes a Stream Cancellation: pattern 01,
// stream ID as a 6-bit prefix integer.
func appendStreamCancellation(buf []byte, streamID uint64) []byte {
	buf = append(buf, 0x40)
	return appendPrefixInt(buf, 6, streamID)
}

// appendInsertCountIncrement encodes an Insert Count Increment: pattern
// 00, increment as a 6-bit prefix integer.
func appendInsertCountIncrement(buf []byte, increment uint64) []byte {
	buf = append(buf, 0x00)
	return appendPrefixInt(buf, 6, increment)
}

type decInstrKind int

const (
	decInstrSectionAck decInstrKind = iota
	decInstrStreamCancellation
	decInstrInsertCountIncrement
)

type decoderInstruction struct {
	kind     decInstrKind
	streamID uint64
	value    uint64
}

func readDecoderInstruction(r *bufio.Reader) (*decoderInstruction, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch {
	case first&0x80 != 0:
		id, err := readPrefixInt(first, 7, r)
		if err != nil {
			return nil, err
		}
		return &decoderInstruction{kind: decInstrSectionAck, streamID: id}, nil
	case first&0x40 != 0:
		id, err := readPrefixInt(first, 6, r)
		if err != nil {
			return nil, err
		}
		return &decoderInstruction{kind: decInstrStreamCancellation, streamID: id}, nil
	default:
		v, err := readPrefixInt(first, 6, r)
		if err != nil {
			return nil, err
		}
		return &decoderInstruction{kind: decInstrInsertCountIncrement, value: v}, nil
	}
}

// appendStringLiteral appends s as an H-flagged 7-bit-prefix string
// literal (RFC 7541 Section 5.2), Huffman-coding it when that's shorter.
func appendStringLiteral(buf []byte, s string) []byte {
	return appendStringLiteralPrefix(append(buf, 0), s, 7)
}

// appendStringLiteralPrefix writes the H flag and a prefixBits-bit length
// into the low bits of buf's last byte (which the caller has already
// appended with its pattern bits), followed by the string body.
func appendStringLiteralPrefix(buf []byte, s string, prefixBits uint8) []byte {
	hLen := huffmanEncodedLen(s)
	if hLen < len(s) {
		buf[len(buf)-1] |= byte(1) << prefixBits
		buf = appendPrefixInt(buf, prefixBits, uint64(hLen))
		return appendHuffman(buf, s)
	}
	buf = appendPrefixInt(buf, prefixBits, uint64(len(s)))
	return append(buf, s...)
}

func readStringLiteral(r *bufio.Reader) (string, error) {
	first, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	return readStringLiteralPrefix(first, 7, r)
}

func readStringLiteralPrefix(first byte, prefixBits uint8, r *bufio.Reader) (string, error) {
	huff := first&(1<<prefixBits) != 0
	n, err := readPrefixInt(first, prefixBits, r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if huff {
		return huffmanDecode(buf)
	}
	return string(buf), nil
}
