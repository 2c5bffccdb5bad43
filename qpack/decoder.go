package qpack

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

// maxBlockedStreamsDefault is used when a Decoder is constructed without
// an explicit limit; it matches quic-go's default.
const maxBlockedStreamsDefault = 100

// Decoder translates a QPACK header block back into a header-field list,
// applying encoder-stream instructions to keep the dynamic table
// coherent with the encoder, and emitting decoder-stream feedback
// (Section Acknowledgement / Stream Cancellation / Insert Count
// Increment) through onInstruction.
type Decoder struct {
	table    *dynamicTable
	blocked  *blockedRegistry
	maxBlock int

	mu            sync.Mutex
	onInstruction func([]byte) error
}

// NewDecoder creates a Decoder bound to a fresh dynamic table capped at
// maxCapacity (our own SETTINGS_QPACK_MAX_TABLE_CAPACITY, which bounds
// what the peer's encoder-stream instructions may grow the table to).
func NewDecoder(maxCapacity uint64, maxBlockedStreams int, onInstruction func([]byte) error) *Decoder {
	if maxBlockedStreams <= 0 {
		maxBlockedStreams = maxBlockedStreamsDefault
	}
	return &Decoder{
		table:         newDynamicTable(maxCapacity),
		blocked:       newBlockedRegistry(),
		maxBlock:      maxBlockedStreams,
		onInstruction: onInstruction,
	}
}

// ApplyEncoderInstructions reads and applies every complete encoder
// instruction in data, advances the dynamic table, and retries any
// header blocks the new inserts unblock.
func (d *Decoder) ApplyEncoderInstructions(data []byte) error {
	r := bufio.NewReader(bytes.NewReader(data))
	applied := false
	for {
		instr, err := readEncoderInstruction(r)
		if err != nil {
			break
		}
		if err := d.apply(instr); err != nil {
			return err
		}
		applied = true
	}
	if applied {
		d.blocked.NotifyAll()
	}
	return nil
}

func (d *Decoder) apply(instr *encoderInstruction) error {
	switch instr.kind {
	case encInstrSetCapacity:
		return d.table.SetCapacity(instr.capacity)
	case encInstrInsertWithNameRef:
		var name string
		if instr.static {
			f, ok := staticLookup(int(instr.nameIdx))
			if !ok {
				return ErrEncoderStreamError
			}
			name = f.Name
		} else {
			f, ok := d.table.Get(instr.nameIdx)
			if !ok {
				return ErrEncoderStreamError
			}
			name = f.Name
		}
		_, err := d.table.Insert(headerField{Name: name, Value: instr.value})
		return err
	case encInstrInsertWithLiteralName:
		_, err := d.table.Insert(headerField{Name: instr.name, Value: instr.value})
		return err
	case encInstrDuplicate:
		f, ok := d.table.Get(instr.dupIdx)
		if !ok {
			return ErrEncoderStreamError
		}
		_, err := d.table.Insert(f)
		return err
	}
	return ErrEncoderStreamError
}

// DecodeResult is the outcome of DecodeHeaderBlock.
type DecodeResult struct {
	Fields []HeaderField
	Refs   []uint64 // dynamic-table absolute indices this block referenced
}

// DecodeHeaderBlock decodes one header block for (streamID, section).
//
// If the block's Required Insert Count has not yet been satisfied, it
// registers a resumption closure in the blocked registry and returns
// (true, nil): the caller (stream object) must suspend header
// delivery until onResolved is called.
//
// onResolved is invoked at most once, from whatever goroutine completes
// the decode: immediately if not blocked, or later via
// ApplyEncoderInstructions. CancelStream drops a blocked block without
// invoking it.
func (d *Decoder) DecodeHeaderBlock(streamID, section uint64, data []byte, onResolved func(DecodeResult, error)) (blocked bool, err error) {
	if d.blocked.Len() >= d.maxBlock {
		return false, ErrDecompressionFailed
	}

	attempt := func() (DecodeResult, bool, error) {
		return d.tryDecode(data)
	}

	res, isBlocked, err := attempt()
	if err != nil {
		return false, err
	}
	if !isBlocked {
		d.ack(streamID)
		onResolved(res, nil)
		return false, nil
	}

	key := blockedKey{StreamID: streamID, Section: section}
	var retry func()
	retry = func() {
		res, isBlocked, err := attempt()
		if isBlocked {
			// Still not satisfied after this round of inserts;
			// NotifyAll already removed us from the registry, so
			// re-register under the same key for the next one.
			d.blocked.Add(key, retry)
			return
		}
		if err == nil {
			d.ack(streamID)
		}
		onResolved(res, err)
	}
	d.blocked.Add(key, retry)
	return true, nil
}

func (d *Decoder) ack(streamID uint64) {
	if d.onInstruction == nil {
		return
	}
	buf := appendSectionAck(nil, streamID)
	_ = d.onInstruction(buf)
}

// CancelStream removes any pending blocked entry for streamID's
// sections without retrying, and emits a Stream Cancellation — called
// when a stream resets before its header-block decode completes, RFC
// 9204 Section 2.2.2.2.
func (d *Decoder) CancelStream(streamID uint64, sections []uint64) {
	for _, s := range sections {
		d.blocked.Remove(blockedKey{StreamID: streamID, Section: s})
	}
	if d.onInstruction == nil {
		return
	}
	buf := appendStreamCancellation(nil, streamID)
	_ = d.onInstruction(buf)
}

func (d *Decoder) tryDecode(data []byte) (DecodeResult, bool, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	capacity := d.table.Capacity()
	total := d.table.InsertCount()

	prefix, err := readHeaderBlockPrefix(r, capacity, total)
	if err != nil {
		return DecodeResult{}, false, ErrDecompressionFailed
	}
	if prefix.RequiredInsertCount > total {
		return DecodeResult{}, true, nil
	}

	var fields []HeaderField
	var refs []uint64
	resolve := func(abs uint64) (headerField, bool) {
		refs = append(refs, abs)
		return d.table.Get(abs)
	}
	for {
		f, err := readRepresentation(r, prefix.Base, resolve)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return DecodeResult{}, false, ErrDecompressionFailed
		}
		fields = append(fields, f)
	}
	return DecodeResult{Fields: fields, Refs: refs}, false, nil
}
