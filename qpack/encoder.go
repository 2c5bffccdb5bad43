package qpack

import (
	"bufio"
	"bytes"
	"sync"
)

// Encoder translates a header-field map into a QPACK header block,
// maintaining the connection's dynamic table and emitting encoder-stream
// instructions (Insert With Name Reference, Insert Without Name
// Reference, Set Dynamic Table Capacity) as it goes. It never emits
// Duplicate.
//
// One Encoder is owned per connection: the dynamic table and its
// bookkeeping are single-threaded per connection, so Encoder itself
// does not add locking beyond what dynamicTable already provides for
// safety under the connection's one worker goroutine plus any
// background Ack delivery.
type Encoder struct {
	table *dynamicTable

	mu                 sync.Mutex
	knownReceivedCount uint64 // advanced by Section Ack / Insert Count Increment from the peer
	allowedBlocked     uint64 // SETTINGS_QPACK_BLOCKED_STREAMS advertised by the peer

	// onInstruction is called with each encoder-stream instruction to
	// write; nil disables dynamic-table insertion (encoder falls back to
	// static-table references and literals, same as a decoder that never
	// sees a capacity > 0).
	onInstruction func([]byte) error

	// pendingRefs tracks, per stream/push ID, the dynamic-table indices
	// referenced by header blocks sent on it but not yet acknowledged —
	// populated by TrackSection, consumed by ApplyDecoderInstructions.
	pendingRefs map[uint64][]uint64
}

// NewEncoder creates an Encoder bound to a fresh dynamic table capped at
// maxCapacity (the local SETTINGS_QPACK_MAX_TABLE_CAPACITY we will honor
// for entries we insert on the peer's behalf... in practice, capacity is
// set by the peer's settings via SetCapacity once negotiation completes).
func NewEncoder(maxCapacity uint64, onInstruction func([]byte) error) *Encoder {
	return &Encoder{
		table:         newDynamicTable(maxCapacity),
		onInstruction: onInstruction,
		pendingRefs:   make(map[uint64][]uint64),
	}
}

// TrackSection records the dynamic-table indices EncodeHeaderBlock
// returned for id (a stream ID, or a push ID for pushed responses), so
// a later Section Acknowledgement or Stream Cancellation on id knows
// which references to release. Call once per EncodeHeaderBlock whose
// refs are non-empty.
func (e *Encoder) TrackSection(id uint64, refs []uint64) {
	if len(refs) == 0 {
		return
	}
	e.mu.Lock()
	e.pendingRefs[id] = append(e.pendingRefs[id], refs...)
	e.mu.Unlock()
}

// ApplyDecoderInstructions reads and applies every complete
// decoder-stream instruction in data: Section Acknowledgement and
// Stream Cancellation both release the tracked refs for the named
// stream/push ID (the former also advances knownReceivedCount via
// HandleSectionAck; the latter releases without advancing it, per RFC
// 9204 Section 4.4.2), and Insert Count Increment advances
// knownReceivedCount directly.
func (e *Encoder) ApplyDecoderInstructions(data []byte) error {
	r := bufio.NewReader(bytes.NewReader(data))
	for {
		instr, err := readDecoderInstruction(r)
		if err != nil {
			break
		}
		switch instr.kind {
		case decInstrSectionAck:
			e.HandleSectionAck(e.takePendingRefs(instr.streamID))
		case decInstrStreamCancellation:
			for _, idx := range e.takePendingRefs(instr.streamID) {
				e.table.release(idx)
			}
		case decInstrInsertCountIncrement:
			e.HandleInsertCountIncrement(instr.value)
		}
	}
	return nil
}

func (e *Encoder) takePendingRefs(id uint64) []uint64 {
	e.mu.Lock()
	refs := e.pendingRefs[id]
	delete(e.pendingRefs, id)
	e.mu.Unlock()
	return refs
}

// SetCapacity applies the peer-advertised dynamic table capacity and
// emits a Set Dynamic Table Capacity instruction so the peer's decoder
// table follows; call once after the connection's SETTINGS exchange
// completes.
func (e *Encoder) SetCapacity(capacity uint64) error {
	if err := e.table.SetCapacity(capacity); err != nil {
		return err
	}
	if e.onInstruction != nil {
		return e.onInstruction(appendSetCapacity(nil, capacity))
	}
	return nil
}

// SetAllowedBlockedStreams records the peer's SETTINGS_QPACK_BLOCKED_STREAMS.
func (e *Encoder) SetAllowedBlockedStreams(n uint64) {
	e.mu.Lock()
	e.allowedBlocked = n
	e.mu.Unlock()
}

// HandleSectionAck advances knownReceivedCount and releases the
// references this section held on dynamic-table entries, allowing them
// to be evicted again.
func (e *Encoder) HandleSectionAck(refs []uint64) {
	e.mu.Lock()
	for _, idx := range refs {
		if idx+1 > e.knownReceivedCount {
			e.knownReceivedCount = idx + 1
		}
	}
	e.mu.Unlock()
	for _, idx := range refs {
		e.table.release(idx)
	}
}

// HandleInsertCountIncrement advances knownReceivedCount directly, per a
// decoder-stream Insert Count Increment instruction.
func (e *Encoder) HandleInsertCountIncrement(n uint64) {
	e.mu.Lock()
	e.knownReceivedCount += n
	e.mu.Unlock()
}

// EncodeHeaderBlock encodes fields as one QPACK header block,
// returning the wire bytes and the set of dynamic-table
// absolute indices the block references (so the caller's stream layer
// can track them until acknowledged). Pseudo-headers must already
// precede regular headers in fields (see internal/pseudo).
func (e *Encoder) EncodeHeaderBlock(fields []HeaderField) (block []byte, refs []uint64, err error) {
	e.mu.Lock()
	known := e.knownReceivedCount
	allowedBlocked := e.allowedBlocked
	e.mu.Unlock()

	capacity := e.table.Capacity()
	var ric uint64
	var reps [][]byte

	for _, f := range fields {
		rep, refIdx, newRIC := e.encodeField(f, known, allowedBlocked, capacity, ric)
		reps = append(reps, rep)
		if refIdx != nil {
			refs = append(refs, *refIdx)
		}
		if newRIC > ric {
			ric = newRIC
		}
	}

	base := e.table.InsertCount() // Base = table state at encode time (post any inserts just emitted)
	buf := appendHeaderBlockPrefix(nil, headerBlockPrefix{RequiredInsertCount: ric, Base: base}, capacity)
	for _, r := range reps {
		buf = append(buf, r...)
	}
	for _, idx := range refs {
		e.table.addRef(idx)
	}
	return buf, refs, nil
}

// encodeField picks the cheapest valid representation for f, in RFC
// 9204's priority order: static indexed, dynamic indexed, literal with
// name reference (optionally inserting first), literal with no
// reference.
func (e *Encoder) encodeField(f HeaderField, known, allowedBlocked, capacity, curRIC uint64) (rep []byte, ref *uint64, ric uint64) {
	if idx, ok := staticFullIndex[f]; ok {
		return appendIndexedFieldLine(nil, true, uint64(idx)), nil, curRIC
	}

	if idx, exact, ok := e.table.FindIndex(f.Name, f.Value); ok && exact {
		newRIC := idx + 1
		if e.wouldBlock(newRIC, known, allowedBlocked) {
			// Budget exceeded: fall back below instead of raising RIC further.
		} else {
			rel := e.table.InsertCount() - 1 - idx
			r := idx
			return appendIndexedFieldLine(nil, false, rel), &r, max64(curRIC, newRIC)
		}
	}

	nameStaticIdx, nameInStatic := staticNameIndex[f.Name]
	nameDynIdx, _, nameInDynamic := e.table.FindIndex(f.Name, "")

	if e.onInstruction != nil && e.table.Capacity() > 0 && !e.wouldBlock(e.table.InsertCount()+1, known, allowedBlocked) {
		if nameInStatic {
			instr := appendInsertWithNameRef(nil, true, uint64(nameStaticIdx), f.Value)
			if e.onInstruction(instr) == nil {
				if newIdx, err := e.table.Insert(f); err == nil {
					rel := e.table.InsertCount() - 1 - newIdx
					r := newIdx
					return appendIndexedFieldLine(nil, false, rel), &r, max64(curRIC, newIdx+1)
				}
			}
		} else if nameInDynamic {
			instr := appendInsertWithNameRef(nil, false, e.table.InsertCount()-1-nameDynIdx, f.Value)
			if e.onInstruction(instr) == nil {
				if newIdx, err := e.table.Insert(f); err == nil {
					rel := e.table.InsertCount() - 1 - newIdx
					r := newIdx
					return appendIndexedFieldLine(nil, false, rel), &r, max64(curRIC, newIdx+1)
				}
			}
		} else {
			instr := appendInsertWithLiteralName(nil, f.Name, f.Value)
			if e.onInstruction(instr) == nil {
				if newIdx, err := e.table.Insert(f); err == nil {
					rel := e.table.InsertCount() - 1 - newIdx
					r := newIdx
					return appendIndexedFieldLine(nil, false, rel), &r, max64(curRIC, newIdx+1)
				}
			}
		}
	}

	if nameInStatic {
		return appendLiteralWithNameRef(nil, true, uint64(nameStaticIdx), f.Value), nil, curRIC
	}
	if nameInDynamic && !e.wouldBlock(nameDynIdx+1, known, allowedBlocked) {
		rel := e.table.InsertCount() - 1 - nameDynIdx
		r := nameDynIdx
		return appendLiteralWithNameRef(nil, false, rel, f.Value), &r, max64(curRIC, nameDynIdx+1)
	}
	return appendLiteralWithLiteralName(nil, f.Name, f.Value), nil, curRIC
}

// wouldBlock reports whether raising RequiredInsertCount to ric would
// exceed knownReceivedCount + allowedBlockedStreams.
func (e *Encoder) wouldBlock(ric, known, allowedBlocked uint64) bool {
	return ric > known+allowedBlocked
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
