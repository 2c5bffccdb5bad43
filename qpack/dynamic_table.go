package qpack

import "sync"

// dynamicTable is an ordered ring of header entries with absolute indices
// monotonically increasing from 0, shared shape on encoder and decoder
// side (RFC 9204 Section 3.2). Grounded on
// original_source/src/http3/qpack/dynamic_table.h's AddHeaderItem /
// FindHeaderItem / EvictEntries / UpdateMaxTableSize, translated into a
// slice-backed ring plus a name+value index map instead of the C++
// vector + unordered_map<pair<string,string>> pairing.
type dynamicTable struct {
	mu sync.Mutex

	entries    []headerField // entries[i] has absolute index base+i
	base       uint64        // absolute index of entries[0]
	insertCnt  uint64        // number of entries ever inserted
	size       uint64        // sum of entries[i].size()
	capacity   uint64        // current negotiated capacity
	maxAllowed uint64        // SETTINGS_QPACK_MAX_TABLE_CAPACITY ceiling

	// refCount tracks how many un-acked header blocks reference each
	// absolute index, so eviction never drops a referenced entry (RFC
	// 9204 Section 3.2.3).
	refCount map[uint64]int
}

func newDynamicTable(maxAllowed uint64) *dynamicTable {
	return &dynamicTable{
		maxAllowed: maxAllowed,
		refCount:   make(map[uint64]int),
	}
}

// InsertCount returns the number of entries ever inserted (the decoder's
// "known received count" once all inserts have been applied).
func (t *dynamicTable) InsertCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertCnt
}

func (t *dynamicTable) Capacity() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity
}

// SetCapacity applies a "Set Dynamic Table Capacity" instruction. It is an
// encoder-stream error to exceed the negotiated maximum.
func (t *dynamicTable) SetCapacity(c uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c > t.maxAllowed {
		return ErrEncoderStreamError
	}
	t.capacity = c
	t.evictLocked()
	return nil
}

// Insert adds a new entry, evicting from the oldest end until the table
// fits capacity. Entries referenced by an un-acked header block are never
// evicted; if eviction cannot make room without touching one, Insert
// fails (the encoder must not have offered this insertion in that case).
func (t *dynamicTable) Insert(f headerField) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	need := f.size()
	if need > t.capacity {
		return 0, ErrEncoderStreamError
	}
	for t.size+need > t.capacity {
		if !t.evictOldestLocked() {
			return 0, ErrEncoderStreamError
		}
	}
	idx := t.base + uint64(len(t.entries))
	t.entries = append(t.entries, f)
	t.size += need
	t.insertCnt++
	return idx, nil
}

func (t *dynamicTable) evictLocked() {
	for t.size > t.capacity {
		if !t.evictOldestLocked() {
			return
		}
	}
}

func (t *dynamicTable) evictOldestLocked() bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := t.base
	if t.refCount[idx] > 0 {
		return false
	}
	t.size -= t.entries[0].size()
	t.entries = t.entries[1:]
	t.base++
	delete(t.refCount, idx)
	return true
}

// Get returns the entry at absolute index idx.
func (t *dynamicTable) Get(idx uint64) (headerField, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(idx)
}

func (t *dynamicTable) getLocked(idx uint64) (headerField, bool) {
	if idx < t.base || idx >= t.base+uint64(len(t.entries)) {
		return headerField{}, false
	}
	return t.entries[idx-t.base], true
}

// FindIndex returns the absolute index of an exact (name, value) or
// name-only match, preferring the most-recently inserted (hottest) entry,
// used by the encoder to choose indexed/name references.
func (t *dynamicTable) FindIndex(name, value string) (idx uint64, exact bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.Name != name {
			continue
		}
		absIdx := t.base + uint64(i)
		if e.Value == value {
			return absIdx, true, true
		}
		if !ok {
			idx, ok = absIdx, true
		}
	}
	return idx, false, ok
}

// addRef/release pin an absolute index against eviction while a header
// block referencing it is outstanding (between the encoder emitting the
// block and a matching Section Acknowledgement).
func (t *dynamicTable) addRef(idx uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refCount[idx]++
}

func (t *dynamicTable) release(idx uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.refCount[idx] <= 1 {
		delete(t.refCount, idx)
	} else {
		t.refCount[idx]--
	}
	t.evictLocked()
}
