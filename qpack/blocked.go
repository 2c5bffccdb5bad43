package qpack

import "sync"

// blockedKey identifies one outstanding header block: (stream_id,
// section_number). section_number disambiguates multiple header blocks on
// the same stream (e.g. HEADERS followed by trailing HEADERS).
type blockedKey struct {
	StreamID uint64
	Section  uint64
}

// blockedRegistry tracks header blocks whose RequiredInsertCount exceeded
// the decoder's current insert count at decode time. Grounded on
// original_source/src/http3/qpack/blocked_registry.h's
// Add/Ack/Remove/NotifyAll, translated from a process-wide singleton (the
// C++ original) to a struct owned by one Decoder — idiomatic Go avoids
// global mutable state here, and each QUIC connection has its own
// decoder instance anyway.
//
// Connection-level limit: SETTINGS_QPACK_BLOCKED_STREAMS bounds how many
// entries may be pending at once; the Decoder enforces that bound before
// calling Add.
type blockedRegistry struct {
	mu      sync.Mutex
	pending map[blockedKey]func()
}

func newBlockedRegistry() *blockedRegistry {
	return &blockedRegistry{pending: make(map[blockedKey]func())}
}

func (r *blockedRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Add registers retry for key. retry is invoked exactly once: either here
// via NotifyAll/Ack, or never again if Remove (stream cancellation) fires
// first.
func (r *blockedRegistry) Add(key blockedKey, retry func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[key] = retry
}

// Ack retries and removes the single entry for key (Section
// Acknowledgement received for that stream).
func (r *blockedRegistry) Ack(key blockedKey) {
	r.mu.Lock()
	retry, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	r.mu.Unlock()
	if ok {
		retry()
	}
}

// Remove drops the entry for key without invoking retry (stream
// cancellation / reset before the block was resolved).
func (r *blockedRegistry) Remove(key blockedKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, key)
}

// NotifyAll retries every pending entry (an encoder-stream insertion
// advanced the insert count, so some blocks may now be decodable). Each
// retry closure re-enters decoding and re-registers itself via Add if
// still blocked on a higher insert count.
func (r *blockedRegistry) NotifyAll() {
	r.mu.Lock()
	pending := make([]func(), 0, len(r.pending))
	for _, retry := range r.pending {
		pending = append(pending, retry)
	}
	r.pending = make(map[blockedKey]func())
	r.mu.Unlock()

	for _, retry := range pending {
		retry()
	}
}
