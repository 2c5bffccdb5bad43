package qpack

import "testing"

func TestStaticOnlyRoundTrip(t *testing.T) {
	enc := NewEncoder(0, nil)
	dec := NewDecoder(0, 16, nil)

	fields := []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/users/1"},
		{Name: ":authority", Value: "example.com"},
		{Name: "x-custom-header", Value: "hello world"},
	}

	block, _, err := enc.EncodeHeaderBlock(fields)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	done := make(chan struct{})
	var got []HeaderField
	var decErr error
	blocked, err := dec.DecodeHeaderBlock(1, 0, block, func(res DecodeResult, e error) {
		got = res.Fields
		decErr = e
		close(done)
	})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if blocked {
		t.Fatalf("block should not be blocked with an empty dynamic table")
	}
	<-done
	if decErr != nil {
		t.Fatalf("resumption reported error: %v", decErr)
	}

	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got), len(fields))
	}
	for i := range fields {
		if got[i] != fields[i] {
			t.Errorf("field %d = %+v, want %+v", i, got[i], fields[i])
		}
	}
}

func TestDynamicTableEviction(t *testing.T) {
	table := newDynamicTable(64)
	if err := table.SetCapacity(64); err != nil {
		t.Fatalf("set capacity: %v", err)
	}
	f1 := HeaderField{Name: "a", Value: "1"} // size 1+1+32 = 34; two such entries exceed 64
	f2 := HeaderField{Name: "b", Value: "2"}

	if _, err := table.Insert(f1); err != nil {
		t.Fatalf("insert f1: %v", err)
	}
	if table.size > table.capacity {
		t.Fatalf("table exceeded capacity after first insert")
	}
	if _, err := table.Insert(f2); err != nil {
		t.Fatalf("insert f2: %v", err)
	}
	if table.size > table.capacity {
		t.Fatalf("table exceeded capacity: size=%d capacity=%d", table.size, table.capacity)
	}
}

func TestBlockedRegistryResumption(t *testing.T) {
	reg := newBlockedRegistry()
	key := blockedKey{StreamID: 4, Section: 0}
	called := false
	reg.Add(key, func() { called = true })

	reg.NotifyAll()
	if !called {
		t.Fatalf("expected retry closure to run on NotifyAll")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected registry to be empty after NotifyAll, got %d", reg.Len())
	}
}

func TestBlockedRegistryCancellationSkipsRetry(t *testing.T) {
	reg := newBlockedRegistry()
	key := blockedKey{StreamID: 8, Section: 0}
	called := false
	reg.Add(key, func() { called = true })

	reg.Remove(key)
	reg.NotifyAll()
	if called {
		t.Fatalf("cancelled entry must not be retried")
	}
}

func TestPrefixIntRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 30, 31, 127, 128, 1000, 1 << 20} {
		buf := appendPrefixInt([]byte{0}, 5, v)
		got, err := readPrefixInt(buf[0], 5, &sliceByteReader{buf: buf[1:]})
		if err != nil {
			t.Fatalf("v=%d: %v", v, err)
		}
		if got != v {
			t.Errorf("v=%d round-tripped as %d", v, got)
		}
	}
}

// sliceByteReader adapts a byte slice to io.ByteReader for the prefix-int test.
type sliceByteReader struct {
	buf []byte
	pos int
}

func (r *sliceByteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errEOFTest
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

var errEOFTest = &eofTestError{}

type eofTestError struct{}

func (e *eofTestError) Error() string { return "EOF" }
