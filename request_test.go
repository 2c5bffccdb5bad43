package quicx

import "testing"

func TestHeaderAddSetGetLowercasesNames(t *testing.T) {
	h := make(Header)
	h.Add("Content-Type", "text/plain")
	h.Add("Content-Type", "text/html")

	if got := h.Get("content-type"); got != "text/plain" {
		t.Fatalf("Get should return the first added value, got %q", got)
	}
	if got := h.Get("CONTENT-TYPE"); got != "text/plain" {
		t.Fatalf("Get should be case-insensitive, got %q", got)
	}
	if len(h["content-type"]) != 2 {
		t.Fatalf("expected 2 values stored under the lowercased key, got %d", len(h["content-type"]))
	}

	h.Set("Content-Type", "application/json")
	if got := h.Get("content-type"); got != "application/json" {
		t.Fatalf("Set should replace all prior values, got %q", got)
	}
	if len(h["content-type"]) != 1 {
		t.Fatalf("Set should leave exactly one value, got %d", len(h["content-type"]))
	}
}

func TestHeaderGetMissingReturnsEmpty(t *testing.T) {
	h := make(Header)
	if got := h.Get("x-missing"); got != "" {
		t.Fatalf("expected empty string for a missing header, got %q", got)
	}
}

func TestHeaderToFieldsAndBackRoundTrip(t *testing.T) {
	h := make(Header)
	h.Add("X-A", "1")
	h.Add("X-B", "2")

	fields := h.toFields()
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}

	back := headerFromFields(fields)
	if back.Get("x-a") != "1" || back.Get("x-b") != "2" {
		t.Fatalf("round trip through toFields/headerFromFields lost values: %+v", back)
	}
}

func TestRequestBodyBufferedVsStreaming(t *testing.T) {
	r := NewRequest("GET", "https", "example.com", "/")
	r.SetBody([]byte("hello"))
	if string(r.Body()) != "hello" {
		t.Fatalf("expected buffered body to round trip")
	}

	called := false
	r.SetBodyProvider(func() ([]byte, bool, error) {
		called = true
		return nil, true, nil
	})
	if r.Body() != nil {
		t.Fatalf("SetBodyProvider should clear the buffered body")
	}
	if _, _, err := r.BodyProvider()(); err != nil || !called {
		t.Fatalf("expected the provider to be retrievable and callable")
	}

	r.SetBody([]byte("world"))
	if r.BodyProvider() != nil {
		t.Fatalf("SetBody should clear the streaming provider")
	}
}

func TestResponsePushChildren(t *testing.T) {
	resp := NewResponse()
	if resp.StatusCode != 200 {
		t.Fatalf("NewResponse should default to status 200, got %d", resp.StatusCode)
	}

	push := &PushRequest{Method: "GET", Scheme: "https", Authority: "example.com", Path: "/style.css", Response: NewResponse()}
	resp.AddPush(push)
	if len(resp.PushChildren) != 1 || resp.PushChildren[0] != push {
		t.Fatalf("expected AddPush to append the push child")
	}
}
