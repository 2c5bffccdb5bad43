package h3stream

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/caozhiyi/quicx/internal/pseudo"
	"github.com/caozhiyi/quicx/qpack"
	"github.com/caozhiyi/quicx/transport"
)

// fakeStream adapts a net.Conn (one end of a net.Pipe) to transport.Stream.
type fakeStream struct {
	net.Conn
	id transport.StreamID
}

func (f *fakeStream) StreamID() transport.StreamID   { return f.id }
func (f *fakeStream) CancelRead(transport.ErrorCode)  { f.Conn.Close() }
func (f *fakeStream) CancelWrite(transport.ErrorCode) { f.Conn.Close() }
func (f *fakeStream) Context() context.Context        { return context.Background() }

func newStreamPair(id transport.StreamID) (*fakeStream, *fakeStream) {
	a, b := net.Pipe()
	return &fakeStream{Conn: a, id: id}, &fakeStream{Conn: b, id: id}
}

// fakeReceiveStream adapts an in-memory byte slice to transport.ReceiveStream.
type fakeReceiveStream struct {
	*bytes.Reader
}

func (f *fakeReceiveStream) StreamID() transport.StreamID  { return 0 }
func (f *fakeReceiveStream) CancelRead(transport.ErrorCode) {}

func timeoutCh(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(2 * time.Second)
}

func TestStreamTypeRoundTrip(t *testing.T) {
	for _, ty := range []Type{TypeControl, TypePush, TypeQPACKEncoder, TypeQPACKDecoder} {
		buf := AppendStreamType(nil, ty)
		got, err := IdentifyStream(&fakeReceiveStream{Reader: bytes.NewReader(buf)})
		if err != nil {
			t.Fatalf("IdentifyStream failed for %v: %v", ty, err)
		}
		if got != ty {
			t.Fatalf("expected %v, got %v", ty, got)
		}
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	clientConn, serverConn := newStreamPair(4)

	// Requests flow client -> server through encA/decA; responses flow
	// server -> client through encB/decB.
	encA := qpack.NewEncoder(0, nil)
	decA := qpack.NewDecoder(0, 16, nil)
	encB := qpack.NewEncoder(0, nil)
	decB := qpack.NewDecoder(0, 16, nil)

	serverResult := make(chan pseudo.RequestLine, 1)
	serverCb := RequestResponseCallbacks{
		OnRequestHeaders: func(line pseudo.RequestLine, headers []qpack.HeaderField) {
			serverResult <- line
		},
	}
	serverStream := NewStream(serverConn, encB, decA, serverCb)

	clientStatus := make(chan int, 1)
	clientCb := RequestResponseCallbacks{
		OnResponseHeaders: func(status int, headers []qpack.HeaderField) {
			clientStatus <- status
		},
	}
	clientStream := NewStream(clientConn, encA, decB, clientCb)

	go func() { _ = serverStream.Run() }()
	go func() { _ = clientStream.Run() }()

	line := pseudo.RequestLine{Method: "GET", Scheme: "https", Authority: "example.com", Path: "/"}
	if err := clientStream.SendRequestHeaders(line, nil); err != nil {
		t.Fatalf("SendRequestHeaders failed: %v", err)
	}

	select {
	case got := <-serverResult:
		if got.Method != "GET" || got.Path != "/" {
			t.Fatalf("unexpected request line: %+v", got)
		}
	case <-timeoutCh(t):
		t.Fatalf("server never received request headers")
	}

	if err := serverStream.SendResponseHeaders(200, nil); err != nil {
		t.Fatalf("SendResponseHeaders failed: %v", err)
	}

	select {
	case status := <-clientStatus:
		if status != 200 {
			t.Fatalf("expected status 200, got %d", status)
		}
	case <-timeoutCh(t):
		t.Fatalf("client never received response headers")
	}

	clientStream.Reset(0)
	serverStream.Reset(0)
}
