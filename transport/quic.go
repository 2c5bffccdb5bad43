package transport

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/quic-go/quic-go"
)

// quicConnection adapts a quic.Connection to transport.Connection.
// Grounded on teacher's internal/http3.connection, which embeds
// quic.Connection directly for the same reason: the concrete
// transport binding has nothing to add over the quic-go methods
// themselves, only a narrower interface for the HTTP/3 core to depend
// on.
type quicConnection struct {
	quic.Connection
}

// NewConnection wraps an already-established quic.Connection (from a
// Dial or Accept) as a transport.Connection. Exported so an
// application embedding this module directly against quic-go (rather
// than through Client/Server) can still use the HTTP/3 core.
func NewConnection(c quic.Connection) Connection {
	return &quicConnection{Connection: c}
}

func (c *quicConnection) OpenStream() (Stream, error) {
	s, err := c.Connection.OpenStream()
	if err != nil {
		return nil, err
	}
	return &quicStream{Stream: s}, nil
}

func (c *quicConnection) OpenStreamSync(ctx context.Context) (Stream, error) {
	s, err := c.Connection.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &quicStream{Stream: s}, nil
}

func (c *quicConnection) OpenUniStream() (SendStream, error) {
	s, err := c.Connection.OpenUniStream()
	if err != nil {
		return nil, err
	}
	return &quicSendStream{SendStream: s}, nil
}

func (c *quicConnection) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	s, err := c.Connection.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &quicSendStream{SendStream: s}, nil
}

func (c *quicConnection) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := c.Connection.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &quicStream{Stream: s}, nil
}

func (c *quicConnection) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	s, err := c.Connection.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return &quicReceiveStream{ReceiveStream: s}, nil
}

func (c *quicConnection) CloseWithError(code ErrorCode, msg string) error {
	return c.Connection.CloseWithError(quic.ApplicationErrorCode(code), msg)
}

func (c *quicConnection) Context() context.Context { return c.Connection.Context() }

type quicStream struct {
	quic.Stream
}

func (s *quicStream) StreamID() StreamID { return StreamID(s.Stream.StreamID()) }
func (s *quicStream) CancelRead(code ErrorCode) {
	s.Stream.CancelRead(quic.StreamErrorCode(code))
}
func (s *quicStream) CancelWrite(code ErrorCode) {
	s.Stream.CancelWrite(quic.StreamErrorCode(code))
}
func (s *quicStream) Context() context.Context { return s.Stream.Context() }

type quicSendStream struct {
	quic.SendStream
}

func (s *quicSendStream) StreamID() StreamID { return StreamID(s.SendStream.StreamID()) }
func (s *quicSendStream) CancelWrite(code ErrorCode) {
	s.SendStream.CancelWrite(quic.StreamErrorCode(code))
}
func (s *quicSendStream) Context() context.Context { return s.SendStream.Context() }

type quicReceiveStream struct {
	quic.ReceiveStream
}

func (s *quicReceiveStream) StreamID() StreamID { return StreamID(s.ReceiveStream.StreamID()) }
func (s *quicReceiveStream) CancelRead(code ErrorCode) {
	s.ReceiveStream.CancelRead(quic.StreamErrorCode(code))
}

// quicDialer is the client-role Dialer, dialing a fresh quic.Connection
// per call. Connection reuse across calls is the job of Pool (pool.go),
// not this type.
type quicDialer struct {
	tlsConfig  *tls.Config
	quicConfig *quic.Config
}

// NewDialer builds a Dialer that dials QUIC/HTTP3 connections with the
// given TLS and QUIC configuration. tlsConfig.NextProtos is set to
// []string{"h3"} if empty, per RFC 9114 Section 3.1.
func NewDialer(tlsConfig *tls.Config, quicConfig *quic.Config) Dialer {
	cfg := tlsConfig.Clone()
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{"h3"}
	}
	return &quicDialer{tlsConfig: cfg, quicConfig: quicConfig}
}

func (d *quicDialer) Dial(ctx context.Context, addr string) (Connection, error) {
	c, err := quic.DialAddr(ctx, addr, d.tlsConfig, d.quicConfig)
	if err != nil {
		return nil, err
	}
	return NewConnection(c), nil
}

// quicListener is the server-role Listener.
type quicListener struct {
	ln *quic.Listener
}

// NewListener starts listening for QUIC/HTTP3 connections on addr.
func NewListener(addr string, tlsConfig *tls.Config, quicConfig *quic.Config) (Listener, error) {
	cfg := tlsConfig.Clone()
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{"h3"}
	}
	ln, err := quic.ListenAddr(addr, cfg, quicConfig)
	if err != nil {
		return nil, err
	}
	return &quicListener{ln: ln}, nil
}

func (l *quicListener) Accept(ctx context.Context) (Connection, error) {
	c, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return NewConnection(c), nil
}

func (l *quicListener) Close() error     { return l.ln.Close() }
func (l *quicListener) Addr() net.Addr   { return l.ln.Addr() }
