package quicx

import (
	"context"
	"crypto/tls"
	"log/slog"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/caozhiyi/quicx/internal/h3errors"
	"github.com/caozhiyi/quicx/router"
	"github.com/caozhiyi/quicx/transport"
)

// ServerOptions configures a Server at construction.
type ServerOptions struct {
	TLSConfig  *tls.Config
	QUICConfig *quic.Config
	Settings   Settings
	Logger     *slog.Logger
}

// Server accepts HTTP/3 connections on one UDP address and dispatches
// requests to registered handlers through a path router, grounded on
// original_source/src/http3/http/server.h.
type Server struct {
	addr string
	opts ServerOptions
	rt   *router.Router

	ln transport.Listener

	mu    sync.Mutex
	conns map[*connection]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewServer builds a Server listening on addr ("host:port" or ":port"),
// not yet started. Server push defaults to enabled, since unlike
// Client (which must opt in via SetMaxPushID) a server only ever sends
// pushes a registered handler explicitly queues.
func NewServer(addr string, opts ServerOptions) *Server {
	if (opts.Settings == Settings{}) {
		opts.Settings = DefaultSettings()
	}
	opts.Settings.EnablePush = true
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		addr:  addr,
		opts:  opts,
		rt:    router.New(),
		conns: make(map[*connection]struct{}),
		log:   opts.Logger,
	}
}

// AddHandler registers a buffered (request, response) handler for
// method and pattern (router.Router's path-pattern syntax: ":name"
// captures a segment, a trailing "*" captures the remainder).
func (s *Server) AddHandler(method, pattern string, h CompleteHandler) error {
	return s.rt.AddRoute(router.Method(method), pattern, routeConfigForComplete(h))
}

// AddAsyncHandler registers a streaming on-headers/on-body-chunk
// handler for method and pattern.
func (s *Server) AddAsyncHandler(method, pattern string, h AsyncServerHandler) error {
	return s.rt.AddRoute(router.Method(method), pattern, routeConfigForAsyncServer(h))
}

// Start binds the listener and begins accepting connections in the
// background; it returns once the listener is bound, not once it stops
// accepting.
func (s *Server) Start() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if s.opts.TLSConfig == nil {
		return errMissingServerTLSConfig
	}
	ln, err := transport.NewListener(s.addr, s.opts.TLSConfig, s.opts.QUICConfig)
	if err != nil {
		return err
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		tc, err := s.ln.Accept(s.ctx)
		if err != nil {
			return
		}
		conn := newConnection(roleServer, tc, s.opts.Settings, s.rt, s.log)
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		if err := conn.start(s.ctx); err != nil {
			s.log.Warn("connection setup failed", "err", err)
			conn.close(h3errors.InternalError, "setup failed")
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}
	}
}

// Stop closes the listener and every accepted connection with
// H3_NO_ERROR, then returns — it does not wait for in-flight requests
// to finish; call Join for that.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.close(h3errors.NoError, "server stopped")
	}
	s.mu.Unlock()
	return err
}

// Join blocks until the accept loop has exited (after Stop, or on a
// fatal listener error).
func (s *Server) Join() {
	s.wg.Wait()
}

var errMissingServerTLSConfig = serverConfigError("quicx: ServerOptions.TLSConfig is required")

type serverConfigError string

func (e serverConfigError) Error() string { return string(e) }
