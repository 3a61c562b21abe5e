// Package rpc implements the framed request/reply transport this system's
// file system and cache services are exposed over: a length-prefixed
// MessagePack protocol (internal/wire) carried on plain net.Conn
// connections, the Go translation of the original implementation's
// ROUTER/DEALER worker fan-out.
//
// Each accepted connection behaves like one of the original's per-thread
// REQ sockets: it is strictly synchronous (one outstanding request, in
// order), but distinct connections are served fully in parallel by a fixed
// pool of worker goroutines pulling jobs from a shared channel, so no
// connection can starve another and no connection's requests are ever
// reordered.
package rpc

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/outrungo/outrungo/internal/errkind"
	"github.com/outrungo/outrungo/internal/wire"
)

// Handler answers one decoded request. Returning an error is equivalent to
// returning a wire.Response tagged Exception built from that error; Handler
// implementations are not expected to build Exception responses themselves.
type Handler func(args []any) (any, error)

// Server accepts connections, authenticates each request against Token,
// and dispatches by method name through a registry of Handlers built
// before Serve is called.
type Server struct {
	Token   [16]byte
	Workers int

	mu       sync.RWMutex
	handlers map[string]Handler

	jobs chan job

	log *logrus.Entry
}

type job struct {
	req    *wire.Request
	result chan *wire.Response
}

// NewServer builds a Server with the given bearer token and worker pool
// size. A Workers value <= 0 defaults to 8.
func NewServer(token [16]byte, workers int) *Server {
	if workers <= 0 {
		workers = 8
	}
	return &Server{
		Token:    token,
		Workers:  workers,
		handlers: make(map[string]Handler),
		jobs:     make(chan job, workers*4),
		log:      logrus.WithField("component", "rpc.server"),
	}
}

// Register adds a method handler. It is not safe to call concurrently with
// Serve accepting connections that might already dispatch to method.
func (s *Server) Register(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *Server) handlerFor(method string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[method]
	return h, ok
}

// Serve runs the worker pool and accepts connections on l until l.Accept
// fails (typically because l was closed).
func (s *Server) Serve(l net.Listener) error {
	var wg sync.WaitGroup
	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWorker()
		}()
	}
	defer func() {
		close(s.jobs)
		wg.Wait()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.serveConn(conn)
	}
}

func (s *Server) runWorker() {
	for j := range s.jobs {
		j.result <- s.dispatch(j.req)
	}
}

func (s *Server) dispatch(req *wire.Request) *wire.Response {
	if !constantTimeEqual(req.Token, s.Token) {
		return &wire.Response{Tag: wire.TokenError, Value: "invalid token"}
	}
	if req.Method == nil {
		return &wire.Response{Tag: wire.Normal, Value: "pong"}
	}
	h, ok := s.handlerFor(*req.Method)
	if !ok {
		werr := &errkind.Error{Kind: errkind.ProtocolError, Class: "UnknownMethod", Args: []any{*req.Method}}
		return &wire.Response{Tag: wire.Exception, Value: werr}
	}
	value, err := h(req.Args)
	if err != nil {
		ke, ok := err.(*errkind.Error)
		if !ok {
			ke = errkind.FromOSError(err)
		}
		return &wire.Response{Tag: wire.Exception, Value: ke}
	}
	return &wire.Response{Tag: wire.Normal, Value: value}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	log := s.log.WithField("remote", conn.RemoteAddr())
	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		req, err := wire.DecodeRequest(payload)
		if err != nil {
			log.WithError(err).Warn("malformed request frame")
			return
		}

		j := job{req: req, result: make(chan *wire.Response, 1)}
		s.jobs <- j
		resp := <-j.result

		out, err := wire.EncodeResponse(resp)
		if err != nil {
			log.WithError(err).Error("failed to encode response")
			return
		}
		if err := wire.WriteFrame(conn, out); err != nil {
			return
		}
	}
}

func constantTimeEqual(a, b [16]byte) bool {
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
