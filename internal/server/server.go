// Package server hosts the Ignite engine behind a plain TCP listener using
// the wire framing defined in internal/wire. One goroutine per connection
// reads frames and hands decoded requests to a bounded worker pool so the
// accept loop and other connections are never blocked by storage I/O;
// responses are written back on the same connection in request order.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/ignitedb/ignite/internal/engine"
	"github.com/ignitedb/ignite/internal/pool"
	"github.com/ignitedb/ignite/internal/wire"
	"go.uber.org/zap"
)

// Server accepts TCP connections and dispatches requests to an engine.
type Server struct {
	addr     string
	engine   *engine.Engine
	pool     *pool.Pool
	log      *zap.SugaredLogger
	listener net.Listener
}

// New builds a Server bound to addr. poolSize configures the worker pool
// backing request dispatch; a non-positive value defaults to NumCPU.
func New(addr string, eng *engine.Engine, log *zap.SugaredLogger, poolSize int) *Server {
	return &Server{
		addr:   addr,
		engine: eng,
		pool:   pool.New(poolSize),
		log:    log,
	}
}

// ListenAndServe opens the listener and serves connections until ctx is
// cancelled, at which point it stops accepting and returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Infow("Server listening", "addr", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// Addr returns the listener's bound address. Only valid after
// ListenAndServe has started accepting, useful for tests that bind to
// ":0" and need the ephemeral port that was chosen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}

		req, err := wire.DecodeRequest(payload)
		if err != nil {
			s.writeResponse(conn, &wire.Response{Kind: wire.RespErr, Message: err.Error()})
			continue
		}

		respCh := make(chan *wire.Response, 1)
		submitErr := s.pool.Submit(ctx, func() {
			respCh <- s.dispatch(ctx, req)
		})
		if submitErr != nil {
			// Context was cancelled while waiting for a free pool slot;
			// the connection is being torn down regardless.
			return
		}

		resp := <-respCh
		if err := s.writeResponse(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp *wire.Response) error {
	return wire.WriteFrame(conn, wire.EncodeResponse(resp))
}

func (s *Server) dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	key := string(req.Key)

	switch req.Op {
	case wire.OpSet:
		if err := s.engine.Set(ctx, key, req.Value); err != nil {
			return s.errResponse(err)
		}
		return &wire.Response{Kind: wire.RespOk}

	case wire.OpGet:
		value, err := s.engine.Get(ctx, key)
		if err != nil {
			if errors.Is(err, engine.ErrKeyNotFound) {
				return &wire.Response{Kind: wire.RespKeyNotFound}
			}
			return s.errResponse(err)
		}
		return &wire.Response{Kind: wire.RespValue, Value: value}

	case wire.OpRm:
		if err := s.engine.Rm(ctx, key); err != nil {
			if errors.Is(err, engine.ErrKeyNotFound) {
				return &wire.Response{Kind: wire.RespKeyNotFound}
			}
			return s.errResponse(err)
		}
		return &wire.Response{Kind: wire.RespOk}

	default:
		return &wire.Response{Kind: wire.RespErr, Message: "unknown operation"}
	}
}

func (s *Server) errResponse(err error) *wire.Response {
	s.log.Errorw("Request failed", "error", err)
	return &wire.Response{Kind: wire.RespErr, Message: err.Error()}
}

// Close shuts down the listener and waits for in-flight work to drain.
func (s *Server) Close(ctx context.Context) error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	if poolErr := s.pool.Close(ctx); poolErr != nil && err == nil {
		err = poolErr
	}
	return err
}
