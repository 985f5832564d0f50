// Package tcp accepts raw framed connections and hands each one to the hub.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/transport/limit"
)

const maxAcceptDelay = time.Second

// Server is the TCP front door of the relay.
type Server struct {
	hub     *core.Hub
	addr    string
	limiter *limit.Limiter
	log     *zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
}

// NewServer builds a server for addr. maxConnsPerMinute <= 0 disables the cap.
func NewServer(hub *core.Hub, addr string, maxConnsPerMinute int, logger *zerolog.Logger) *Server {
	return &Server{
		hub:     hub,
		addr:    addr,
		limiter: limit.PerMinute(maxConnsPerMinute),
		log:     logger,
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop on the bound listener. Cancelling ctx closes the
// listener and every session started from it; Serve returns once they ended.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("tcp server: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.conns.Wait()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp listener started")

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info().Msg("tcp listener stopped")
				return nil
			}
			if !isTemporary(err) {
				return fmt.Errorf("accept: %w", err)
			}
			delay = nextDelay(delay)
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		remote := conn.RemoteAddr().String()
		if !s.limiter.Allow() {
			s.log.Warn().Str("remote", remote).Msg("connection rate exceeded, rejecting")
			_ = conn.Close()
			continue
		}

		s.conns.Add(1)
		go s.handle(ctx, conn, remote)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn, remote string) {
	defer s.conns.Done()

	if err := s.hub.Serve(ctx, conn, remote); err != nil {
		s.log.Debug().Err(err).Str("remote", remote).Msg("session ended with error")
	}
}

func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	if errors.As(err, &te) && te.Temporary() {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func nextDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	return min(prev*2, maxAcceptDelay)
}
