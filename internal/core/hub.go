package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultOutboundQueue = 64
	DefaultHistoryLimit  = 100
	DefaultFlushTimeout  = 2 * time.Second
)

// Authenticator is the user-store capability the hub needs.
type Authenticator interface {
	// Register creates the user if the name is free.
	Register(ctx context.Context, username, password string) error
	// Verify checks a username/password pair.
	Verify(ctx context.Context, username, password string) error
}

// Options tunes per-session resources.
type Options struct {
	MaxPayload    int
	OutboundQueue int
	HistoryLimit  int
	FlushTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxPayload <= 0 {
		o.MaxPayload = proto.DefaultMaxPayload
	}
	if o.OutboundQueue <= 0 {
		o.OutboundQueue = DefaultOutboundQueue
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = DefaultFlushTimeout
	}
	return o
}

// Hub owns the shared state of the relay: the room registry, the directory
// and the set of live sessions. Every connection is driven by Serve.
type Hub struct {
	rooms    *Registry
	users    *Directory
	auth     Authenticator
	roomDB   store.RoomStore
	messages store.MessageStore
	opts     Options
	log      *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closing  bool
	wg       sync.WaitGroup
}

// ErrHubClosed is returned by Serve once CloseAll has been called.
var ErrHubClosed = errors.New("hub closed")

// NewHub creates a hub backed by the given collaborators.
func NewHub(auth Authenticator, rooms store.RoomStore, messages store.MessageStore, logger *zerolog.Logger, opts Options) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		rooms:    NewRegistry(),
		users:    NewDirectory(),
		auth:     auth,
		roomDB:   rooms,
		messages: messages,
		opts:     opts.withDefaults(),
		log:      logger,
		sessions: make(map[string]*Session),
	}
}

// Rooms exposes the room registry.
func (h *Hub) Rooms() *Registry {
	return h.rooms
}

// Directory exposes the username directory.
func (h *Hub) Directory() *Directory {
	return h.users
}

// SessionCount returns the number of live connections.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Serve runs the session for conn until the client disconnects, the stream
// fails, or ctx is cancelled. It returns nil for an orderly end (DISCONNECT
// or EOF) and the terminating error otherwise. Cleanup runs exactly once on
// every path.
func (h *Hub) Serve(ctx context.Context, conn io.ReadWriteCloser, remote string) (err error) {
	s := newSession(conn, remote, h.opts.OutboundQueue, *h.log)
	if !h.track(s) {
		_ = conn.Close()
		return ErrHubClosed
	}
	defer h.finalize(s)

	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	go s.writeLoop()

	s.log.Info().Msg("session started")

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("session panicked")
			err = fmt.Errorf("session panic: %v", r)
		}
	}()

	reader := proto.NewReader(conn, h.opts.MaxPayload)
	for {
		env, readErr := reader.ReadFrame()
		if readErr != nil {
			return h.readError(s, readErr)
		}

		if dispatchErr := h.dispatch(ctx, s, env); dispatchErr != nil {
			if errors.Is(dispatchErr, errDisconnect) {
				s.log.Info().Msg("client disconnected")
				return nil
			}
			s.log.Warn().Err(dispatchErr).Msg("ending session")
			return dispatchErr
		}
	}
}

func (h *Hub) readError(s *Session, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		s.log.Info().Msg("connection closed by peer")
		return nil
	case proto.IsFrameError(err):
		s.log.Warn().Err(err).Msg("protocol error")
		return err
	default:
		select {
		case <-s.Done():
			// Closed locally: slow consumer, write failure or shutdown.
			s.log.Info().Msg("session closed")
			return nil
		default:
		}
		s.log.Warn().Err(err).Msg("read failed")
		return err
	}
}

// finalize removes every reference to s and releases its connection.
func (h *Hub) finalize(s *Session) {
	if s.room != "" {
		h.rooms.Leave(s.room, s)
		s.room = ""
	}
	if s.username != "" {
		h.users.Remove(s.username, s)
	}
	s.shutdown(h.opts.FlushTimeout)

	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	h.wg.Done()

	s.log.Info().Str("user", s.username).Msg("session ended")
}

func (h *Hub) track(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions[s.ID] = s
	h.wg.Add(1)
	return true
}

// CloseAll closes every live session and waits for their cleanup.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closing = true
	live := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		live = append(live, s)
	}
	h.mu.Unlock()

	for _, s := range live {
		s.Close()
	}
	h.wg.Wait()
	h.log.Info().Int("sessions", len(live)).Msg("all sessions closed")
}
