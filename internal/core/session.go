package core

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// Session is the server-side state of one client connection. It owns the
// connection exclusively; rooms and the directory only hold references.
//
// username and room are written by the session's own read loop only.
// username is set before the session is published to the directory and
// never changes afterwards.
type Session struct {
	ID     string
	Remote string

	conn io.ReadWriteCloser
	out  chan proto.Envelope

	quit       chan struct{} // graceful: flush queue, then stop
	done       chan struct{} // abrupt: stop now
	writerDone chan struct{}
	quitOnce   sync.Once
	closeOnce  sync.Once

	username string
	room     string

	log zerolog.Logger
}

func newSession(conn io.ReadWriteCloser, remote string, queueSize int, logger zerolog.Logger) *Session {
	if queueSize <= 0 {
		queueSize = DefaultOutboundQueue
	}
	id := uuid.NewString()
	return &Session{
		ID:         id,
		Remote:     remote,
		conn:       conn,
		out:        make(chan proto.Envelope, queueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		log:        logger.With().Str("session_id", id).Str("remote", remote).Logger(),
	}
}

// Username returns the authenticated username, or "" before login.
func (s *Session) Username() string {
	return s.username
}

// Authenticated reports whether LOGIN succeeded on this session.
func (s *Session) Authenticated() bool {
	return s.username != ""
}

// Send queues an envelope for the write loop without blocking.
func (s *Session) Send(env proto.Envelope) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.out <- env:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSlowConsumer
	}
}

// Reply queues a text envelope of the given type.
func (s *Session) Reply(t proto.Type, text string) error {
	return s.Send(proto.NewText(t, text))
}

// Close tears the connection down immediately. Safe to call from any goroutine
// and more than once; the owning read loop notices and runs the cleanup.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			s.log.Debug().Err(err).Msg("close connection")
		}
	})
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// shutdown asks the write loop to flush what is queued, waits up to timeout,
// then closes the connection.
func (s *Session) shutdown(timeout time.Duration) {
	s.quitOnce.Do(func() { close(s.quit) })

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.writerDone:
	case <-timer.C:
		s.log.Debug().Dur("timeout", timeout).Msg("flush timed out")
	}
	s.Close()
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)

	for {
		select {
		case env := <-s.out:
			if !s.write(env) {
				return
			}
		case <-s.quit:
			for {
				select {
				case env := <-s.out:
					if !s.write(env) {
						return
					}
				default:
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) write(env proto.Envelope) bool {
	if err := proto.WriteFrame(s.conn, env); err != nil {
		s.log.Debug().Err(err).Stringer("type", env.Type).Msg("write failed")
		s.Close()
		return false
	}
	return true
}
