package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

const testTimeout = 2 * time.Second

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestHub(t *testing.T, opts Options) (*Hub, *sqlite.SQLiteStore) {
	t.Helper()

	st := newTestStore(t)
	authService := auth.NewService(st, &auth.JWTConfig{Secret: []byte("test"), TTL: time.Hour})
	return newTestHubWith(st, authService, st, opts), st
}

func newTestHubWith(rooms store.RoomStore, authenticator Authenticator, messages store.MessageStore, opts Options) *Hub {
	logger := zerolog.Nop()
	return NewHub(authenticator, rooms, messages, &logger, opts)
}

// testClient drives one Hub session over an in-memory pipe.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *proto.Reader
	served chan error
}

func connect(t *testing.T, hub *Hub) *testClient {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	served := make(chan error, 1)
	go func() {
		served <- hub.Serve(context.Background(), serverSide, "pipe")
	}()

	c := &testClient{
		t:      t,
		conn:   clientSide,
		reader: proto.NewReader(clientSide, 0),
		served: served,
	}
	t.Cleanup(func() {
		_ = clientSide.Close()
		select {
		case <-served:
		case <-time.After(testTimeout):
			t.Errorf("session did not finish after client close")
		}
	})
	return c
}

func (c *testClient) send(typ proto.Type, text string) {
	c.t.Helper()

	_ = c.conn.SetWriteDeadline(time.Now().Add(testTimeout))
	if err := proto.WriteFrame(c.conn, proto.NewText(typ, text)); err != nil {
		c.t.Fatalf("send %s: %v", typ, err)
	}
}

func (c *testClient) expect(typ proto.Type) string {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	env, err := c.reader.ReadFrame()
	if err != nil {
		c.t.Fatalf("expected %s frame, got error: %v", typ, err)
	}
	if env.Type != typ {
		c.t.Fatalf("expected %s frame, got %s %q", typ, env.Type, env.Text())
	}
	return env.Text()
}

func (c *testClient) request(typ proto.Type, text string) string {
	c.t.Helper()

	c.send(typ, text)
	return c.expect(typ)
}

// exchange sends one request and returns the reply without failing the test,
// for use from goroutines other than the test's own.
func (c *testClient) exchange(typ proto.Type, text string) (string, error) {
	_ = c.conn.SetDeadline(time.Now().Add(testTimeout))
	if err := proto.WriteFrame(c.conn, proto.NewText(typ, text)); err != nil {
		return "", err
	}
	env, err := c.reader.ReadFrame()
	if err != nil {
		return "", err
	}
	if env.Type != typ {
		return "", fmt.Errorf("expected %s reply, got %s %q", typ, env.Type, env.Text())
	}
	return env.Text(), nil
}

// expectSilence asserts that nothing arrives for a short while.
func (c *testClient) expectSilence() {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	env, err := c.reader.ReadFrame()
	if err == nil {
		c.t.Fatalf("expected no frame, got %s %q", env.Type, env.Text())
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		c.t.Fatalf("expected read timeout, got %v", err)
	}
}

// expectClosed asserts that the server closed the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	if _, err := c.reader.ReadFrame(); !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
		c.t.Fatalf("expected closed connection, got %v", err)
	}
}

func (c *testClient) serveResult() error {
	c.t.Helper()

	select {
	case err := <-c.served:
		c.served <- err
		return err
	case <-time.After(testTimeout):
		c.t.Fatalf("session still running")
		return nil
	}
}

func (c *testClient) signIn(username, password string) {
	c.t.Helper()

	if reply := c.request(proto.TypeRegister, proto.FormatCredentials(username, password)); reply != msgRegistered {
		c.t.Fatalf("register %s: unexpected reply %q", username, reply)
	}
	if reply := c.request(proto.TypeLogin, proto.FormatCredentials(username, password)); reply != msgLoginOK {
		c.t.Fatalf("login %s: unexpected reply %q", username, reply)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", what)
}

// discardConn backs sessions that are used without a network peer.
type discardConn struct{}

func (discardConn) Read([]byte) (int, error)    { return 0, io.EOF }
func (discardConn) Write(p []byte) (int, error) { return len(p), nil }
func (discardConn) Close() error                { return nil }

func newTestSession(queue int) *Session {
	return newSession(discardConn{}, "test", queue, zerolog.Nop())
}
