package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
	"github.com/vovakirdan/wirechat-relay/internal/transport/tcp"
)

const testTimeout = 2 * time.Second

// startRelay runs a relay with both a TCP listener and the WebSocket gateway
// and returns their addresses.
func startRelay(t *testing.T) (tcpAddr, wsURL string) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{Secret: []byte("test"), TTL: time.Hour})
	hub := core.NewHub(authService, st, st, &logger, core.Options{})

	srv := tcp.NewServer(hub, "127.0.0.1:0", 0, &logger)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(served)
	}()

	ts := httptest.NewServer(transporthttp.NewHandler(hub, authService, st, config.Default(), &logger))

	t.Cleanup(func() {
		cancel()
		<-served
		hub.CloseAll()
		ts.Close()
	})
	return srv.Addr().String(), strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

func dial(t *testing.T, addr string) *Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	c, err := Dial(ctx, addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTCPAndWebSocketClientsShareRooms(t *testing.T) {
	tcpAddr, wsURL := startRelay(t)

	alice := dial(t, tcpAddr)
	if err := alice.Login("alice", "pw1", true, testTimeout); err != nil {
		t.Fatalf("alice login: %v", err)
	}
	if _, err := alice.Request(proto.TypeCreateRoom, "lobby", testTimeout); err != nil {
		t.Fatalf("create: %v", err)
	}
	if reply, err := alice.Request(proto.TypeJoinRoom, "lobby", testTimeout); err != nil || reply != "Joined room lobby" {
		t.Fatalf("join: %q %v", reply, err)
	}

	bob := dial(t, wsURL)
	if err := bob.Login("bob", "pw2", true, testTimeout); err != nil {
		t.Fatalf("bob login: %v", err)
	}
	if _, err := bob.Request(proto.TypeJoinRoom, "lobby", testTimeout); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := alice.Send(proto.TypeMessage, "across transports"); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = bob.SetDeadline(time.Now().Add(testTimeout))
	env, err := bob.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if env.Type != proto.TypeBroadcast || env.Text() != "alice: across transports" {
		t.Fatalf("unexpected frame %s %q", env.Type, env.Text())
	}
	_ = bob.SetDeadline(time.Time{})

	history, err := bob.Request(proto.TypeHistory, "", testTimeout)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(history, "alice: across transports") {
		t.Fatalf("history missing message: %q", history)
	}
}

func TestLoginFailure(t *testing.T) {
	tcpAddr, _ := startRelay(t)

	c := dial(t, tcpAddr)
	err := c.Login("ghost", "pw1", false, testTimeout)
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
}

func TestRequestKeepsFramesForReceive(t *testing.T) {
	tcpAddr, _ := startRelay(t)

	alice := dial(t, tcpAddr)
	if err := alice.Login("alice", "pw1", true, testTimeout); err != nil {
		t.Fatalf("alice login: %v", err)
	}
	bob := dial(t, tcpAddr)
	if err := bob.Login("bob", "pw2", true, testTimeout); err != nil {
		t.Fatalf("bob login: %v", err)
	}

	if err := alice.Send(proto.TypePrivateMessage, "bob are you there"); err != nil {
		t.Fatalf("send: %v", err)
	}
	// The private message is queued for bob before alice gets this reply.
	if _, err := alice.Request(proto.TypeListRooms, "", testTimeout); err != nil {
		t.Fatalf("alice list: %v", err)
	}

	if reply, err := bob.Request(proto.TypeListRooms, "", testTimeout); err != nil || reply != "No rooms available" {
		t.Fatalf("bob list: %q %v", reply, err)
	}

	_ = bob.SetDeadline(time.Now().Add(testTimeout))
	env, err := bob.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if env.Type != proto.TypePrivateMessage || env.Text() != "Private message from alice: are you there" {
		t.Fatalf("unexpected frame %s %q", env.Type, env.Text())
	}
}
