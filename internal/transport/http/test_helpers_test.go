package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

const (
	testTimeout   = 2 * time.Second
	testJWTSecret = "test-secret"
)

type testEnv struct {
	router stdhttp.Handler
	server *httptest.Server
	hub    *core.Hub
	store  *sqlite.SQLiteStore
	auth   *auth.Service
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.JWTSecret = testJWTSecret
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	hub := core.NewHub(authService, st, st, &logger, core.Options{
		MaxPayload:    cfg.MaxPayloadBytes,
		OutboundQueue: cfg.OutboundQueue,
		HistoryLimit:  cfg.HistoryLimit,
	})

	router := NewHandler(hub, authService, st, cfg, &logger)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	t.Cleanup(hub.CloseAll)

	return &testEnv{router: router, server: ts, hub: hub, store: st, auth: authService}
}

// do runs a request against the router. body is JSON-encoded unless nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = data
	}
	reader := bytes.NewReader(payload)

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) signUp(t *testing.T, username, password string) string {
	t.Helper()

	token, err := e.auth.SignUp(context.Background(), username, password)
	if err != nil {
		t.Fatalf("sign up %s: %v", username, err)
	}
	return token
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", resp.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, resp *httptest.ResponseRecorder, want int) {
	t.Helper()

	if resp.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.Code, resp.Body.String())
	}
}

// wsClient speaks the framed protocol over a WebSocket.
type wsClient struct {
	t      *testing.T
	conn   net.Conn
	reader *proto.Reader
}

func (e *testEnv) dialWS(t *testing.T) *wsClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	wsURL := strings.Replace(e.server.URL, "http", "ws", 1) + "/ws"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	conn := websocket.NetConn(context.Background(), c, websocket.MessageBinary)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn, reader: proto.NewReader(conn, 0)}
}

func (c *wsClient) send(typ proto.Type, text string) {
	c.t.Helper()

	_ = c.conn.SetWriteDeadline(time.Now().Add(testTimeout))
	if err := proto.WriteFrame(c.conn, proto.NewText(typ, text)); err != nil {
		c.t.Fatalf("send %s: %v", typ, err)
	}
}

func (c *wsClient) expect(typ proto.Type) string {
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

func (c *wsClient) request(typ proto.Type, text string) string {
	c.t.Helper()

	c.send(typ, text)
	return c.expect(typ)
}

func (c *wsClient) signIn(username, password string) {
	c.t.Helper()

	c.request(proto.TypeRegister, proto.FormatCredentials(username, password))
	if reply := c.request(proto.TypeLogin, proto.FormatCredentials(username, password)); reply != "Login successful" {
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
