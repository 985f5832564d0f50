// Package client is a small Go client for the relay protocol, used by the
// command line tools under scripts/.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// ErrLoginFailed wraps the server's reply to a rejected LOGIN.
var ErrLoginFailed = errors.New("login failed")

// Conn is one client connection. Send is safe for concurrent use; Receive
// must be called from a single goroutine.
type Conn struct {
	conn    net.Conn
	reader  *proto.Reader
	pending []proto.Envelope

	writeMu sync.Mutex
}

// Dial connects to addr. ws:// and wss:// URLs go through the WebSocket
// gateway; anything else is treated as a TCP host:port.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		ws, _, err := websocket.Dial(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return newConn(websocket.NetConn(context.Background(), ws, websocket.MessageBinary)), nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newConn(conn), nil
}

func newConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: proto.NewReader(conn, 0)}
}

// Send writes one frame.
func (c *Conn) Send(t proto.Type, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return proto.WriteFrame(c.conn, proto.NewText(t, text))
}

// Receive returns the next frame from the server. Frames that Request skipped
// while waiting for its reply come first, in arrival order.
func (c *Conn) Receive() (proto.Envelope, error) {
	if len(c.pending) > 0 {
		env := c.pending[0]
		c.pending = c.pending[1:]
		return env, nil
	}
	return c.reader.ReadFrame()
}

// SetDeadline sets read and write deadlines on the underlying connection.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// Request sends a frame and waits for the reply, which carries the same type.
// Other frames that arrive first are kept for Receive. Only use it while no
// other goroutine is receiving.
func (c *Conn) Request(t proto.Type, text string, timeout time.Duration) (string, error) {
	if err := c.Send(t, text); err != nil {
		return "", err
	}
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}
	for {
		env, err := c.reader.ReadFrame()
		if err != nil {
			return "", err
		}
		if env.Type == t {
			return env.Text(), nil
		}
		c.pending = append(c.pending, env)
	}
}

// Login optionally registers, then logs in. Any reply to LOGIN other than
// success is returned wrapped in ErrLoginFailed.
func (c *Conn) Login(username, password string, register bool, timeout time.Duration) error {
	creds := proto.FormatCredentials(username, password)
	if register {
		reply, err := c.Request(proto.TypeRegister, creds, timeout)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
		if strings.HasPrefix(reply, "Error:") && !strings.Contains(reply, "already exists") {
			return fmt.Errorf("register: %s", reply)
		}
	}

	reply, err := c.Request(proto.TypeLogin, creds, timeout)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if !strings.Contains(reply, "Login successful") {
		return fmt.Errorf("%w: %s", ErrLoginFailed, reply)
	}
	return nil
}

// Close sends DISCONNECT and closes the connection.
func (c *Conn) Close() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.Send(proto.TypeDisconnect, "")
	return c.conn.Close()
}
