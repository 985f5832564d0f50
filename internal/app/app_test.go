package app

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func TestAppServesAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "relay.db")
	cfg.ShutdownTimeout = time.Second

	logger := zerolog.Nop()
	a, err := New(cfg, &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.tcpServer.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("tcp listener did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn, err := net.DialTimeout("tcp", a.tcpServer.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	if err := proto.WriteFrame(conn, proto.NewText(proto.TypeListRooms, "")); err != nil {
		t.Fatalf("write: %v", err)
	}
	env, err := proto.NewReader(conn, 0).ReadFrame()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != proto.TypeListRooms || env.Text() != "No rooms available" {
		t.Fatalf("unexpected reply %s %q", env.Type, env.Text())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("app did not shut down")
	}
}
