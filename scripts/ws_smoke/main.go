package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirechat-relay/internal/client"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run registers two throwaway users, has one speak in a fresh room and checks
// that the other receives the broadcast and that it shows up in the history.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "relay address (ws:// URL or TCP host:port)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	suffix := uuid.NewString()[:8]
	room := "smoke-" + suffix

	speaker, err := connect(ctx, *addr, "spk"+suffix, *timeout)
	if err != nil {
		return err
	}
	defer speaker.Close()

	listener, err := connect(ctx, *addr, "lst"+suffix, *timeout)
	if err != nil {
		return err
	}
	defer listener.Close()

	if reply, err := speaker.Request(proto.TypeCreateRoom, room, *timeout); err != nil {
		return fmt.Errorf("create room: %w", err)
	} else if strings.HasPrefix(reply, "Error:") {
		return fmt.Errorf("create room: %s", reply)
	}
	for _, c := range []*client.Conn{speaker, listener} {
		if _, err := c.Request(proto.TypeJoinRoom, room, *timeout); err != nil {
			return fmt.Errorf("join room: %w", err)
		}
	}

	if err := speaker.Send(proto.TypeMessage, *text); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	deadline, _ := ctx.Deadline()
	_ = listener.SetDeadline(deadline)
	env, err := listener.Receive()
	if err != nil {
		return fmt.Errorf("receive broadcast: %w", err)
	}
	fmt.Printf("Received %s: %s\n", env.Type, env.Text())
	if env.Type != proto.TypeBroadcast || !strings.HasSuffix(env.Text(), ": "+*text) {
		return errors.New("unexpected broadcast")
	}
	_ = listener.SetDeadline(time.Time{})

	history, err := listener.Request(proto.TypeHistory, "", *timeout)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	fmt.Printf("History:\n%s\n", history)
	if !strings.Contains(history, *text) {
		return errors.New("message missing from history")
	}
	fmt.Println("smoke test passed")
	return nil
}

func connect(ctx context.Context, addr, user string, timeout time.Duration) (*client.Conn, error) {
	c, err := client.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := c.Login(user, "smoke-pw", true, timeout); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
