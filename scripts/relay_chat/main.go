package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/client"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

const requestTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("relay_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:5555", "relay address (host:port for TCP, ws://host/ws for WebSocket)")
	user := flag.String("user", "", "username")
	password := flag.String("password", "", "password")
	register := flag.Bool("register", false, "register the user before logging in")
	room := flag.String("room", "", "room to join after login")
	flag.Parse()

	if *user == "" || *password == "" {
		return errors.New("-user and -password are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.Dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Login(*user, *password, *register, requestTimeout); err != nil {
		return err
	}
	fmt.Printf("Logged in to %s as %s\n", *addr, *user)

	if *room != "" {
		reply, err := conn.Request(proto.TypeJoinRoom, *room, requestTimeout)
		if err != nil {
			return fmt.Errorf("join: %w", err)
		}
		fmt.Println(reply)
	}

	fmt.Println("Commands: /history, /join <room>, /leave, /create <room>, /list, /private <user> <text>, /quit")

	readDone := make(chan error, 1)
	go func() { readDone <- readLoop(conn) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readDone:
			if err != nil {
				return err
			}
			fmt.Println("Disconnected by server")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			t, payload, quit := parseLine(line)
			if quit {
				return nil
			}
			if t == 0 {
				continue
			}
			if err := conn.Send(t, payload); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

// parseLine maps an input line to a frame. A zero type means nothing to send.
func parseLine(line string) (proto.Type, string, bool) {
	text := strings.TrimSpace(line)
	if text == "" {
		return 0, "", false
	}
	if !strings.HasPrefix(text, "/") {
		return proto.TypeMessage, text, false
	}

	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "/history":
		return proto.TypeHistory, "", false
	case "/join":
		return proto.TypeJoinRoom, arg, false
	case "/leave":
		return proto.TypeLeaveRoom, "", false
	case "/create":
		return proto.TypeCreateRoom, arg, false
	case "/list":
		return proto.TypeListRooms, "", false
	case "/private", "/msg":
		return proto.TypePrivateMessage, arg, false
	case "/quit", "/exit":
		return 0, "", true
	default:
		fmt.Printf("unknown command %s\n", cmd)
		return 0, "", false
	}
}

func readLoop(conn *client.Conn) error {
	for {
		env, err := conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch env.Type {
		case proto.TypeBroadcast:
			fmt.Println(env.Text())
		case proto.TypeHistory:
			fmt.Println("Chat history:")
			fmt.Println(env.Text())
		case proto.TypeListRooms:
			fmt.Println("Available rooms:")
			fmt.Println(env.Text())
		default:
			fmt.Println(env.Text())
		}
	}
}
