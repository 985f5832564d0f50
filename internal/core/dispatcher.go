package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Reply texts. Clients match on some of them literally ("Login successful").
const (
	msgRegistered    = "Registration successful!"
	msgLoginOK       = "Login successful"
	msgInvalidLogin  = "Invalid username or password"
	msgUserExists    = "Error: Username already exists. Try another one."
	msgBadUsername   = "Error: Username must be 3-32 characters without spaces"
	msgBadPassword   = "Error: Password must be at least 3 characters without spaces"
	msgUsageCreds    = "Error: Expected \"<username> <password>\""
	msgUsagePrivate  = "Error: Expected \"<recipient> <message>\""
	msgNotLoggedIn   = "Error: You must log in first"
	msgNotInRoom     = "Error: Not in a room"
	msgNotInRoomSend = "Error: Not in a room, join a room first"
	msgLeftRoom      = "Left the room"
	msgNoRoomToLeave = "You are not in a room"
	msgNoRooms       = "No rooms available"
	msgUserNotFound  = "Error: User not found"
	msgEmptyMessage  = "Error: Message is empty"
	msgServerOnly    = "Error: BROADCAST is a server-only message type"
	msgInternal      = "Error: Internal server error, please try again"
)

const (
	maxRoomNameLength = 64
	historyTimeLayout = time.DateTime
)

type handlerFunc func(h *Hub, ctx context.Context, s *Session, env proto.Envelope) error

var handlers = map[proto.Type]handlerFunc{
	proto.TypeRegister:       (*Hub).handleRegister,
	proto.TypeLogin:          (*Hub).handleLogin,
	proto.TypeMessage:        (*Hub).handleMessage,
	proto.TypeBroadcast:      (*Hub).handleBroadcast,
	proto.TypeHistory:        (*Hub).handleHistory,
	proto.TypeJoinRoom:       (*Hub).handleJoinRoom,
	proto.TypeLeaveRoom:      (*Hub).handleLeaveRoom,
	proto.TypeCreateRoom:     (*Hub).handleCreateRoom,
	proto.TypeListRooms:      (*Hub).handleListRooms,
	proto.TypePrivateMessage: (*Hub).handlePrivateMessage,
	proto.TypeDisconnect:     (*Hub).handleDisconnect,
}

// dispatch runs one envelope against the session state. A non-nil return ends
// the session; precondition and store failures are replied and swallowed.
func (h *Hub) dispatch(ctx context.Context, s *Session, env proto.Envelope) error {
	handle, ok := handlers[env.Type]
	if !ok {
		return &proto.FrameError{Err: proto.ErrUnknownType, Type: env.Type, Length: uint32(len(env.Payload))}
	}

	err := handle(h, ctx, s, env)
	if err == nil || errors.Is(err, errDisconnect) || isTransportError(err) {
		return err
	}

	var ce *CoreError
	if errors.As(err, &ce) {
		s.log.Debug().Stringer("type", env.Type).Str("code", ce.Code).Msg("request rejected")
		return s.Reply(env.Type, ce.Message)
	}

	s.log.Error().Err(err).Stringer("type", env.Type).Msg("request failed")
	return s.Reply(env.Type, msgInternal)
}

func (h *Hub) requireAuth(s *Session) error {
	if !s.Authenticated() {
		return coreError(ErrCodeUnauthorized, msgNotLoggedIn)
	}
	return nil
}

func (h *Hub) handleRegister(ctx context.Context, s *Session, env proto.Envelope) error {
	creds, ok := proto.ParseCredentials(env.Text())
	if !ok {
		return coreError(ErrCodeBadRequest, msgUsageCreds)
	}

	if err := h.auth.Register(ctx, creds.Username, creds.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			return coreError(ErrCodeUserExists, msgUserExists)
		case errors.Is(err, auth.ErrInvalidUsername):
			return coreError(ErrCodeBadRequest, msgBadUsername)
		case errors.Is(err, auth.ErrInvalidPassword):
			return coreError(ErrCodeBadRequest, msgBadPassword)
		}
		return fmt.Errorf("register %q: %w", creds.Username, err)
	}

	s.log.Info().Str("user", creds.Username).Msg("user registered")
	return s.Reply(env.Type, msgRegistered)
}

func (h *Hub) handleLogin(ctx context.Context, s *Session, env proto.Envelope) error {
	if s.Authenticated() {
		return coreErrorf(ErrCodeAlreadyLoggedIn, "Error: Already logged in as %s", s.username)
	}

	creds, ok := proto.ParseCredentials(env.Text())
	if !ok {
		return coreError(ErrCodeBadRequest, msgUsageCreds)
	}

	if err := h.auth.Verify(ctx, creds.Username, creds.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.log.Info().Str("user", creds.Username).Msg("login rejected")
			return coreError(ErrCodeInvalidCredentials, msgInvalidLogin)
		}
		return fmt.Errorf("verify %q: %w", creds.Username, err)
	}

	s.username = creds.Username
	if err := h.users.Insert(creds.Username, s); err != nil {
		s.username = ""
		return coreErrorf(ErrCodeAlreadyLoggedIn, "Error: User %s is already logged in", creds.Username)
	}

	s.log.Info().Str("user", s.username).Msg("user logged in")
	return s.Reply(env.Type, msgLoginOK)
}

func (h *Hub) handleJoinRoom(ctx context.Context, s *Session, env proto.Envelope) error {
	if err := h.requireAuth(s); err != nil {
		return err
	}
	name, err := NormalizeRoomName(env.Text())
	if err != nil {
		return err
	}

	exists, err := h.roomDB.RoomExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check room %q: %w", name, err)
	}
	if !exists {
		return coreErrorf(ErrCodeRoomNotFound, "Error: Room %s does not exist. Use /create to create a new room.", name)
	}

	if s.room != name {
		if s.room != "" {
			h.rooms.Leave(s.room, s)
		}
		h.rooms.Join(name, s)
		s.room = name
		s.log.Info().Str("room", name).Msg("joined room")
	}

	return s.Reply(env.Type, "Joined room "+name)
}

func (h *Hub) handleLeaveRoom(_ context.Context, s *Session, env proto.Envelope) error {
	if err := h.requireAuth(s); err != nil {
		return err
	}
	if s.room == "" {
		return s.Reply(env.Type, msgNoRoomToLeave)
	}

	h.rooms.Leave(s.room, s)
	s.log.Info().Str("room", s.room).Msg("left room")
	s.room = ""
	return s.Reply(env.Type, msgLeftRoom)
}

func (h *Hub) handleCreateRoom(ctx context.Context, s *Session, env proto.Envelope) error {
	if err := h.requireAuth(s); err != nil {
		return err
	}
	name, err := NormalizeRoomName(env.Text())
	if err != nil {
		return err
	}

	exists, err := h.roomDB.RoomExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check room %q: %w", name, err)
	}
	if exists {
		return coreErrorf(ErrCodeRoomExists, "Error: Room %s already exists", name)
	}

	if _, err := h.roomDB.CreateRoom(ctx, name); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return coreErrorf(ErrCodeRoomExists, "Error: Room %s already exists", name)
		}
		return fmt.Errorf("create room %q: %w", name, err)
	}
	h.rooms.Ensure(name)

	s.log.Info().Str("room", name).Msg("room created")
	return s.Reply(env.Type, fmt.Sprintf("Room %s created, enter /join to join it", name))
}

// LIST_ROOMS is open to unauthenticated sessions.
func (h *Hub) handleListRooms(ctx context.Context, s *Session, env proto.Envelope) error {
	names, err := h.roomDB.ListRoomNames(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	if len(names) == 0 {
		return s.Reply(env.Type, msgNoRooms)
	}
	return s.Reply(env.Type, strings.Join(names, "\n"))
}

func (h *Hub) handleMessage(ctx context.Context, s *Session, env proto.Envelope) error {
	if err := h.requireAuth(s); err != nil {
		return err
	}
	if s.room == "" {
		return coreError(ErrCodeNotInRoom, msgNotInRoomSend)
	}

	text := env.Text()
	if strings.TrimSpace(text) == "" {
		return coreError(ErrCodeBadRequest, msgEmptyMessage)
	}

	msg := &store.Message{Room: s.room, Sender: s.username, Body: text}
	if err := h.messages.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	n := h.rooms.Broadcast(s.room, proto.NewText(proto.TypeBroadcast, s.username+": "+text), s)
	s.log.Debug().Str("room", s.room).Int("recipients", n).Msg("message broadcast")
	return nil
}

func (h *Hub) handleHistory(ctx context.Context, s *Session, env proto.Envelope) error {
	if err := h.requireAuth(s); err != nil {
		return err
	}
	if s.room == "" {
		return coreError(ErrCodeNotInRoom, msgNotInRoom)
	}

	messages, err := h.messages.ListMessages(ctx, s.room, h.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s %s: %s", m.CreatedAt.UTC().Format(historyTimeLayout), m.Sender, m.Body))
	}
	return s.Reply(env.Type, strings.Join(lines, "\n"))
}

func (h *Hub) handlePrivateMessage(ctx context.Context, s *Session, env proto.Envelope) error {
	if err := h.requireAuth(s); err != nil {
		return err
	}
	pm, ok := proto.ParsePrivate(env.Text())
	if !ok {
		return coreError(ErrCodeBadRequest, msgUsagePrivate)
	}

	recipient, ok := h.users.Lookup(pm.Recipient)
	if !ok {
		return coreError(ErrCodeUserNotFound, msgUserNotFound)
	}

	delivery := proto.NewText(proto.TypePrivateMessage, fmt.Sprintf("Private message from %s: %s", s.username, pm.Text))
	if err := recipient.Send(delivery); err != nil {
		recipient.log.Warn().Err(err).Msg("dropping recipient on failed private delivery")
		recipient.Close()
		return coreErrorf(ErrCodeUndelivered, "Error: Could not deliver message to %s", pm.Recipient)
	}

	record := &store.PrivateMessage{Sender: s.username, Recipient: pm.Recipient, Body: pm.Text}
	if err := h.messages.SavePrivateMessage(ctx, record); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist private message")
	}
	return nil
}

func (h *Hub) handleBroadcast(_ context.Context, _ *Session, _ proto.Envelope) error {
	return coreError(ErrCodeBadRequest, msgServerOnly)
}

func (h *Hub) handleDisconnect(_ context.Context, _ *Session, _ proto.Envelope) error {
	return errDisconnect
}

// NormalizeRoomName trims a requested room name and rejects empty, oversized or
// non-printable names with a *CoreError.
func NormalizeRoomName(payload string) (string, error) {
	name := strings.TrimSpace(payload)
	if name == "" {
		return "", coreError(ErrCodeBadRequest, "Error: Room name is required")
	}
	if len(name) > maxRoomNameLength || strings.ContainsFunc(name, unicode.IsControl) {
		return "", coreErrorf(ErrCodeBadRequest, "Error: Room name must be at most %d printable characters", maxRoomNameLength)
	}
	return name, nil
}
