package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique name is already taken.
	ErrConflict = errors.New("already exists")
)

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Room represents a persisted chat room.
type Room struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Message represents a persisted room message.
type Message struct {
	ID        int64
	Room      string
	Sender    string
	Body      string
	CreatedAt time.Time
}

// PrivateMessage represents a persisted direct message between two users.
type PrivateMessage struct {
	ID        int64
	Sender    string
	Recipient string
	Body      string
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// UserExists reports whether the username is taken.
	UserExists(ctx context.Context, username string) (bool, error)

	// CreateUser creates a new user with an already hashed password.
	// Returns ErrConflict if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	// Returns ErrNotFound if absent.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// RoomExists reports whether a room with the given name was created.
	RoomExists(ctx context.Context, name string) (bool, error)

	// CreateRoom persists a new room. Returns ErrConflict if the name is taken.
	CreateRoom(ctx context.Context, name string) (*Room, error)

	// ListRoomNames returns all room names in creation order.
	ListRoomNames(ctx context.Context) ([]string, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a room message and fills in its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit of the newest messages of a room,
	// oldest first. A limit of zero or less returns the whole history.
	ListMessages(ctx context.Context, room string, limit int) ([]*Message, error)

	// SavePrivateMessage persists a direct message.
	SavePrivateMessage(ctx context.Context, msg *PrivateMessage) error

	// ListPrivateMessages returns the conversation between two users in
	// either direction, oldest first.
	ListPrivateMessages(ctx context.Context, userA, userB string, limit int) ([]*PrivateMessage, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
