package http

import (
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID        int64    `json:"id,omitempty"`
	Name      string   `json:"name"`
	Online    []string `json:"online"`
	CreatedAt string   `json:"created_at,omitempty"`
}

// MessageResponse represents a room message in API responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Room      string `json:"room"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// PrivateMessageResponse represents a direct message in API responses.
type PrivateMessageResponse struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func roomFromStore(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		Online:    []string{},
		CreatedAt: formatTime(room.CreatedAt),
	}
}

func messagesFromStore(messages []*store.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, MessageResponse{
			ID:        m.ID,
			Room:      m.Room,
			Sender:    m.Sender,
			Text:      m.Body,
			CreatedAt: formatTime(m.CreatedAt),
		})
	}
	return out
}

func privateMessagesFromStore(messages []*store.PrivateMessage) []PrivateMessageResponse {
	out := make([]PrivateMessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, PrivateMessageResponse{
			ID:        m.ID,
			Sender:    m.Sender,
			Recipient: m.Recipient,
			Text:      m.Body,
			CreatedAt: formatTime(m.CreatedAt),
		})
	}
	return out
}
