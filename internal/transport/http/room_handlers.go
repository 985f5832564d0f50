package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// RoomHandlers provides HTTP handlers for room endpoints.
type RoomHandlers struct {
	rooms        store.RoomStore
	messages     store.MessageStore
	registry     *core.Registry
	historyLimit int
	log          *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(rooms store.RoomStore, messages store.MessageStore, registry *core.Registry, historyLimit int, logger *zerolog.Logger) *RoomHandlers {
	if historyLimit <= 0 {
		historyLimit = core.DefaultHistoryLimit
	}
	return &RoomHandlers{
		rooms:        rooms,
		messages:     messages,
		registry:     registry,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateRoom handles room creation. Rooms are shared with CREATE_ROOM.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	name, err := core.NormalizeRoomName(req.Name)
	if err != nil {
		var ce *core.CoreError
		if errors.As(err, &ce) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: ce.Message})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room name"})
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("room_name", name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	h.registry.Ensure(room.Name)

	username, _ := currentUsername(c)
	h.log.Info().Str("room_name", room.Name).Int64("room_id", room.ID).Str("by", username).Msg("room created")
	c.JSON(http.StatusCreated, roomFromStore(room))
}

// ListRooms returns every persisted room with the users currently in it.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	names, err := h.rooms.ListRoomNames(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	online := make(map[string][]string)
	for _, stat := range h.registry.Stats() {
		online[stat.Name] = stat.Members
	}

	response := make([]RoomResponse, 0, len(names))
	for _, name := range names {
		members := online[name]
		if members == nil {
			members = []string{}
		}
		response = append(response, RoomResponse{Name: name, Online: members})
	}

	h.log.Debug().Int("room_count", len(response)).Msg("rooms listed")
	c.JSON(http.StatusOK, response)
}

// History returns the most recent messages of a room, oldest first.
// GET /api/rooms/:name/history?limit=N
func (h *RoomHandlers) History(c *gin.Context) {
	name := c.Param("name")

	limit, ok := parseLimit(c, h.historyLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		return
	}

	exists, err := h.rooms.RoomExists(c.Request.Context(), name)
	if err != nil {
		h.log.Error().Err(err).Str("room_name", name).Msg("failed to check room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	messages, err := h.messages.ListMessages(c.Request.Context(), name, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room_name", name).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, messagesFromStore(messages))
}

// parseLimit reads ?limit=, defaulting to and capping at ceiling.
func parseLimit(c *gin.Context, ceiling int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return ceiling, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, false
	}
	return min(limit, ceiling), true
}
