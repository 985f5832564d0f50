package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// UserHandlers provides HTTP handlers for presence and direct messages.
type UserHandlers struct {
	directory    *core.Directory
	messages     store.MessageStore
	historyLimit int
	log          *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(directory *core.Directory, messages store.MessageStore, historyLimit int, logger *zerolog.Logger) *UserHandlers {
	if historyLimit <= 0 {
		historyLimit = core.DefaultHistoryLimit
	}
	return &UserHandlers{
		directory:    directory,
		messages:     messages,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// OnlineResponse lists users with a live session.
type OnlineResponse struct {
	Users []string `json:"users"`
}

// Online handles presence queries.
// GET /api/online
func (h *UserHandlers) Online(c *gin.Context) {
	c.JSON(http.StatusOK, OnlineResponse{Users: h.directory.Online()})
}

// DirectMessages returns the private conversation between the caller and :user.
// GET /api/dm/:user?limit=N
func (h *UserHandlers) DirectMessages(c *gin.Context) {
	username, ok := currentUsername(c)
	if !ok {
		h.log.Error().Msg("username not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	limit, ok := parseLimit(c, h.historyLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		return
	}

	peer := c.Param("user")
	messages, err := h.messages.ListPrivateMessages(c.Request.Context(), username, peer, limit)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Str("peer", peer).Msg("failed to list private messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, privateMessagesFromStore(messages))
}
