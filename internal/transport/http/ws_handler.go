package http

import (
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/transport/limit"
)

// WSHandler upgrades HTTP connections and runs them as hub sessions. Binary
// WebSocket messages form one byte stream carrying the same frames as TCP.
type WSHandler struct {
	hub       *core.Hub
	readLimit int64
	limiter   *limit.Limiter
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, maxPayload, maxConnsPerMinute int, logger *zerolog.Logger) *WSHandler {
	if maxPayload <= 0 {
		maxPayload = proto.DefaultMaxPayload
	}
	return &WSHandler{
		hub:       hub,
		readLimit: int64(maxPayload + proto.HeaderSize),
		limiter:   limit.PerMinute(maxConnsPerMinute),
		log:       logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	start := time.Now()
	if !h.limiter.Allow() {
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("ws connection rate exceeded")
		stdhttp.Error(w, "too many connections", stdhttp.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	conn.SetReadLimit(h.readLimit)

	ctx := r.Context()
	stream := websocket.NetConn(ctx, conn, websocket.MessageBinary)

	// Serve closes stream on every path, which sends a normal closure.
	err = h.hub.Serve(ctx, stream, r.RemoteAddr)
	if err != nil && !errors.Is(err, core.ErrHubClosed) {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws session ended with error")
	}

	h.log.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote", r.RemoteAddr).
		Dur("duration", time.Since(start)).
		Msg("ws session closed")
}
