package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// NewServer builds the HTTP server exposing the REST API and the WebSocket gateway.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewHandler(hub, authService, st, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts the WebSocket gateway on a plain mux and sends every
// other path to the gin router. /ws stays outside gin because gin's writer
// refuses to hijack once the upgrade response has been written.
func NewHandler(hub *core.Hub, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	if cfg.WebsocketEnabled {
		mux.Handle("/ws", NewWSHandler(hub, cfg.MaxPayloadBytes, cfg.MaxConnsPerMinute, logger))
	}
	mux.Handle("/", NewRouter(hub, authService, st, cfg, logger))
	return mux
}

// NewRouter registers the REST routes on a fresh gin engine.
func NewRouter(hub *core.Hub, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(st, st, hub.Rooms(), cfg.HistoryLimit, logger)
	userHandlers := NewUserHandlers(hub.Directory(), st, cfg.HistoryLimit, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))
	protected.GET("/rooms", roomHandlers.ListRooms)
	protected.POST("/rooms", roomHandlers.CreateRoom)
	protected.GET("/rooms/:name/history", roomHandlers.History)
	protected.GET("/online", userHandlers.Online)
	protected.GET("/dm/:user", userHandlers.DirectMessages)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
