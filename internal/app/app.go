package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
	"github.com/vovakirdan/wirechat-relay/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	cfg        config.Config
	httpServer *stdhttp.Server
	tcpServer  *tcp.Server
	hub        *core.Hub
	store      store.Store
	log        *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	hub := core.NewHub(authService, st, st, log.Component(logger, "hub"), core.Options{
		MaxPayload:    cfg.MaxPayloadBytes,
		OutboundQueue: cfg.OutboundQueue,
		HistoryLimit:  cfg.HistoryLimit,
		FlushTimeout:  cfg.ShutdownTimeout,
	})

	a := &App{
		cfg:   cfg,
		hub:   hub,
		store: st,
		log:   logger,
	}
	if cfg.TCPAddr != "" {
		a.tcpServer = tcp.NewServer(hub, cfg.TCPAddr, cfg.MaxConnsPerMinute, log.Component(logger, "tcp"))
	}
	if cfg.HTTPAddr != "" {
		a.httpServer = transporthttp.NewServer(hub, authService, st, cfg, log.Component(logger, "http"))
	}
	return a, nil
}

// Run starts the listeners and blocks until context cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 2)
	running := 0

	if a.tcpServer != nil {
		if err := a.tcpServer.Listen(); err != nil {
			return err
		}
		running++
		go func() {
			serverErr <- a.tcpServer.Serve(ctx)
		}()
	}

	if a.httpServer != nil {
		running++
		go func() {
			a.log.Info().Str("addr", a.httpServer.Addr).Msg("http listener started")
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- fmt.Errorf("http server: %w", err)
				return
			}
			serverErr <- nil
		}()
	}

	var runErr error
	select {
	case runErr = <-serverErr:
		running--
		if runErr != nil {
			a.log.Error().Err(runErr).Msg("listener failed")
		}
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	cancel()
	if a.httpServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("http shutdown")
		}
		stop()
	}

	for _, room := range a.hub.Rooms().Stats() {
		a.log.Info().Str("room", room.Name).Strs("members", room.Members).Msg("room at shutdown")
	}
	a.hub.CloseAll()

	for ; running > 0; running-- {
		if err := <-serverErr; err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
