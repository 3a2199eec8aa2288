package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cardroom/cardroom-server/internal/auth"
	"github.com/cardroom/cardroom-server/internal/config"
	"github.com/cardroom/cardroom-server/internal/core"
	"github.com/cardroom/cardroom-server/internal/game"
	"github.com/cardroom/cardroom-server/internal/store"
	"github.com/cardroom/cardroom-server/internal/store/sqlite"
	transporthttp "github.com/cardroom/cardroom-server/internal/transport/http"
)

// App wires together the coordination core and both transports.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	monitor         *core.IdleMonitor
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	registry := core.NewRegistry(st, logger)
	router := core.NewRouter(registry, logger)
	hub := core.NewHub(st, registry, router, game.NewStandardEngine(), logger)
	monitor := core.NewIdleMonitor(hub, cfg.IdleSweepInterval, logger)

	server := transporthttp.NewServer(hub, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		monitor:         monitor,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and the idle monitor and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.monitor.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
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
