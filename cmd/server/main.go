package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/altamedica/signaling-server/internal/adapters/http"
	"github.com/altamedica/signaling-server/internal/app"
	"github.com/altamedica/signaling-server/internal/config"
	"github.com/altamedica/signaling-server/internal/identity"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	verifier, err := identity.NewTokenVerifier([]byte(cfg.Auth.Secret), cfg.Auth.Issuer)
	if err != nil {
		log.Error().Err(err).Msg("failed to build token verifier")
		os.Exit(1)
	}

	// All mutable signaling state lives in these instances, scoped to server
	// start/stop; no package-level registries.
	registry := app.NewRegistry()
	coord := app.NewCoordinator(registry, identity.RoleAuthorizer{})
	guard := app.NewGuard(cfg.Rate.ConnectLimit, cfg.Rate.Window)

	sweeper := &app.Sweeper{
		Coord:    coord,
		Interval: cfg.Room.SweepInterval,
		MaxIdle:  cfg.Room.IdleTimeout,
	}
	go sweeper.Run(ctx)

	r := router.SetupRouter(ctx, cfg, coord, guard, verifier)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
