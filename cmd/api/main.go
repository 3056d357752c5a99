package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"

	"chess-server/internal/config"
	"chess-server/internal/logging"
	"chess-server/internal/server"
	"chess-server/internal/store"
)

const shutdownTimeout = 30 * time.Second

func gracefulShutdown(customServer *server.Server, httpServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info().Msg("shutdown signal received, press Ctrl+C again to force")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := customServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}

	done <- true
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	st, err := store.Open(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer st.Close()

	customServer, httpServer := server.NewServer(cfg, st)

	done := make(chan bool, 1)
	go gracefulShutdown(customServer, httpServer, done)

	log.Info().Str("addr", httpServer.Addr).Str("store", cfg.StoreDriver).Msg("listening")
	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server error")
	}

	<-done
	log.Info().Msg("graceful shutdown complete")
}
