package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/FathanAS/fdvp-backend/internal/activity"
	"github.com/FathanAS/fdvp-backend/internal/api"
	"github.com/FathanAS/fdvp-backend/internal/config"
	"github.com/FathanAS/fdvp-backend/internal/gateway"
	"github.com/FathanAS/fdvp-backend/internal/models"
	"github.com/FathanAS/fdvp-backend/internal/presence"
	"github.com/FathanAS/fdvp-backend/internal/push"
	"github.com/FathanAS/fdvp-backend/internal/store"
	"github.com/FathanAS/fdvp-backend/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Pick the durable store: PostgreSQL when configured, SQLite otherwise.
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer db.Close()

	// Initialize Redis hot cache
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	recorder := activity.NewRecorder(db, logger)

	// A restart loses every live connection, so clear stale online flags
	// before accepting new ones.
	if n, err := db.ResetPresence(ctx); err != nil {
		logger.Error().Err(err).Msg("presence reset failed")
	} else if n > 0 {
		logger.Info().Int64("users", n).Msg("reset stale online flags")
		recorder.Record(ctx, models.ActivityEntry{
			Action:      "presence_reset",
			Description: "cleared stale online flags on startup",
			ActorID:     gateway.SystemSenderID,
			TargetType:  "presence",
		})
	}

	tracker := presence.NewTracker()
	hub := ws.NewHub(logger)
	gw := gateway.New(gateway.Config{
		Broker:   hub,
		Presence: tracker,
		Store:    db,
		Cache:    cacheOrNil(redisStore),
		Push:     push.New(cfg.PushGatewayURL, logger),
		Activity: recorder,
		Logger:   logger,
	})

	// Create router
	router := api.NewRouter(api.Deps{
		Logger:   logger,
		Store:    db,
		Redis:    redisStore,
		Hub:      hub,
		Gateway:  gw,
		Presence: tracker,
		Activity: recorder,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// cacheOrNil avoids handing the gateway a typed nil behind its Cache
// interface.
func cacheOrNil(r *store.RedisStore) gateway.Cache {
	if r == nil {
		return nil
	}
	return r
}
