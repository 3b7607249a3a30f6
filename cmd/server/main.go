package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Talha-Tahir2001/CollabSphere/internal/api"
	"github.com/Talha-Tahir2001/CollabSphere/internal/config"
	"github.com/Talha-Tahir2001/CollabSphere/internal/hub"
	"github.com/Talha-Tahir2001/CollabSphere/internal/store"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDataStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	deps := api.Dependencies{DB: db, Hub: hub.New(logger)}
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		deps.Messages, deps.Limiter = redisStore, redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		memory := store.NewMemoryStore()
		deps.Messages, deps.Limiter = memory, memory
		logger.Warn().Msg("REDIS_URL not set, keeping messages in memory")
	}

	router := api.NewRouter(logger, cfg, deps)

	// Create server. No write timeout: live channel connections manage
	// their own deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting CollabSphere server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		// Graceful shutdown with 30 second timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Hijacked live connections are not tracked by Shutdown.
		deps.Hub.CloseAll()
		err := srv.Shutdown(shutdownCtx)
		deps.Hub.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("server stopped")
}

// openDataStore connects to Postgres when DATABASE_URL is set and to SQLite
// otherwise.
func openDataStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.DataStore, error) {
	if cfg.DatabaseURL == "" {
		db, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite database")
		return db, nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("running database migrations...")
	if err := pg.RunMigrations(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	logger.Info().Msg("connected to PostgreSQL")
	return pg, nil
}
