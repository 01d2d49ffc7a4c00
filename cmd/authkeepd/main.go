// Command authkeepd serves the authkeep engine over HTTP.
//
// Configuration comes from the environment and an optional .env file. With
// DATABASE_URL set, users live in Postgres; otherwise they are kept in memory
// and lost on restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authkeep/authkeep"
	"github.com/authkeep/authkeep/internal/envconfig"
	"github.com/authkeep/authkeep/userstore/memory"
	"github.com/authkeep/authkeep/userstore/postgres"
	"github.com/redis/go-redis/v9"
)

func main() {
	settings, err := envconfig.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: settings.LogLevel}))
	slog.SetDefault(logger)

	if err := run(settings, logger); err != nil {
		logger.Error("authkeepd stopped", "error", err)
		os.Exit(1)
	}
}

func run(settings *envconfig.Settings, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     settings.RedisAddr,
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
	})
	defer rdb.Close()

	users, closeStore, err := openStore(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := authkeep.New().
		WithConfig(settings.Engine).
		WithRedis(rdb).
		WithUserStore(users).
		WithRoleStore(users).
		WithLogger(logger).
		WithAuditSink(authkeep.NewSlogSink(logger.With("component", "audit"))).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           newServer(engine, rdb, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

type userBackend interface {
	authkeep.UserStore
	authkeep.RoleStore
}

func openStore(ctx context.Context, settings *envconfig.Settings, logger *slog.Logger) (userBackend, func(), error) {
	if settings.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory user store")
		return memory.New(settings.Engine.Account.DefaultRole), func() {}, nil
	}

	pool, err := postgres.Open(ctx, settings.DatabaseURL, settings.DBMaxConns)
	if err != nil {
		return nil, nil, err
	}
	store := postgres.New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
