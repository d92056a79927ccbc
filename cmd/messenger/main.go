// Command messenger is a terminal client for the messenger API: phone sign-in and
// profile management over the authenticated request pipeline.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/abduss/messenger/internal/api"
	"github.com/abduss/messenger/internal/auth"
	"github.com/abduss/messenger/internal/config"
	"github.com/abduss/messenger/internal/credentials"
	"github.com/abduss/messenger/internal/logger"
	"github.com/abduss/messenger/internal/profile"
	"github.com/abduss/messenger/internal/storage"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	code := run(cfg, zl, os.Args[1:])
	_ = zl.Sync()
	os.Exit(code)
}

func run(cfg config.Config, zl *zap.Logger, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := credentials.NewFileStore(cfg.Credentials.Path, zl)
	if err != nil {
		zl.Error("open credentials", zap.Error(err))
		return 1
	}
	defer store.Close()

	cache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		zl.Error("open profile cache", zap.Error(err))
		return 1
	}
	defer closeCache()

	client, err := api.New(api.Options{
		BaseURL:        cfg.Client.BaseURL,
		Store:          store,
		Timeout:        cfg.Client.RequestTimeout,
		RefreshTimeout: cfg.Client.RefreshTimeout,
		Logger:         zl,
	})
	if err != nil {
		zl.Error("create api client", zap.Error(err))
		return 1
	}

	a := &app{
		auth:    auth.NewService(client, store, zl),
		profile: profile.NewService(client, store, cache, zl),
		out:     os.Stdout,
	}
	if err := a.run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCode(err)
	}
	return 0
}

func openCache(ctx context.Context, cfg config.Config) (profile.Repository, func(), error) {
	switch cfg.Cache.Driver {
	case config.CacheMemory:
		repo := profile.NewMemoryRepository()
		return repo, func() { _ = repo.Close() }, nil
	case config.CachePostgres:
		pgCfg := cfg.Postgres
		pgCfg.ApplicationName = "messenger-cli"
		if pgCfg.MaxConns == 0 {
			pgCfg.MaxConns = 2
		}
		pool, err := storage.NewPostgresPool(ctx, pgCfg)
		if err != nil {
			return nil, nil, err
		}
		repo := profile.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	default:
		repo, err := profile.NewSQLiteRepository(ctx, cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}
}
