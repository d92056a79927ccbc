package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/messenger/internal/backend"
	"github.com/abduss/messenger/internal/config"
	"github.com/abduss/messenger/internal/logger"
	"github.com/abduss/messenger/internal/metrics"
	"github.com/abduss/messenger/internal/server"
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
	defer func() { _ = zl.Sync() }()

	metrics.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		users  backend.UserStore
		checks []server.ReadinessCheck
	)
	if cfg.Postgres.Enabled() {
		cfg.Postgres.ApplicationName = "messenger-devapi"
		dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			zl.Fatal("connect postgres", zap.Error(err))
		}
		defer dbPool.Close()

		repo := backend.NewRepository(dbPool)
		if err := repo.Migrate(ctx); err != nil {
			zl.Fatal("migrate postgres", zap.Error(err))
		}
		users = repo
		checks = append(checks, server.ReadinessCheck{Name: "postgres", Check: repo.Ping})
	} else {
		zl.Warn("POSTGRES_HOST not set, keeping users in memory")
		users = backend.NewMemoryRepository()
	}

	var (
		avatars backend.AvatarStore
		media   *backend.MemoryAvatarStore
	)
	if cfg.MinIO.Enabled() {
		minioClient, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			zl.Fatal("connect minio", zap.Error(err))
		}
		if err := storage.EnsureBucket(ctx, minioClient, cfg.MinIO); err != nil {
			zl.Fatal("ensure bucket", zap.Error(err))
		}
		store := backend.NewMinIOAvatarStore(minioClient, cfg.MinIO.Bucket, cfg.MinIO.PresignTTL)
		avatars = store
		checks = append(checks, server.ReadinessCheck{Name: "minio", Check: store.Ping})
	} else {
		zl.Warn("MINIO_ENDPOINT not set, keeping avatars in memory")
		media = backend.NewMemoryAvatarStore(server.MediaPrefix)
		avatars = media
	}

	service := backend.NewService(users, avatars, backend.LogCodeSender{Logger: zl}, cfg.Auth)

	router := server.NewRouter(server.Dependencies{
		Config:  cfg,
		Service: service,
		Media:   media,
		Checks:  checks,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zl.Info("development API listening", zap.String("addr", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zl.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}
