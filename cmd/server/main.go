package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatserver/internal/config"
	"chatserver/internal/httpserver"
	"chatserver/internal/presence"
	"chatserver/internal/security"
	storageminio "chatserver/internal/storage/minio"
	"chatserver/internal/store/postgres"
	"chatserver/internal/store/sqlite"
	"chatserver/internal/ws"
	"chatserver/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// Database
	var db *sql.DB
	switch cfg.DB.Driver {
	case "postgres":
		db, err = postgres.Open(cfg.DB.DSN)
		if err == nil {
			err = postgres.Migrate(db)
		}
	default:
		db, err = sqlite.Open(cfg.DB.DSN)
		if err == nil {
			err = sqlite.Migrate(db)
		}
	}
	if err != nil {
		zlog.Fatal("database init failed", zap.String("driver", cfg.DB.Driver), zap.Error(err))
	}
	defer db.Close()

	deps := httpserver.Deps{
		Tokens:   security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute),
		Webhooks: security.NewWebhookVerifier(cfg.WebhookSecret),
		Hub:      ws.NewHub(),
		Log:      zlog,
	}

	switch cfg.DB.Driver {
	case "postgres":
		deps.Users = postgres.NewUserRepo(db)
		deps.Conversations = postgres.NewConversationRepo(db)
		deps.Participants = postgres.NewParticipantRepo(db)
		deps.Messages = postgres.NewMessageRepo(db)
	default:
		deps.Users = sqlite.NewUserRepo(db)
		deps.Conversations = sqlite.NewConversationRepo(db)
		deps.Participants = sqlite.NewParticipantRepo(db)
		deps.Messages = sqlite.NewMessageRepo(db)
	}

	// Object storage
	ctx := context.Background()
	mc, err := storageminio.Connect(ctx, cfg.S3.Endpoint, cfg.S3.User, cfg.S3.Password, cfg.S3.Bucket, cfg.S3.UseSSL)
	if err != nil {
		zlog.Fatal("object storage init failed", zap.Error(err))
	}
	deps.Objects = storageminio.New(mc, cfg.S3.Bucket, time.Duration(cfg.S3.URLExpireMinutes)*time.Minute)

	// Presence registry: Redis when configured, in-process otherwise.
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Fatal("redis init failed", zap.Error(err))
		}
		deps.Presence = presence.NewRedisRegistry(rdb, time.Duration(cfg.Redis.PresenceTTLMinutes)*time.Minute)
	} else {
		deps.Presence = presence.NewMemoryRegistry()
	}

	router := httpserver.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("starting server", zap.String("addr", cfg.HTTPAddr()), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zlog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
