package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"huddle-chat/config"
	"huddle-chat/internal/auth"
	"huddle-chat/internal/docstore"
	"huddle-chat/internal/docstore/memory"
	"huddle-chat/internal/docstore/pgstore"
	"huddle-chat/internal/docstore/redisstore"
	"huddle-chat/internal/presence"
	huddle_redis "huddle-chat/internal/redis"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/server"
	"huddle-chat/internal/services"
	"huddle-chat/internal/storage"
	"huddle-chat/internal/websocket"
	"huddle-chat/pkg/database"
	"huddle-chat/pkg/logger"
)

const (
	tokenLeeway   = 30 * time.Second
	sweepInterval = time.Minute
)

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	health := map[string]server.HealthCheck{}

	// Redis backs presence, rate limits and the directory cache. It is
	// optional unless it is also the document store.
	rdb, err := huddle_redis.Connect(ctx, huddle_redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		if cfg.StoreBackend == config.StoreRedis {
			return err
		}
		log.Warnf("running without redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	store, pool, err := openStore(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}
	defer store.Close()
	if pool != nil {
		defer pool.Close()
		health["postgres"] = pool.Ping
	}

	var (
		users    repository.UserRepository    = repository.NewUserRepository(store, log)
		channels repository.ChannelRepository = repository.NewChannelRepository(store, log)
	)
	deps := services.Deps{
		Messages:      repository.NewMessageRepository(store, log),
		Conversations: repository.NewConversationRepository(store, log),
		Verifier:      auth.NewVerifier(cfg.AuthTokenSecret, cfg.AuthIssuer, tokenLeeway),
		Location:      cfg.Location(),
		Logger:        log,
	}

	g, ctx := errgroup.WithContext(ctx)
	guards := server.Guards{Verifier: deps.Verifier, Health: health}

	if rdb != nil {
		cache := huddle_redis.NewCacheStore(rdb, huddle_redis.DefaultCacheConfig())
		users = repository.NewCachedUserRepository(users, cache, log)
		channels = repository.NewCachedChannelRepository(channels, cache, log)

		limiter := huddle_redis.NewRateLimiter(rdb, huddle_redis.DefaultRateLimitConfig())
		deps.Limiter = limiter
		guards.ConnectLimit = limiter.AllowConnect

		tracker := presence.New(rdb, users, cfg.PresenceTTL, log)
		deps.Presence = tracker
		g.Go(func() error { return tracker.Sweep(ctx, sweepInterval) })
	}
	deps.Users = users
	deps.Channels = channels

	if cfg.S3Bucket != "" {
		avatars, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			return fmt.Errorf("s3 client: %w", err)
		}
		deps.Avatars = avatars
	} else {
		log.Warnf("S3_BUCKET is not set, avatar uploads are disabled")
	}

	svc := services.New(deps)
	hub := websocket.NewHub()
	srv := server.New(cfg, log)
	srv.SetupRoutes(server.NewHandlers(svc, hub, log), guards)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error { return srv.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore builds the configured document store. The returned pool is
// non-nil for the postgres backend and is owned by the caller.
func openStore(ctx context.Context, cfg *config.Config, rdb *goredis.Client, log *logger.Logger) (docstore.Store, *pgxpool.Pool, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		log.Warnf("using the in-memory store, data is lost on exit")
		return memory.New(memory.WithMaxAttempts(cfg.TxMaxAttempts), memory.WithLogger(log)), nil, nil
	case config.StoreRedis:
		return redisstore.New(rdb, redisstore.WithMaxAttempts(cfg.TxMaxAttempts), redisstore.WithLogger(log)), nil, nil
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := pgstore.New(ctx, pool, pgstore.WithMaxAttempts(cfg.TxMaxAttempts), pgstore.WithLogger(log))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
