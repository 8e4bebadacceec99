package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/hostwatch/internal/config"
	"github.com/MrSnakeDoc/hostwatch/internal/httpserver"
	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hostwatch/internal/index"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	"github.com/MrSnakeDoc/hostwatch/internal/redis"
	"github.com/MrSnakeDoc/hostwatch/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/hostwatch/internal/store/redis"
	"github.com/MrSnakeDoc/hostwatch/internal/version"
)

// Inventory is the reference inventory service: HTTP API over a memory
// index backed by Redis, with retention garbage collection.
type Inventory struct {
	cfg         *config.InventoryConfig
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	gc          *scheduler.GarbageCollector
}

// NewInventory connects to Redis (failing fast when it stays unreachable),
// loads the stored hosts and wires the HTTP API.
func NewInventory(cfg *config.InventoryConfig) (*Inventory, error) {
	loggerClient := newLogger(cfg.LogLevel, cfg.PrettyLog, cfg.LogFile, 50)

	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	memIndex := index.NewMemoryIndex()
	store := redisstore.NewStore(redisClient)

	syncCtx, cancel := context.WithTimeout(context.Background(), cfg.RedisConnectTimeout)
	defer cancel()
	if err := scheduler.NewRedisSyncer(store, memIndex, loggerClient).Sync(syncCtx); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to load hosts from redis: %w", err)
	}

	gc := scheduler.NewGarbageCollector(store, memIndex, loggerClient, cfg.GCInterval, cfg.Retention)

	server := httpserver.New(cfg.ListenAddr, loggerClient, deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		Hosts:        memIndex,
		Store:        store,
		RedisClient:  redisClient,
	})

	return &Inventory{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		gc:          gc,
	}, nil
}

func (a *Inventory) Run() error {
	defer func() { _ = a.logger.Sync() }()

	a.logger.Info("starting hostwatch inventory",
		logger.String("version", version.Version),
		logger.String("listen", a.cfg.ListenAddr),
		logger.Duration("retention", a.cfg.Retention))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.gc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start garbage collector: %w", err)
	}
	a.logger.Info("garbage collector started",
		logger.Duration("interval", a.cfg.GCInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	case err := <-errCh:
		a.gc.Stop()
		return err
	}

	a.gc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if err := a.redisClient.Close(); err != nil {
		a.logger.Warn("failed to close redis", logger.Error(err))
	} else {
		a.logger.Info("redis closed cleanly")
	}

	a.logger.Info("hostwatch inventory stopped cleanly")
	return nil
}
