package scheduler

import (
	"context"

	"github.com/MrSnakeDoc/hostwatch/internal/index"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	redisstore "github.com/MrSnakeDoc/hostwatch/internal/store/redis"
)

// RedisSyncer loads host records from Redis into the memory index on startup
type RedisSyncer struct {
	store  *redisstore.Store
	index  *index.MemoryIndex
	logger logger.Logger
}

// NewRedisSyncer creates a new Redis syncer
func NewRedisSyncer(
	store *redisstore.Store,
	idx *index.MemoryIndex,
	log logger.Logger,
) *RedisSyncer {
	return &RedisSyncer{
		store:  store,
		index:  idx,
		logger: log,
	}
}

// Sync loads hosts from Redis and replaces the memory index
func (rs *RedisSyncer) Sync(ctx context.Context) error {
	rs.logger.Info("syncing hosts from redis to memory")

	hosts, err := rs.store.GetAllHosts(ctx)
	if err != nil {
		return err
	}

	rs.index.UpdateHosts(hosts)

	if len(hosts) == 0 {
		rs.logger.Info("no hosts found in redis")
		return nil
	}

	rs.logger.Info("synced hosts from redis",
		logger.Int("count", len(hosts)))

	return nil
}
