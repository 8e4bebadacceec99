package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
	"github.com/MrSnakeDoc/hostwatch/internal/index"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	redisstore "github.com/MrSnakeDoc/hostwatch/internal/store/redis"
)

const (
	// DefaultRetention is how long an unreachable host is kept after it was last heard
	DefaultRetention = 30 * 24 * time.Hour // 30 days
)

// GarbageCollector drops inventory records of hosts that have been silent
// for longer than the retention period. It runs inside the inventory
// service; the monitor itself never deletes records.
type GarbageCollector struct {
	store     *redisstore.Store
	index     *index.MemoryIndex
	logger    logger.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewGarbageCollector creates a new garbage collector
func NewGarbageCollector(
	store *redisstore.Store,
	idx *index.MemoryIndex,
	log logger.Logger,
	interval time.Duration,
	retention time.Duration,
) *GarbageCollector {
	if retention == 0 {
		retention = DefaultRetention
	}

	return &GarbageCollector{
		store:     store,
		index:     idx,
		logger:    log,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic garbage collection process
func (gc *GarbageCollector) Start(ctx context.Context) error {
	// Run immediately on start
	if err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial garbage collection failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := gc.Collect(ctx); err != nil {
					gc.logger.Error("garbage collection failed",
						logger.Error(err))
				}
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the garbage collector
func (gc *GarbageCollector) Stop() {
	close(gc.stopCh)
}

// Collect removes unavailable hosts not heard from within the retention period
func (gc *GarbageCollector) Collect(ctx context.Context) error {
	gc.logger.Debug("running garbage collection for silent hosts")

	now := time.Now()
	deleted := 0

	for name, host := range gc.index.GetAllHosts() {
		if !gc.expired(host, now) {
			continue
		}
		if gc.collect(ctx, name, now) {
			deleted++
		}
	}

	if deleted > 0 {
		gc.logger.Info("garbage collection completed",
			logger.Int("hosts_deleted", deleted))
	} else {
		gc.logger.Debug("no hosts to garbage collect")
	}

	return nil
}

func (gc *GarbageCollector) expired(host domain.Host, now time.Time) bool {
	if host.Availability || host.LastHeard.IsZero() {
		return false
	}
	return now.Sub(host.LastHeard.Time) >= gc.retention
}

// collect deletes one host under its write lock, re-reading the index first
// since a PUT may have refreshed the record after the snapshot was taken.
func (gc *GarbageCollector) collect(ctx context.Context, name string, now time.Time) bool {
	unlock := gc.index.LockHost(name)
	defer unlock()

	host, ok := gc.index.GetHost(name)
	if !ok || !gc.expired(host, now) {
		return false
	}

	// Delete from Redis first so a failed write keeps the host visible
	if gc.store != nil {
		if err := gc.store.DeleteHost(ctx, name); err != nil {
			gc.logger.Warn("failed to delete host from redis",
				logger.String("hostname", name),
				logger.Error(err))
			return false
		}
	}
	gc.index.DeleteHost(name)

	gc.logger.Info("garbage collected silent host",
		logger.String("hostname", name),
		logger.String("ip", host.IP),
		logger.String("silent_for", now.Sub(host.LastHeard.Time).String()))
	return true
}
