package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
	"github.com/MrSnakeDoc/hostwatch/internal/index"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	redisstore "github.com/MrSnakeDoc/hostwatch/internal/store/redis"
)

func TestRedisSyncer_Sync(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.NewStore(client)
	ctx := context.Background()
	for _, name := range []string{"a.lan", "b.lan"} {
		if err := store.SaveHost(ctx, domain.Host{Hostname: name, IP: "10.0.0.1"}); err != nil {
			t.Fatalf("SaveHost(%s) failed: %v", name, err)
		}
	}

	idx := index.NewMemoryIndex()
	idx.PutHost(domain.Host{Hostname: "stale.lan"})

	if err := NewRedisSyncer(store, idx, logger.New("error", false)).Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if idx.Count() != 2 {
		t.Errorf("Count() = %d, want 2", idx.Count())
	}
	if _, ok := idx.GetHost("stale.lan"); ok {
		t.Error("Sync should replace the index, stale.lan survived")
	}
}

func TestRedisSyncer_SyncError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	syncer := NewRedisSyncer(redisstore.NewStore(client), index.NewMemoryIndex(), logger.New("error", false))
	if err := syncer.Sync(context.Background()); err == nil {
		t.Error("Sync should fail when redis is down")
	}
}
