package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/deps"
)

type componentStatus struct {
	OK         bool   `json:"ok"`
	HostsKnown *int   `json:"hosts_known,omitempty"`
	LastSync   string `json:"last_sync,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Error      string `json:"error,omitempty"`
}

type infraResponse struct {
	StorageMode string                     `json:"storage_mode"`
	Components  map[string]componentStatus `json:"components"`
}

// Infra reports the state of the inventory's storage layers.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hostsCount := d.Hosts.Count()
		lastSync := d.Hosts.LastSync()
		lastSyncStr := "never"
		if !lastSync.IsZero() {
			lastSyncStr = lastSync.Format("2006-01-02 15:04:05")
		}

		components := map[string]componentStatus{
			"index": {
				OK:         true,
				HostsKnown: &hostsCount,
				LastSync:   lastSyncStr,
			},
			"redis": checkRedis(r.Context(), d),
		}

		writeJSON(w, d.Logger, http.StatusOK, infraResponse{
			StorageMode: determineStorageMode(components),
			Components:  components,
		})
	}
}

func determineStorageMode(components map[string]componentStatus) string {
	if redis, exists := components["redis"]; exists && !redis.OK {
		return "memory-only" // writes are lost on restart
	}
	return "persistent"
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:    false,
			Mode:  "disabled",
			Error: "client not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:    false,
			Mode:  "degraded",
			Error: err.Error(),
		}
	}

	return componentStatus{
		OK:   true,
		Mode: "optimal",
	}
}
