package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Readyz reports 200 once the process can do its job: Redis answers when
// configured, and the monitor has completed its first tick when present.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.RedisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := d.RedisClient.Ping(ctx).Err()
			cancel()
			if err != nil {
				writeJSON(w, d.Logger, http.StatusServiceUnavailable, readyzResponse{Reason: "redis unreachable"})
				return
			}
		}

		if d.Monitor != nil && !d.Monitor.Ready() {
			writeJSON(w, d.Logger, http.StatusServiceUnavailable, readyzResponse{Reason: "first tick not completed"})
			return
		}

		writeJSON(w, d.Logger, http.StatusOK, readyzResponse{Ready: true})
	}
}
