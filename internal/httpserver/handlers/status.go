package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/deps"
)

// Status exposes the monitor's timers and last tick summary.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Logger, http.StatusOK, d.Monitor.Status())
	}
}
