package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/mw"
)

func init() { Register(registerMonitor) }

func registerMonitor(r chi.Router, d deps.Deps) {
	if d.Monitor == nil {
		return
	}
	guarded := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	guarded.Get("/status", handlers.Status(d))
	guarded.Post("/trigger/discovery", handlers.TriggerDiscovery(d))
	guarded.Post("/trigger/portscan", handlers.TriggerPortScan(d))
}
