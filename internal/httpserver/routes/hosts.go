package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/mw"
)

func init() { Register(registerHosts) }

func registerHosts(r chi.Router, d deps.Deps) {
	if d.Hosts == nil {
		return
	}
	guarded := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	guarded.Get("/hosts", handlers.ListHosts(d))
	guarded.Put("/hosts", handlers.PutHost(d))
	guarded.Get("/infra", handlers.Infra(d))
}
