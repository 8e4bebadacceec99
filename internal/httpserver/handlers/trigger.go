package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
)

type triggerResponse struct {
	Activity  string `json:"activity"`
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// TriggerDiscovery asks the monitor for an immediate discovery sweep.
func TriggerDiscovery(d deps.Deps) http.HandlerFunc {
	return trigger(d, "discovery", d.Monitor.TriggerDiscovery)
}

// TriggerPortScan asks the monitor for an immediate port scan pass.
func TriggerPortScan(d deps.Deps) http.HandlerFunc {
	return trigger(d, "portscan", d.Monitor.TriggerPortScan)
}

func trigger(d deps.Deps, activity string, fire func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fire() {
			d.Logger.Info("manual trigger accepted via endpoint",
				logger.String("activity", activity),
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, d.Logger, http.StatusAccepted, triggerResponse{
				Activity:  activity,
				Triggered: true,
				Message:   "scheduled for the next tick",
			})
			return
		}

		d.Logger.Warn("manual trigger already pending",
			logger.String("activity", activity),
			logger.String("remote_ip", r.RemoteAddr))
		writeJSON(w, d.Logger, http.StatusTooManyRequests, triggerResponse{
			Activity: activity,
			Message:  "a trigger is already pending, please wait",
		})
	}
}
