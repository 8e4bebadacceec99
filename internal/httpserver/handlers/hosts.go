package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
)

const maxHostBody = 64 << 10

// ListHosts returns every host record keyed by hostname.
func ListHosts(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Logger, http.StatusOK, d.Hosts.GetAllHosts())
	}
}

// PutHost replaces the record stored under ?hostname= with the request body
// and answers 204. The write goes to the store first, then to the index,
// under the hostname's write lock.
func PutHost(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hostname := r.URL.Query().Get("hostname")
		if hostname == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "missing hostname query parameter")
			return
		}

		var host domain.Host
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHostBody)).Decode(&host); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, fmt.Sprintf("invalid host body: %v", err))
			return
		}

		if host.Hostname == "" {
			host.Hostname = hostname
		}
		if host.Hostname != hostname {
			writeError(w, d.Logger, http.StatusBadRequest,
				fmt.Sprintf("body hostname %q does not match %q", host.Hostname, hostname))
			return
		}
		host.OpenTCPPorts = domain.NormalizePorts(host.OpenTCPPorts)

		if err := host.Validate(); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, err.Error())
			return
		}

		unlock := d.Hosts.LockHost(hostname)
		defer unlock()

		if d.Store != nil {
			if err := d.Store.SaveHost(r.Context(), host); err != nil {
				d.Logger.Error("failed to persist host",
					logger.String("hostname", hostname),
					logger.Error(err))
				writeError(w, d.Logger, http.StatusServiceUnavailable, "storage unavailable")
				return
			}
		}
		d.Hosts.PutHost(host)

		w.WriteHeader(http.StatusNoContent)
	}
}
