// Operational endpoints - health and aggregated metrics as JSON.
package gateway

import (
	"net/http"
	"time"

	"github.com/opsboard/incident-gateway/internal/httpx"
)

// handleHealth reports gateway liveness. It does not call the incident
// API: upstream being down is an error the proxy routes report, not a
// reason for orchestrators to restart the gateway.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}

	status := http.StatusOK
	if err := g.audit.Ping(r.Context()); err != nil {
		health["status"] = "degraded"
		health["audit"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, status, health)
}

// handleStats returns aggregated metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
// The check reads the socket peer; forwarded-for headers never influence it.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !httpx.IsLoopback(r.RemoteAddr) {
		httpx.Error(w, http.StatusForbidden, "Forbidden")
		return
	}

	stats := g.metrics.FullStats()
	httpx.WriteJSON(w, http.StatusOK, stats)
}
