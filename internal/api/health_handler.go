package api

import (
	"net/http"

	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/health"
)

// HealthHandler serves liveness, readiness and the aggregate dependency
// report.
type HealthHandler struct {
	full  *health.Checker
	ready *health.Checker
}

// NewHealthHandler creates a HealthHandler. full backs /health and ready
// backs /health/ready.
func NewHealthHandler(full, ready *health.Checker) *HealthHandler {
	return &HealthHandler{full: full, ready: ready}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondReport(w, r, h.full.Run(r.Context()))
}

// Ready handles GET /health/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	respondReport(w, r, h.ready.Run(r.Context()))
}

// Live handles GET /health/live. It never touches a dependency.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

func respondReport(w http.ResponseWriter, r *http.Request, report health.Report) {
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	shared.RespondWithJSON(w, r, status, report)
}
