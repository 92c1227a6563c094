package api

import (
	"net/http"

	"github.com/phrazzld/taskflow-api/internal/api/shared"
)

// ServiceInfo describes the running build.
type ServiceInfo struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

// InfoHandler serves GET /.
type InfoHandler struct {
	info ServiceInfo
}

// NewInfoHandler creates an InfoHandler.
func NewInfoHandler(info ServiceInfo) *InfoHandler {
	return &InfoHandler{info: info}
}

// Root handles GET /
func (h *InfoHandler) Root(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.info)
}
