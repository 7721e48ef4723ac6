package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Toggle pauses and resumes alerting.
type Toggle interface {
	AlertsEnabled() bool
	SetAlertsEnabled(enabled bool)
}

// DetectionHandler exposes the pause switch that the tray also drives.
type DetectionHandler struct {
	toggle Toggle
}

// NewDetectionHandler creates a new DetectionHandler.
func NewDetectionHandler(t Toggle) *DetectionHandler {
	return &DetectionHandler{toggle: t}
}

type detectionRequest struct {
	Enabled *bool `json:"enabled"`
}

type detectionResponse struct {
	Enabled bool `json:"enabled"`
}

// Get handles GET /api/detection.
func (h *DetectionHandler) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, detectionResponse{Enabled: h.toggle.AlertsEnabled()})
}

// Put handles PUT /api/detection with body {"enabled": bool}.
func (h *DetectionHandler) Put(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req detectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.toggle.SetAlertsEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, detectionResponse{Enabled: h.toggle.AlertsEnabled()})
}
