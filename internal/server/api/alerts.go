package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/ayusman/moyu/internal/store"
)

// DefaultAlertLimit is the page size of GET /api/alerts without ?limit.
const DefaultAlertLimit = 50

// MaxAlertLimit caps ?limit.
const MaxAlertLimit = 1000

// AlertHandler serves the alert history.
type AlertHandler struct {
	store *store.Store
}

// NewAlertHandler creates a new AlertHandler with the given store.
func NewAlertHandler(s *store.Store) *AlertHandler {
	return &AlertHandler{store: s}
}

type actionResponse struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type alertResponse struct {
	ID           string           `json:"id"`
	FiredAt      string           `json:"fired_at"`
	Faces        int              `json:"faces"`
	Brightness   float64          `json:"brightness"`
	SnapshotPath string           `json:"snapshot_path,omitempty"`
	Summary      string           `json:"summary"`
	Actions      []actionResponse `json:"actions"`
}

type listAlertsResponse struct {
	Alerts []alertResponse `json:"alerts"`
	Total  int             `json:"total"`
}

func toAlertResponse(a *store.Alert) alertResponse {
	resp := alertResponse{
		ID:           a.ID,
		FiredAt:      formatTime(a.FiredAt),
		Faces:        a.Faces,
		Brightness:   a.Brightness,
		SnapshotPath: a.SnapshotPath,
		Summary:      a.Summary,
		Actions:      make([]actionResponse, 0, len(a.Actions)),
	}
	for _, r := range a.Actions {
		resp.Actions = append(resp.Actions, actionResponse{
			Name:       r.Name,
			OK:         r.OK,
			Error:      r.Error,
			DurationMs: r.Duration.Milliseconds(),
		})
	}
	return resp
}

// List handles GET /api/alerts?limit=N, newest first.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := DefaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxAlertLimit)
	}

	alerts, err := h.store.Alerts().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}
	total, err := h.store.Alerts().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count alerts")
		return
	}

	response := listAlertsResponse{
		Alerts: make([]alertResponse, 0, len(alerts)),
		Total:  total,
	}
	for _, a := range alerts {
		response.Alerts = append(response.Alerts, toAlertResponse(a))
	}

	writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/alerts/:id.
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a, err := h.store.Alerts().GetByID(ps.ByName("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get alert")
		return
	}

	writeJSON(w, http.StatusOK, toAlertResponse(a))
}
