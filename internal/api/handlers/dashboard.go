package handlers

import (
	"net/http"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/dashboard"
)

// DashboardHandler serves the read-only home screen summaries.
type DashboardHandler struct {
	svc *dashboard.Service
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(svc *dashboard.Service) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// AgencyDashboard handles GET /api/v1/dashboard
func (h *DashboardHandler) AgencyDashboard(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.AgencyStats(r.Context(), scopeFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, "load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SubAccountDashboard handles GET /subaccounts/{subaccountID}/dashboard?pipelineId=
func (h *DashboardHandler) SubAccountDashboard(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.SubAccountStats(r.Context(), scopeFromContext(r.Context()), r.URL.Query().Get("pipelineId"))
	if err != nil {
		writeServiceError(w, err, "load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Launchpad handles GET /subaccounts/{subaccountID}/launchpad
func (h *DashboardHandler) Launchpad(w http.ResponseWriter, r *http.Request) {
	lp, err := h.svc.Launchpad(r.Context(), scopeFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, "load launchpad")
		return
	}
	writeJSON(w, http.StatusOK, lp)
}
