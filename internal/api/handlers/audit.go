package handlers

import (
	"net/http"

	domainaudit "github.com/matiasleandrokruk/agencyhub/internal/domain/audit"
)

// AuditHandler lists the agency's audit trail. Mounted behind RequireAgencyManager.
type AuditHandler struct {
	svc *domainaudit.AuditService
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(svc *domainaudit.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// ListEvents handles GET /api/v1/audit?actorId=&action=&outcome=&entityType=&entityId=
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)
	q := r.URL.Query()

	events, total, err := h.svc.List(r.Context(), scopeFromContext(r.Context()).AgencyID, domainaudit.Filter{
		ActorID:    q.Get("actorId"),
		Action:     q.Get("action"),
		Outcome:    domainaudit.Outcome(q.Get("outcome")),
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
	}, page.Limit, page.Offset)
	if err != nil {
		writeServiceError(w, err, "list audit events")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[*domainaudit.AuditEvent]{
		Data: events,
		Meta: Meta{Total: total, Limit: page.Limit, Offset: page.Offset},
	})
}
