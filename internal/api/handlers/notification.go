package handlers

import (
	"context"
	"net/http"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/realtime"
)

// GrantLister is satisfied by *access.Checker.
type GrantLister interface {
	AccessibleSubAccounts(ctx context.Context, userID string, role access.Role) ([]string, bool, error)
}

// NotificationHandler serves the activity feed and its realtime stream.
type NotificationHandler struct {
	svc    *notification.Service
	grants GrantLister
	hub    *realtime.Hub
}

// NewNotificationHandler creates a new NotificationHandler. hub may be nil,
// in which case the stream endpoint answers 503.
func NewNotificationHandler(svc *notification.Service, grants GrantLister, hub *realtime.Hub) *NotificationHandler {
	return &NotificationHandler{svc: svc, grants: grants, hub: hub}
}

// ListNotifications handles GET /api/v1/notifications?subaccountId=&limit=&offset=
// Newest first. Sub-account roles only see sub-accounts they were granted.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)
	items, total, err := h.svc.List(r.Context(), scopeFromContext(r.Context()), notification.ListInput{
		SubAccountID: r.URL.Query().Get("subaccountId"),
		Limit:        page.Limit,
		Offset:       page.Offset,
	})
	if err != nil {
		writeServiceError(w, err, "list notifications")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[*notification.Notification]{
		Data: items,
		Meta: Meta{Total: total, Limit: page.Limit, Offset: page.Offset},
	})
}

// Stream handles GET /api/v1/notifications/stream. It upgrades to a
// WebSocket and pushes every new notification the caller may see.
// The grant set is captured at connect time.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "realtime feed disabled")
		return
	}

	scope := scopeFromContext(r.Context())
	ids, all, err := h.grants.AccessibleSubAccounts(r.Context(), scope.UserID, scope.Role)
	if err != nil {
		writeServiceError(w, err, "load permissions")
		return
	}
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}

	h.hub.Serve(w, r, func(payload any) bool {
		n, ok := payload.(*notification.Notification)
		return ok && notification.Visible(n, scope.AgencyID, all, allowed)
	})
}
