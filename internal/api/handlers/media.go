package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/crm"
)

const paramMediaID = "mediaID"

// MediaHandler serves a sub-account's media library. Files are stored
// elsewhere; only their links are recorded.
type MediaHandler struct {
	svc *crm.MediaService
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(svc *crm.MediaService) *MediaHandler {
	return &MediaHandler{svc: svc}
}

// CreateMediaRequest is the request body for POST .../media.
type CreateMediaRequest struct {
	Type string `json:"type"`
	Name string `json:"name" validate:"required,max=200"`
	Link string `json:"link" validate:"required,url"`
}

// ListMedia handles GET /subaccounts/{subaccountID}/media
func (h *MediaHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)
	items, total, err := h.svc.List(r.Context(), scopeFromContext(r.Context()), page.Limit, page.Offset)
	if err != nil {
		writeServiceError(w, err, "list media")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[*crm.Media]{
		Data: items,
		Meta: Meta{Total: total, Limit: page.Limit, Offset: page.Offset},
	})
}

// CreateMedia handles POST /subaccounts/{subaccountID}/media
func (h *MediaHandler) CreateMedia(w http.ResponseWriter, r *http.Request) {
	var req CreateMediaRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.svc.Create(r.Context(), scopeFromContext(r.Context()), crm.CreateMediaInput{
		Type: req.Type,
		Name: req.Name,
		Link: req.Link,
	})
	if err != nil {
		writeServiceError(w, err, "create media")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetMedia handles GET /subaccounts/{subaccountID}/media/{mediaID}
func (h *MediaHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Get(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramMediaID))
	if err != nil {
		writeServiceError(w, err, "get media")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMedia handles DELETE /subaccounts/{subaccountID}/media/{mediaID}
func (h *MediaHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramMediaID)); err != nil {
		writeServiceError(w, err, "delete media")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
