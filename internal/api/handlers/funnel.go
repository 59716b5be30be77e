package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/funnel"
)

const (
	paramFunnelID  = "funnelID"
	paramPageID    = "pageID"
	paramSubdomain = "subdomain"
)

// FunnelHandler serves funnels and their pages, plus the public funnel surface.
type FunnelHandler struct {
	svc    *funnel.Service
	visits *funnel.VisitCounter
}

// NewFunnelHandler creates a new FunnelHandler. visits buffers public page views.
func NewFunnelHandler(svc *funnel.Service, visits *funnel.VisitCounter) *FunnelHandler {
	return &FunnelHandler{svc: svc, visits: visits}
}

// FunnelRequest is the body for creating or updating a funnel.
type FunnelRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description"`
	SubDomainName string `json:"subDomainName" validate:"omitempty,max=63"`
	Favicon       string `json:"favicon"`
	Published     bool   `json:"published"`
}

func (req FunnelRequest) input() funnel.FunnelInput {
	return funnel.FunnelInput{
		Name:          req.Name,
		Description:   req.Description,
		SubDomainName: req.SubDomainName,
		Favicon:       req.Favicon,
		Published:     req.Published,
	}
}

// ProductsRequest replaces a funnel's live products.
type ProductsRequest struct {
	LiveProducts json.RawMessage `json:"liveProducts" validate:"required"`
}

// PageRequest is the body for creating or updating a funnel page.
type PageRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	PathName     string `json:"pathName"`
	Content      string `json:"content"`
	PreviewImage string `json:"previewImage"`
}

func (req PageRequest) input() funnel.PageInput {
	return funnel.PageInput{
		Name:         req.Name,
		PathName:     req.PathName,
		Content:      req.Content,
		PreviewImage: req.PreviewImage,
	}
}

// ListFunnels handles GET /subaccounts/{subaccountID}/funnels
func (h *FunnelHandler) ListFunnels(w http.ResponseWriter, r *http.Request) {
	funnels, err := h.svc.ListFunnels(r.Context(), scopeFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, "list funnels")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*funnel.Funnel]{Data: funnels})
}

// CreateFunnel handles POST /subaccounts/{subaccountID}/funnels
//
// Response codes:
//   - 201 Created: subDomainName is generated when omitted
//   - 400 Bad Request: invalid body or malformed subdomain
//   - 409 Conflict: subdomain already taken
func (h *FunnelHandler) CreateFunnel(w http.ResponseWriter, r *http.Request) {
	var req FunnelRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := h.svc.CreateFunnel(r.Context(), scopeFromContext(r.Context()), req.input())
	if err != nil {
		writeServiceError(w, err, "create funnel")
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// GetFunnel handles GET /subaccounts/{subaccountID}/funnels/{funnelID}
func (h *FunnelHandler) GetFunnel(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetFunnel(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramFunnelID))
	if err != nil {
		writeServiceError(w, err, "get funnel")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// UpdateFunnel handles PATCH /subaccounts/{subaccountID}/funnels/{funnelID}
func (h *FunnelHandler) UpdateFunnel(w http.ResponseWriter, r *http.Request) {
	var req FunnelRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := h.svc.UpdateFunnel(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramFunnelID), req.input())
	if err != nil {
		writeServiceError(w, err, "update funnel")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// UpdateProducts handles PUT /subaccounts/{subaccountID}/funnels/{funnelID}/products
func (h *FunnelHandler) UpdateProducts(w http.ResponseWriter, r *http.Request) {
	var req ProductsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := h.svc.UpdateProducts(r.Context(), scopeFromContext(r.Context()),
		chi.URLParam(r, paramFunnelID), string(req.LiveProducts))
	if err != nil {
		writeServiceError(w, err, "update products")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFunnel handles DELETE /subaccounts/{subaccountID}/funnels/{funnelID}
func (h *FunnelHandler) DeleteFunnel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFunnel(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramFunnelID)); err != nil {
		writeServiceError(w, err, "delete funnel")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPages handles GET /subaccounts/{subaccountID}/funnels/{funnelID}/pages
func (h *FunnelHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.svc.ListPages(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramFunnelID))
	if err != nil {
		writeServiceError(w, err, "list pages")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*funnel.Page]{Data: pages})
}

// CreatePage handles POST /subaccounts/{subaccountID}/funnels/{funnelID}/pages
func (h *FunnelHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.svc.CreatePage(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramFunnelID), req.input())
	if err != nil {
		writeServiceError(w, err, "create page")
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

// ReorderPages handles POST /subaccounts/{subaccountID}/funnels/{funnelID}/pages/reorder
func (h *FunnelHandler) ReorderPages(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages, err := h.svc.ReorderPages(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramFunnelID), req.IDs)
	if err != nil {
		writeServiceError(w, err, "reorder pages")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*funnel.Page]{Data: pages})
}

// GetPage handles GET /subaccounts/{subaccountID}/pages/{pageID}
func (h *FunnelHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.GetPage(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPageID))
	if err != nil {
		writeServiceError(w, err, "get page")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// UpdatePage handles PATCH /subaccounts/{subaccountID}/pages/{pageID}
func (h *FunnelHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.svc.UpdatePage(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPageID), req.input())
	if err != nil {
		writeServiceError(w, err, "update page")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// DeletePage handles DELETE /subaccounts/{subaccountID}/pages/{pageID}
func (h *FunnelHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePage(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPageID)); err != nil {
		writeServiceError(w, err, "delete page")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MovePage handles POST /subaccounts/{subaccountID}/pages/{pageID}/move
func (h *FunnelHandler) MovePage(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages, err := h.svc.MovePage(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPageID), *req.To)
	if err != nil {
		writeServiceError(w, err, "move page")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*funnel.Page]{Data: pages})
}

// GetPublished handles GET /public/funnels/{subdomain}. No authentication.
func (h *FunnelHandler) GetPublished(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetPublished(r.Context(), chi.URLParam(r, paramSubdomain))
	if err != nil {
		writeServiceError(w, err, "load funnel")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// RecordVisit handles POST /public/funnels/{subdomain}/pages/{pageID}/visits.
// The visit is buffered and persisted by the next flush, so the response is 202.
func (h *FunnelHandler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, paramPageID)
	if err := h.svc.PublishedPageExists(r.Context(), chi.URLParam(r, paramSubdomain), pageID); err != nil {
		writeServiceError(w, err, "record visit")
		return
	}
	h.visits.Record(pageID)
	w.WriteHeader(http.StatusAccepted)
}
