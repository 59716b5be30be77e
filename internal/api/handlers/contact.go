package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/crm"
)

const paramContactID = "contactID"

// ContactHandler handles HTTP requests for contact CRUD operations.
type ContactHandler struct {
	contactService *crm.ContactService
}

// NewContactHandler creates a new ContactHandler instance.
func NewContactHandler(contactService *crm.ContactService) *ContactHandler {
	return &ContactHandler{contactService: contactService}
}

// ContactRequest is the request body for creating or updating a contact.
type ContactRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
}

// CreateContact handles POST /subaccounts/{subaccountID}/contacts
func (h *ContactHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contact, err := h.contactService.Create(r.Context(), scopeFromContext(r.Context()), crm.ContactInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		writeServiceError(w, err, "create contact")
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

// GetContact handles GET /subaccounts/{subaccountID}/contacts/{contactID}
func (h *ContactHandler) GetContact(w http.ResponseWriter, r *http.Request) {
	contact, err := h.contactService.Get(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramContactID))
	if err != nil {
		writeServiceError(w, err, "get contact")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// ListContacts handles GET /subaccounts/{subaccountID}/contacts?q=&limit=&offset=
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)

	contacts, total, err := h.contactService.List(r.Context(), scopeFromContext(r.Context()), crm.ListContactsInput{
		Query:  r.URL.Query().Get("q"),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		writeServiceError(w, err, "list contacts")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[*crm.Contact]{
		Data: contacts,
		Meta: Meta{Total: total, Limit: page.Limit, Offset: page.Offset},
	})
}

// UpdateContact handles PATCH /subaccounts/{subaccountID}/contacts/{contactID}
func (h *ContactHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contact, err := h.contactService.Update(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramContactID), crm.ContactInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		writeServiceError(w, err, "update contact")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// DeleteContact handles DELETE /subaccounts/{subaccountID}/contacts/{contactID}
func (h *ContactHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.contactService.Delete(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramContactID)); err != nil {
		writeServiceError(w, err, "delete contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
