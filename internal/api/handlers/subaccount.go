package handlers

import (
	"net/http"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/tenancy"
)

// SubAccountHandler serves sub-account CRUD.
type SubAccountHandler struct {
	svc *tenancy.SubAccountService
}

// NewSubAccountHandler creates a new SubAccountHandler.
func NewSubAccountHandler(svc *tenancy.SubAccountService) *SubAccountHandler {
	return &SubAccountHandler{svc: svc}
}

// SubAccountRequest is the request body for creating or updating a sub-account.
type SubAccountRequest struct {
	Name             string  `json:"name" validate:"required,min=2"`
	CompanyEmail     string  `json:"companyEmail" validate:"required,email"`
	CompanyPhone     string  `json:"companyPhone" validate:"required"`
	Address          string  `json:"address" validate:"required"`
	City             string  `json:"city" validate:"required"`
	ZipCode          string  `json:"zipCode" validate:"required"`
	State            string  `json:"state" validate:"required"`
	Country          string  `json:"country" validate:"required"`
	SubAccountLogo   string  `json:"subAccountLogo" validate:"required"`
	Goal             int     `json:"goal" validate:"gte=0"`
	ConnectAccountID *string `json:"connectAccountId"`
}

func (req SubAccountRequest) input() tenancy.SubAccountInput {
	return tenancy.SubAccountInput{
		Name:             req.Name,
		CompanyEmail:     req.CompanyEmail,
		CompanyPhone:     req.CompanyPhone,
		Address:          req.Address,
		City:             req.City,
		ZipCode:          req.ZipCode,
		State:            req.State,
		Country:          req.Country,
		SubAccountLogo:   req.SubAccountLogo,
		Goal:             req.Goal,
		ConnectAccountID: req.ConnectAccountID,
	}
}

// ListSubAccounts handles GET /api/v1/subaccounts
func (h *SubAccountHandler) ListSubAccounts(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)
	subs, total, err := h.svc.List(r.Context(), scopeFromContext(r.Context()), page.Limit, page.Offset)
	if err != nil {
		writeServiceError(w, err, "list sub-accounts")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[*tenancy.SubAccount]{
		Data: subs,
		Meta: Meta{Total: total, Limit: page.Limit, Offset: page.Offset},
	})
}

// CreateSubAccount handles POST /api/v1/subaccounts
//
// Response codes:
//   - 201 Created
//   - 400 Bad Request: invalid body
//   - 402 Payment Required: the agency's plan allows no more sub-accounts
//   - 403 Forbidden: caller is not an owner or admin
func (h *SubAccountHandler) CreateSubAccount(w http.ResponseWriter, r *http.Request) {
	var req SubAccountRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.svc.Create(r.Context(), scopeFromContext(r.Context()), req.input())
	if err != nil {
		writeServiceError(w, err, "create sub-account")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// GetSubAccount handles GET /api/v1/subaccounts/{subaccountID}
func (h *SubAccountHandler) GetSubAccount(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromContext(r.Context())
	sub, err := h.svc.Get(r.Context(), scope, scope.SubAccountID)
	if err != nil {
		writeServiceError(w, err, "get sub-account")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// UpdateSubAccount handles PATCH /api/v1/subaccounts/{subaccountID}
func (h *SubAccountHandler) UpdateSubAccount(w http.ResponseWriter, r *http.Request) {
	var req SubAccountRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scope := scopeFromContext(r.Context())
	sub, err := h.svc.Update(r.Context(), scope, scope.SubAccountID, req.input())
	if err != nil {
		writeServiceError(w, err, "update sub-account")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// DeleteSubAccount handles DELETE /api/v1/subaccounts/{subaccountID}
func (h *SubAccountHandler) DeleteSubAccount(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), scope, scope.SubAccountID); err != nil {
		writeServiceError(w, err, "delete sub-account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
