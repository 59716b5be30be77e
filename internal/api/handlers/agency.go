package handlers

import (
	"net/http"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/tenancy"
)

// AgencyHandler serves the caller's agency and profile.
type AgencyHandler struct {
	agencies *tenancy.AgencyService
	team     *tenancy.TeamService
}

// NewAgencyHandler creates a new AgencyHandler.
func NewAgencyHandler(agencies *tenancy.AgencyService, team *tenancy.TeamService) *AgencyHandler {
	return &AgencyHandler{agencies: agencies, team: team}
}

// UpdateAgencyRequest is the request body for PATCH /api/v1/agency.
type UpdateAgencyRequest struct {
	Name             string  `json:"name" validate:"required,min=2"`
	CompanyEmail     string  `json:"companyEmail" validate:"required,email"`
	CompanyPhone     string  `json:"companyPhone" validate:"required"`
	Address          string  `json:"address" validate:"required"`
	City             string  `json:"city" validate:"required"`
	ZipCode          string  `json:"zipCode" validate:"required"`
	State            string  `json:"state" validate:"required"`
	Country          string  `json:"country" validate:"required"`
	AgencyLogo       string  `json:"agencyLogo" validate:"required"`
	WhiteLabel       bool    `json:"whiteLabel"`
	Goal             int     `json:"goal" validate:"gte=0"`
	ConnectAccountID *string `json:"connectAccountId"`
}

// UpdateProfileRequest is the request body for PATCH /api/v1/me.
type UpdateProfileRequest struct {
	Name      string `json:"name" validate:"required"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url"`
}

// GetAgency handles GET /api/v1/agency
func (h *AgencyHandler) GetAgency(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromContext(r.Context())
	agency, err := h.agencies.Get(r.Context(), scope.AgencyID)
	if err != nil {
		writeServiceError(w, err, "get agency")
		return
	}
	writeJSON(w, http.StatusOK, agency)
}

// UpdateAgency handles PATCH /api/v1/agency
func (h *AgencyHandler) UpdateAgency(w http.ResponseWriter, r *http.Request) {
	var req UpdateAgencyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	agency, err := h.agencies.Update(r.Context(), scopeFromContext(r.Context()), tenancy.UpdateAgencyInput{
		Name:             req.Name,
		CompanyEmail:     req.CompanyEmail,
		CompanyPhone:     req.CompanyPhone,
		Address:          req.Address,
		City:             req.City,
		ZipCode:          req.ZipCode,
		State:            req.State,
		Country:          req.Country,
		AgencyLogo:       req.AgencyLogo,
		WhiteLabel:       req.WhiteLabel,
		Goal:             req.Goal,
		ConnectAccountID: req.ConnectAccountID,
	})
	if err != nil {
		writeServiceError(w, err, "update agency")
		return
	}
	writeJSON(w, http.StatusOK, agency)
}

// DeleteAgency handles DELETE /api/v1/agency
func (h *AgencyHandler) DeleteAgency(w http.ResponseWriter, r *http.Request) {
	if err := h.agencies.Delete(r.Context(), scopeFromContext(r.Context())); err != nil {
		writeServiceError(w, err, "delete agency")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMe handles GET /api/v1/me
func (h *AgencyHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromContext(r.Context())
	member, err := h.team.GetMember(r.Context(), scope.AgencyID, scope.UserID)
	if err != nil {
		writeServiceError(w, err, "get profile")
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// UpdateMe handles PATCH /api/v1/me
func (h *AgencyHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := h.team.UpdateProfile(r.Context(), scopeFromContext(r.Context()), req.Name, req.AvatarURL)
	if err != nil {
		writeServiceError(w, err, "update profile")
		return
	}
	writeJSON(w, http.StatusOK, member)
}
