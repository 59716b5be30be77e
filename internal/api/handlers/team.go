package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/tenancy"
)

const (
	paramUserID       = "userID"
	paramInvitationID = "invitationID"
	paramSubAccountID = "subaccountID"
)

// TeamHandler serves team members and invitations.
type TeamHandler struct {
	team        *tenancy.TeamService
	invitations *tenancy.InvitationService
}

// NewTeamHandler creates a new TeamHandler.
func NewTeamHandler(team *tenancy.TeamService, invitations *tenancy.InvitationService) *TeamHandler {
	return &TeamHandler{team: team, invitations: invitations}
}

// ChangeRoleRequest is the request body for PATCH /api/v1/team/{userID}/role.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

// SetAccessRequest is the request body for PUT /api/v1/team/{userID}/permissions/{subaccountID}.
type SetAccessRequest struct {
	Access bool `json:"access"`
}

// CreateInvitationRequest is the request body for POST /api/v1/invitations.
type CreateInvitationRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,role"`
}

// ListMembers handles GET /api/v1/team
func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.team.ListMembers(r.Context(), scopeFromContext(r.Context()).AgencyID)
	if err != nil {
		writeServiceError(w, err, "list team")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*tenancy.Member]{Data: members})
}

// ChangeRole handles PATCH /api/v1/team/{userID}/role
func (h *TeamHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeRoleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := h.team.ChangeRole(r.Context(), scopeFromContext(r.Context()),
		chi.URLParam(r, paramUserID), access.Role(req.Role))
	if err != nil {
		writeServiceError(w, err, "change role")
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// SetAccess handles PUT /api/v1/team/{userID}/permissions/{subaccountID}
func (h *TeamHandler) SetAccess(w http.ResponseWriter, r *http.Request) {
	var req SetAccessRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := h.team.SetAccess(r.Context(), scopeFromContext(r.Context()),
		chi.URLParam(r, paramUserID), chi.URLParam(r, paramSubAccountID), req.Access)
	if err != nil {
		writeServiceError(w, err, "set access")
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// RemoveMember handles DELETE /api/v1/team/{userID}
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.team.RemoveMember(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramUserID)); err != nil {
		writeServiceError(w, err, "remove member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInvitations handles GET /api/v1/invitations?status=PENDING
func (h *TeamHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := h.invitations.List(r.Context(), scopeFromContext(r.Context()).AgencyID, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, err, "list invitations")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*tenancy.Invitation]{Data: invs})
}

// CreateInvitation handles POST /api/v1/invitations
func (h *TeamHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req CreateInvitationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.invitations.Create(r.Context(), scopeFromContext(r.Context()), req.Email, access.Role(req.Role))
	if err != nil {
		writeServiceError(w, err, "create invitation")
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// RevokeInvitation handles DELETE /api/v1/invitations/{invitationID}
func (h *TeamHandler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	if err := h.invitations.Revoke(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramInvitationID)); err != nil {
		writeServiceError(w, err, "revoke invitation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
