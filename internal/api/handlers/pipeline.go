package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/pipeline"
)

const (
	paramPipelineID = "pipelineID"
	paramLaneID     = "laneID"
	paramTicketID   = "ticketID"
	paramTagID      = "tagID"
)

// PipelineHandler serves pipelines, lanes, tickets and tags of the sub-account
// in the path. Scope checks happen in SubAccountGuard and the service.
type PipelineHandler struct {
	svc *pipeline.Service
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(svc *pipeline.Service) *PipelineHandler {
	return &PipelineHandler{svc: svc}
}

// NameRequest is the body of endpoints that only take a name.
type NameRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ReorderRequest carries the full new order of a collection.
type ReorderRequest struct {
	IDs []string `json:"ids" validate:"required"`
}

// MoveRequest drops an item on drop-zone slot To (0..len).
type MoveRequest struct {
	To *int `json:"to" validate:"required,gte=0"`
}

// MoveTicketRequest drops a ticket on slot To of LaneID.
type MoveTicketRequest struct {
	LaneID string `json:"laneId" validate:"required"`
	To     *int   `json:"to" validate:"required,gte=0"`
}

// TicketRequest is the body for creating or updating a ticket.
type TicketRequest struct {
	Name           string   `json:"name" validate:"required,max=200"`
	Description    string   `json:"description"`
	Value          *float64 `json:"value" validate:"omitempty,gte=0"`
	AssignedUserID *string  `json:"assignedUserId"`
	CustomerID     *string  `json:"customerId"`
	TagIDs         []string `json:"tagIds"`
}

func (req TicketRequest) input() pipeline.TicketInput {
	return pipeline.TicketInput{
		Name:           req.Name,
		Description:    req.Description,
		Value:          req.Value,
		AssignedUserID: req.AssignedUserID,
		CustomerID:     req.CustomerID,
		TagIDs:         req.TagIDs,
	}
}

// TagRequest is the body for creating or updating a tag.
type TagRequest struct {
	Name  string `json:"name" validate:"required,max=50"`
	Color string `json:"color" validate:"required"`
}

// ListPipelines handles GET /subaccounts/{subaccountID}/pipelines
func (h *PipelineHandler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.svc.ListPipelines(r.Context(), scopeFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, "list pipelines")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*pipeline.Pipeline]{Data: pipelines})
}

// CreatePipeline handles POST /subaccounts/{subaccountID}/pipelines
func (h *PipelineHandler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.svc.CreatePipeline(r.Context(), scopeFromContext(r.Context()), req.Name)
	if err != nil {
		writeServiceError(w, err, "create pipeline")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPipeline handles GET /subaccounts/{subaccountID}/pipelines/{pipelineID}
func (h *PipelineHandler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPipeline(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPipelineID))
	if err != nil {
		writeServiceError(w, err, "get pipeline")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdatePipeline handles PATCH /subaccounts/{subaccountID}/pipelines/{pipelineID}
func (h *PipelineHandler) UpdatePipeline(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.svc.UpdatePipeline(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPipelineID), req.Name)
	if err != nil {
		writeServiceError(w, err, "update pipeline")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePipeline handles DELETE /subaccounts/{subaccountID}/pipelines/{pipelineID}
func (h *PipelineHandler) DeletePipeline(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePipeline(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPipelineID)); err != nil {
		writeServiceError(w, err, "delete pipeline")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBoard handles GET /subaccounts/{subaccountID}/pipelines/{pipelineID}/board
func (h *PipelineHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.GetBoard(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPipelineID))
	if err != nil {
		writeServiceError(w, err, "load board")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ListLanes handles GET /subaccounts/{subaccountID}/pipelines/{pipelineID}/lanes
func (h *PipelineHandler) ListLanes(w http.ResponseWriter, r *http.Request) {
	lanes, err := h.svc.ListLanes(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPipelineID))
	if err != nil {
		writeServiceError(w, err, "list lanes")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*pipeline.Lane]{Data: lanes})
}

// CreateLane handles POST /subaccounts/{subaccountID}/pipelines/{pipelineID}/lanes
func (h *PipelineHandler) CreateLane(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lane, err := h.svc.CreateLane(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPipelineID), req.Name)
	if err != nil {
		writeServiceError(w, err, "create lane")
		return
	}
	writeJSON(w, http.StatusCreated, lane)
}

// ReorderLanes handles POST /subaccounts/{subaccountID}/pipelines/{pipelineID}/lanes/reorder
//
// Response codes:
//   - 200 OK: lanes in their new order
//   - 409 Conflict: ids are not exactly the pipeline's current lanes
func (h *PipelineHandler) ReorderLanes(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lanes, err := h.svc.ReorderLanes(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramPipelineID), req.IDs)
	if err != nil {
		writeServiceError(w, err, "reorder lanes")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*pipeline.Lane]{Data: lanes})
}

// MoveLane handles POST /subaccounts/{subaccountID}/pipelines/{pipelineID}/lanes/{laneID}/move
func (h *PipelineHandler) MoveLane(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lanes, err := h.svc.MoveLane(r.Context(), scopeFromContext(r.Context()),
		chi.URLParam(r, paramPipelineID), chi.URLParam(r, paramLaneID), *req.To)
	if err != nil {
		writeServiceError(w, err, "move lane")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*pipeline.Lane]{Data: lanes})
}

// GetLane handles GET /subaccounts/{subaccountID}/lanes/{laneID}
func (h *PipelineHandler) GetLane(w http.ResponseWriter, r *http.Request) {
	lane, err := h.svc.GetLane(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramLaneID))
	if err != nil {
		writeServiceError(w, err, "get lane")
		return
	}
	writeJSON(w, http.StatusOK, lane)
}

// UpdateLane handles PATCH /subaccounts/{subaccountID}/lanes/{laneID}
func (h *PipelineHandler) UpdateLane(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lane, err := h.svc.UpdateLane(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramLaneID), req.Name)
	if err != nil {
		writeServiceError(w, err, "update lane")
		return
	}
	writeJSON(w, http.StatusOK, lane)
}

// DeleteLane handles DELETE /subaccounts/{subaccountID}/lanes/{laneID}
func (h *PipelineHandler) DeleteLane(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteLane(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramLaneID)); err != nil {
		writeServiceError(w, err, "delete lane")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTickets handles GET /subaccounts/{subaccountID}/lanes/{laneID}/tickets
func (h *PipelineHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.svc.ListTickets(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramLaneID))
	if err != nil {
		writeServiceError(w, err, "list tickets")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*pipeline.Ticket]{Data: tickets})
}

// CreateTicket handles POST /subaccounts/{subaccountID}/lanes/{laneID}/tickets
func (h *PipelineHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ticket, err := h.svc.CreateTicket(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramLaneID), req.input())
	if err != nil {
		writeServiceError(w, err, "create ticket")
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// ReorderTickets handles POST /subaccounts/{subaccountID}/lanes/{laneID}/tickets/reorder
func (h *PipelineHandler) ReorderTickets(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tickets, err := h.svc.ReorderTickets(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramLaneID), req.IDs)
	if err != nil {
		writeServiceError(w, err, "reorder tickets")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*pipeline.Ticket]{Data: tickets})
}

// GetTicket handles GET /subaccounts/{subaccountID}/tickets/{ticketID}
func (h *PipelineHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.svc.GetTicket(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramTicketID))
	if err != nil {
		writeServiceError(w, err, "get ticket")
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// UpdateTicket handles PATCH /subaccounts/{subaccountID}/tickets/{ticketID}
func (h *PipelineHandler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ticket, err := h.svc.UpdateTicket(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramTicketID), req.input())
	if err != nil {
		writeServiceError(w, err, "update ticket")
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// DeleteTicket handles DELETE /subaccounts/{subaccountID}/tickets/{ticketID}
func (h *PipelineHandler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTicket(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramTicketID)); err != nil {
		writeServiceError(w, err, "delete ticket")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveTicket handles POST /subaccounts/{subaccountID}/tickets/{ticketID}/move
func (h *PipelineHandler) MoveTicket(w http.ResponseWriter, r *http.Request) {
	var req MoveTicketRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ticket, err := h.svc.MoveTicket(r.Context(), scopeFromContext(r.Context()),
		chi.URLParam(r, paramTicketID), req.LaneID, *req.To)
	if err != nil {
		writeServiceError(w, err, "move ticket")
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// ListTags handles GET /subaccounts/{subaccountID}/tags
func (h *PipelineHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.ListTags(r.Context(), scopeFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, "list tags")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*pipeline.Tag]{Data: tags})
}

// CreateTag handles POST /subaccounts/{subaccountID}/tags
func (h *PipelineHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tag, err := h.svc.CreateTag(r.Context(), scopeFromContext(r.Context()), req.Name, req.Color)
	if err != nil {
		writeServiceError(w, err, "create tag")
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// GetTag handles GET /subaccounts/{subaccountID}/tags/{tagID}
func (h *PipelineHandler) GetTag(w http.ResponseWriter, r *http.Request) {
	tag, err := h.svc.GetTag(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramTagID))
	if err != nil {
		writeServiceError(w, err, "get tag")
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// UpdateTag handles PATCH /subaccounts/{subaccountID}/tags/{tagID}
func (h *PipelineHandler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tag, err := h.svc.UpdateTag(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramTagID), req.Name, req.Color)
	if err != nil {
		writeServiceError(w, err, "update tag")
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// DeleteTag handles DELETE /subaccounts/{subaccountID}/tags/{tagID}
func (h *PipelineHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTag(r.Context(), scopeFromContext(r.Context()), chi.URLParam(r, paramTagID)); err != nil {
		writeServiceError(w, err, "delete tag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
