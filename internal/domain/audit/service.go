package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// AuditService provides audit logging capabilities
// All operations are append-only; no updates or deletes are supported
//
//nolint:revive // stable domain service name referenced across packages
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

const auditColumns = `id, agency_id, actor_id, actor_type, action, entity_type, entity_id,
	details, outcome, trace_id, ip_address, user_agent, created_at`

// Log creates a new audit event (append-only, immutable)
// This is the ONLY way to create audit events - no updates, no deletes
func (s *AuditService) Log(ctx context.Context, event *AuditEvent) error {
	details := normalizeJSON(event.Details, []byte("{}"))
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_event (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.AgencyID, event.ActorID, string(event.ActorType), event.Action,
		event.EntityType, event.EntityID, string(details), string(event.Outcome),
		event.TraceID, event.IPAddress, event.UserAgent, sqlite.FormatTime(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// LogWithDetails is a helper for common case with structured details
func (s *AuditService) LogWithDetails(
	ctx context.Context,
	agencyID string,
	actorID string,
	actorType ActorType,
	action string,
	entityType *string,
	entityID *string,
	details *EventDetails,
	outcome Outcome,
) error {
	var detailsJSON json.RawMessage
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return err
		}
	}

	event := &AuditEvent{
		ID:         generateID(),
		AgencyID:   agencyID,
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    detailsJSON,
		Outcome:    outcome,
		CreatedAt:  time.Now(),
	}

	return s.Log(ctx, event)
}

// GetByID retrieves a single audit event by ID
func (s *AuditService) GetByID(ctx context.Context, id string) (*AuditEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_event WHERE id = ?`, id)
	return scanAuditEvent(row)
}

// List retrieves audit events for an agency matching f, newest first,
// together with the total number of matches.
func (s *AuditService) List(
	ctx context.Context,
	agencyID string,
	f Filter,
	limit int,
	offset int,
) ([]*AuditEvent, int, error) {
	where, args := filterClause(agencyID, f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_event WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM audit_event
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0, limit)
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// ListByAgency retrieves audit events for an agency (with pagination)
// Results are ordered by created_at DESC (newest first)
func (s *AuditService) ListByAgency(ctx context.Context, agencyID string, limit, offset int) ([]*AuditEvent, int, error) {
	return s.List(ctx, agencyID, Filter{}, limit, offset)
}

// ListByActor retrieves audit events for a specific actor within an agency
func (s *AuditService) ListByActor(ctx context.Context, agencyID, actorID string, limit int) ([]*AuditEvent, error) {
	events, _, err := s.List(ctx, agencyID, Filter{ActorID: actorID}, limit, 0)
	return events, err
}

// ListByEntity retrieves audit events for a specific entity
func (s *AuditService) ListByEntity(ctx context.Context, agencyID, entityType, entityID string, limit int) ([]*AuditEvent, error) {
	events, _, err := s.List(ctx, agencyID, Filter{EntityType: entityType, EntityID: entityID}, limit, 0)
	return events, err
}

func filterClause(agencyID string, f Filter) (string, []any) {
	clauses := []string{"agency_id = ?"}
	args := []any{agencyID}
	add := func(col, v string) {
		if v != "" {
			clauses = append(clauses, col+" = ?")
			args = append(args, v)
		}
	}
	add("actor_id", f.ActorID)
	add("action", f.Action)
	add("outcome", string(f.Outcome))
	add("entity_type", f.EntityType)
	add("entity_id", f.EntityID)
	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditEvent(row rowScanner) (*AuditEvent, error) {
	var (
		e                                      AuditEvent
		actorType, outcome, details, createdAt string
		entityType, entityID, traceID          sql.NullString
		ipAddress, userAgent                   sql.NullString
	)
	if err := row.Scan(&e.ID, &e.AgencyID, &e.ActorID, &actorType, &e.Action, &entityType, &entityID,
		&details, &outcome, &traceID, &ipAddress, &userAgent, &createdAt); err != nil {
		return nil, err
	}
	e.ActorType = ActorType(actorType)
	e.Outcome = Outcome(outcome)
	e.Details = json.RawMessage(details)
	e.EntityType = nullStringPtr(entityType)
	e.EntityID = nullStringPtr(entityID)
	e.TraceID = nullStringPtr(traceID)
	e.IPAddress = nullStringPtr(ipAddress)
	e.UserAgent = nullStringPtr(userAgent)
	e.CreatedAt = sqlite.ParseTime(createdAt)
	return &e, nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// generateID generates a new UUID for audit events
func generateID() string {
	// Using UUID v7 for better time-based ordering
	return uuid.NewV7().String()
}

func normalizeJSON(raw json.RawMessage, fallback []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(fallback)
	}
	return raw
}
