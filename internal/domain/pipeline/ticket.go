package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// Ticket is a card in a lane.
type Ticket struct {
	ID             string    `json:"id"`
	LaneID         string    `json:"laneId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Value          *float64  `json:"value,omitempty"`
	Position       int       `json:"order"`
	AssignedUserID *string   `json:"assignedUserId,omitempty"`
	CustomerID     *string   `json:"customerId,omitempty"`
	Tags           []*Tag    `json:"tags"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TicketInput carries the editable ticket fields. TagIDs replaces the tag set.
type TicketInput struct {
	Name           string
	Description    string
	Value          *float64
	AssignedUserID *string
	CustomerID     *string
	TagIDs         []string
}

// CreateTicket appends a ticket to the end of a lane.
func (s *Service) CreateTicket(ctx context.Context, scope access.Scope, laneID string, in TicketInput) (*Ticket, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}

	id := uuid.NewV7().String()
	now := sqlite.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := laneInSubAccount(ctx, tx, laneID, scope.SubAccountID); err != nil {
		return nil, err
	}
	if err := validateTicket(ctx, tx, scope, in); err != nil {
		return nil, err
	}

	var position int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticket WHERE lane_id = ?`, laneID).Scan(&position); err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ticket (id, lane_id, name, description, value, position, assigned_user_id, customer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, laneID, in.Name, in.Description, in.Value, position, in.AssignedUserID, in.CustomerID, now, now); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	if err := replaceTags(ctx, tx, id, in.TagIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Created a ticket", entityTicket, in.Name))
	return s.GetTicket(ctx, scope, id)
}

// GetTicket returns a ticket of the sub-account with its tags, or sql.ErrNoRows.
func (s *Service) GetTicket(ctx context.Context, scope access.Scope, id string) (*Ticket, error) {
	tickets, err := s.queryTickets(ctx, `t.id = ? AND p.sub_account_id = ?`, id, scope.SubAccountID)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, sql.ErrNoRows
	}
	return tickets[0], nil
}

// ListTickets returns a lane's tickets in position order.
func (s *Service) ListTickets(ctx context.Context, scope access.Scope, laneID string) ([]*Ticket, error) {
	if _, err := s.GetLane(ctx, scope, laneID); err != nil {
		return nil, err
	}
	return s.queryTickets(ctx, `t.lane_id = ?`, laneID)
}

// UpdateTicket overwrites a ticket's fields and tag set.
func (s *Service) UpdateTicket(ctx context.Context, scope access.Scope, id string, in TicketInput) (*Ticket, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	if _, err := s.GetTicket(ctx, scope, id); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := validateTicket(ctx, tx, scope, in); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE ticket SET name = ?, description = ?, value = ?, assigned_user_id = ?, customer_id = ?, updated_at = ?
		WHERE id = ?
	`, in.Name, in.Description, in.Value, in.AssignedUserID, in.CustomerID, sqlite.Now(), id); err != nil {
		return nil, fmt.Errorf("update ticket: %w", err)
	}
	if err := replaceTags(ctx, tx, id, in.TagIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Updated a ticket", entityTicket, in.Name))
	return s.GetTicket(ctx, scope, id)
}

// DeleteTicket removes a ticket and renumbers its lane.
func (s *Service) DeleteTicket(ctx context.Context, scope access.Scope, id string) error {
	if !scope.Role.CanWrite() {
		return access.ErrForbidden
	}
	t, err := s.GetTicket(ctx, scope, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM ticket WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	ids, err := ticketOrder.OrderedIDs(ctx, tx, t.LaneID)
	if err != nil {
		return err
	}
	if err := ticketOrder.WritePositions(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Deleted a ticket", entityTicket, t.Name))
	return nil
}

// queryTickets loads tickets matching where (over ticket t, lane l, pipeline p)
// in lane then position order, with their tags attached.
func (s *Service) queryTickets(ctx context.Context, where string, args ...any) ([]*Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.lane_id, t.name, t.description, t.value, t.position, t.assigned_user_id, t.customer_id,
			t.created_at, t.updated_at
		FROM ticket t
		JOIN lane l ON l.id = t.lane_id
		JOIN pipeline p ON p.id = l.pipeline_id
		WHERE `+where+`
		ORDER BY l.position, t.position, t.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	tickets := make([]*Ticket, 0)
	byID := make(map[string]*Ticket)
	for rows.Next() {
		var (
			t                    Ticket
			value                sql.NullFloat64
			createdAt, updatedAt string
		)
		if err := rows.Scan(&t.ID, &t.LaneID, &t.Name, &t.Description, &value, &t.Position,
			&t.AssignedUserID, &t.CustomerID, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if value.Valid {
			t.Value = &value.Float64
		}
		t.CreatedAt = sqlite.ParseTime(createdAt)
		t.UpdatedAt = sqlite.ParseTime(updatedAt)
		t.Tags = make([]*Tag, 0)
		tickets = append(tickets, &t)
		byID[t.ID] = &t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return tickets, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tickets)), ",")
	ids := make([]any, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	tagRows, err := s.db.QueryContext(ctx, `
		SELECT tt.ticket_id, g.id, g.sub_account_id, g.name, g.color, g.created_at, g.updated_at
		FROM ticket_tag tt JOIN tag g ON g.id = tt.tag_id
		WHERE tt.ticket_id IN (`+placeholders+`)
		ORDER BY g.name
	`, ids...)
	if err != nil {
		return nil, fmt.Errorf("list ticket tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var (
			ticketID             string
			g                    Tag
			createdAt, updatedAt string
		)
		if err := tagRows.Scan(&ticketID, &g.ID, &g.SubAccountID, &g.Name, &g.Color, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		g.CreatedAt = sqlite.ParseTime(createdAt)
		g.UpdatedAt = sqlite.ParseTime(updatedAt)
		if t, ok := byID[ticketID]; ok {
			t.Tags = append(t.Tags, &g)
		}
	}
	return tickets, tagRows.Err()
}

func validateTicket(ctx context.Context, tx *sql.Tx, scope access.Scope, in TicketInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Value != nil && *in.Value < 0 {
		return fmt.Errorf("%w: value must not be negative", ErrInvalidInput)
	}
	if in.AssignedUserID != nil {
		if err := exists(ctx, tx, `SELECT 1 FROM user_account WHERE id = ? AND agency_id = ?`,
			*in.AssignedUserID, scope.AgencyID); err != nil {
			return fmt.Errorf("%w: assigned user %w", ErrInvalidInput, err)
		}
	}
	if in.CustomerID != nil {
		if err := exists(ctx, tx, `SELECT 1 FROM contact WHERE id = ? AND sub_account_id = ?`,
			*in.CustomerID, scope.SubAccountID); err != nil {
			return fmt.Errorf("%w: customer %w", ErrInvalidInput, err)
		}
	}
	for _, tagID := range in.TagIDs {
		if err := exists(ctx, tx, `SELECT 1 FROM tag WHERE id = ? AND sub_account_id = ?`,
			tagID, scope.SubAccountID); err != nil {
			return fmt.Errorf("%w: tag %s %w", ErrInvalidInput, tagID, err)
		}
	}
	return nil
}

var errUnknownReference = errors.New("not found")

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errUnknownReference
	}
	return err
}

func replaceTags(ctx context.Context, tx *sql.Tx, ticketID string, tagIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_tag WHERE ticket_id = ?`, ticketID); err != nil {
		return fmt.Errorf("clear ticket tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO ticket_tag (ticket_id, tag_id) VALUES (?, ?)`, ticketID, tagID); err != nil {
			return fmt.Errorf("tag ticket: %w", err)
		}
	}
	return nil
}
