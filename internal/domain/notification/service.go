package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// systemActorName is shown for activity without a user (webhooks, jobs).
const systemActorName = "System"

// ListInput narrows and paginates List. SubAccountID optionally restricts
// the feed to one sub-account.
type ListInput struct {
	SubAccountID string
	Limit        int
	Offset       int
}

// Service stores and lists notifications.
type Service struct {
	db *sql.DB
}

// NewService returns a Service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record persists evt, rendering the display text with the actor's name.
func (s *Service) Record(ctx context.Context, evt Event) (*Notification, error) {
	if evt.AgencyID == "" || evt.Action == "" {
		return nil, fmt.Errorf("record notification: agency and action are required")
	}

	actorName := systemActorName
	if evt.ActorID != "" {
		err := s.db.QueryRowContext(ctx, `SELECT name FROM user_account WHERE id = ?`, evt.ActorID).Scan(&actorName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load actor: %w", err)
		}
	}

	n := &Notification{
		ID:           uuid.NewV7().String(),
		AgencyID:     evt.AgencyID,
		UserID:       evt.ActorID,
		Action:       evt.Action,
		EntityType:   evt.EntityType,
		EntityName:   evt.EntityName,
		Notification: Render(actorName, evt.Action, evt.EntityName),
	}
	if evt.SubAccountID != "" {
		n.SubAccountID = &evt.SubAccountID
	}
	now := sqlite.Now()
	n.CreatedAt = sqlite.ParseTime(now)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification (id, agency_id, sub_account_id, user_id, action, entity_type, entity_name, notification, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.AgencyID, n.SubAccountID, n.UserID, n.Action, n.EntityType, n.EntityName, n.Notification, now)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// List returns the agency's notifications visible to the caller, newest first.
// Sub-account roles only see activity of sub-accounts they were granted.
func (s *Service) List(ctx context.Context, scope access.Scope, in ListInput) ([]*Notification, int, error) {
	f := access.SubAccountFilter(scope, "sub_account_id")
	where := access.And("agency_id = ?", f.Where)
	args := append([]any{scope.AgencyID}, f.Args...)
	if in.SubAccountID != "" {
		where = access.And(where, "sub_account_id = ?")
		args = append(args, in.SubAccountID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agency_id, sub_account_id, user_id, action, entity_type, entity_name, notification, created_at
		FROM notification
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, in.Limit, in.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*Notification, 0, in.Limit)
	for rows.Next() {
		var (
			n         Notification
			sub       sql.NullString
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.AgencyID, &sub, &n.UserID, &n.Action, &n.EntityType,
			&n.EntityName, &n.Notification, &createdAt); err != nil {
			return nil, 0, err
		}
		if sub.Valid {
			n.SubAccountID = &sub.String
		}
		n.CreatedAt = sqlite.ParseTime(createdAt)
		out = append(out, &n)
	}
	return out, total, rows.Err()
}

// Visible reports whether n may be shown to a caller of agencyID who is either
// agency-wide or holds one of the sub-account grants in allowed.
func Visible(n *Notification, agencyID string, all bool, allowed map[string]bool) bool {
	if n == nil || n.AgencyID != agencyID {
		return false
	}
	if all {
		return true
	}
	return n.SubAccountID != nil && allowed[*n.SubAccountID]
}
