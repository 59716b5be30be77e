package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// ErrTagExists is returned when a tag name is already used in the sub-account.
var ErrTagExists = errors.New("tag already exists")

// Tag labels tickets of a sub-account.
type Tag struct {
	ID           string    `json:"id"`
	SubAccountID string    `json:"subAccountId"`
	Name         string    `json:"name"`
	Color        string    `json:"color"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateTag adds a tag.
func (s *Service) CreateTag(ctx context.Context, scope access.Scope, name, color string) (*Tag, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	id := uuid.NewV7().String()
	now := sqlite.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tag (id, sub_account_id, name, color, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
	`, id, scope.SubAccountID, name, color, now, now)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrTagExists
	}
	if err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Created a tag", entityTag, name))
	return s.GetTag(ctx, scope, id)
}

// GetTag returns a tag of the sub-account, or sql.ErrNoRows.
func (s *Service) GetTag(ctx context.Context, scope access.Scope, id string) (*Tag, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sub_account_id, name, color, created_at, updated_at FROM tag WHERE id = ? AND sub_account_id = ?
	`, id, scope.SubAccountID)
	return scanTag(row)
}

// ListTags returns the sub-account's tags by name.
func (s *Service) ListTags(ctx context.Context, scope access.Scope) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sub_account_id, name, color, created_at, updated_at FROM tag
		WHERE sub_account_id = ? ORDER BY name, id
	`, scope.SubAccountID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	out := make([]*Tag, 0)
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTag renames or recolors a tag.
func (s *Service) UpdateTag(ctx context.Context, scope access.Scope, id, name, color string) (*Tag, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tag SET name = ?, color = ?, updated_at = ? WHERE id = ? AND sub_account_id = ?
	`, name, color, sqlite.Now(), id, scope.SubAccountID)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrTagExists
	}
	if err != nil {
		return nil, fmt.Errorf("update tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Updated a tag", entityTag, name))
	return s.GetTag(ctx, scope, id)
}

// DeleteTag removes a tag and detaches it from tickets.
func (s *Service) DeleteTag(ctx context.Context, scope access.Scope, id string) error {
	if !scope.Role.CanWrite() {
		return access.ErrForbidden
	}
	t, err := s.GetTag(ctx, scope, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tag WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Deleted a tag", entityTag, t.Name))
	return nil
}

func scanTag(row interface{ Scan(...any) error }) (*Tag, error) {
	var (
		t                    Tag
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.SubAccountID, &t.Name, &t.Color, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = sqlite.ParseTime(createdAt)
	t.UpdatedAt = sqlite.ParseTime(updatedAt)
	return &t, nil
}
