package crm

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

// ErrMediaLinkExists is returned when the link is already in a media library.
var ErrMediaLinkExists = errors.New("media link already exists")

const entityMedia = "media"

// Media is an uploaded file referenced by its public link.
type Media struct {
	ID           string    `json:"id"`
	SubAccountID string    `json:"subAccountId"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Link         string    `json:"link"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateMediaInput describes a file already stored elsewhere.
type CreateMediaInput struct {
	Type string
	Name string
	Link string
}

// MediaService manages a sub-account's media library.
type MediaService struct {
	db       *sql.DB
	notifier notification.Notifier
}

// NewMediaService creates a MediaService instance.
func NewMediaService(db *sql.DB, notifier notification.Notifier) *MediaService {
	return &MediaService{db: db, notifier: notifier}
}

// Create records a media file.
func (s *MediaService) Create(ctx context.Context, scope access.Scope, input CreateMediaInput) (*Media, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	id := uuid.NewV7().String()
	now := sqlite.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (id, sub_account_id, type, name, link, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, scope.SubAccountID, input.Type, input.Name, input.Link, now, now)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrMediaLinkExists
	}
	if err != nil {
		return nil, fmt.Errorf("create media: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Uploaded a media file", entityMedia, input.Name))
	return s.Get(ctx, scope, id)
}

// Get returns a media file of the sub-account, or sql.ErrNoRows.
func (s *MediaService) Get(ctx context.Context, scope access.Scope, id string) (*Media, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sub_account_id, type, name, link, created_at, updated_at FROM media WHERE id = ? AND sub_account_id = ?
	`, id, scope.SubAccountID)
	return scanMedia(row)
}

// List returns the media library, newest first.
func (s *MediaService) List(ctx context.Context, scope access.Scope, limit, offset int) ([]*Media, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media WHERE sub_account_id = ?`, scope.SubAccountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count media: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sub_account_id, type, name, link, created_at, updated_at FROM media
		WHERE sub_account_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, scope.SubAccountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	out := make([]*Media, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// Delete removes a media file.
func (s *MediaService) Delete(ctx context.Context, scope access.Scope, id string) error {
	if !scope.Role.CanWrite() {
		return access.ErrForbidden
	}
	m, err := s.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Deleted a media file", entityMedia, m.Name))
	return nil
}

func scanMedia(row interface{ Scan(...any) error }) (*Media, error) {
	var (
		m                    Media
		createdAt, updatedAt string
	)
	if err := row.Scan(&m.ID, &m.SubAccountID, &m.Type, &m.Name, &m.Link, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = sqlite.ParseTime(createdAt)
	m.UpdatedAt = sqlite.ParseTime(updatedAt)
	return &m, nil
}
