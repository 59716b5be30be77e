package funnel

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/metrics"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/ordering"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

var pageOrder = sqlite.Positioned{Table: "funnel_page", ParentColumn: "funnel_id"}

// Page is one landing page of a funnel.
type Page struct {
	ID           string    `json:"id"`
	FunnelID     string    `json:"funnelId"`
	Name         string    `json:"name"`
	PathName     string    `json:"pathName"`
	Content      string    `json:"content"`
	PreviewImage string    `json:"previewImage"`
	Visits       int       `json:"visits"`
	Position     int       `json:"order"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PageInput carries editable page fields.
type PageInput struct {
	Name         string
	PathName     string
	Content      string
	PreviewImage string
}

const pageColumns = `fp.id, fp.funnel_id, fp.name, fp.path_name, fp.content, fp.preview_image, fp.visits,
	fp.position, fp.created_at, fp.updated_at`

func normalizePath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

// CreatePage appends a page to the funnel.
func (s *Service) CreatePage(ctx context.Context, scope access.Scope, funnelID string, in PageInput) (*Page, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	if _, err := s.GetFunnel(ctx, scope, funnelID); err != nil {
		return nil, err
	}

	id := uuid.NewV7().String()
	now := sqlite.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var position int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM funnel_page WHERE funnel_id = ?`, funnelID).Scan(&position); err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO funnel_page (id, funnel_id, name, path_name, content, preview_image, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, funnelID, in.Name, normalizePath(in.PathName), in.Content, in.PreviewImage, position, now, now)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrPathTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Created a funnel page", entityPage, in.Name))
	return s.GetPage(ctx, scope, id)
}

// GetPage returns a page of one of the sub-account's funnels, or sql.ErrNoRows.
func (s *Service) GetPage(ctx context.Context, scope access.Scope, id string) (*Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pageColumns+` FROM funnel_page fp JOIN funnel f ON f.id = fp.funnel_id
		WHERE fp.id = ? AND f.sub_account_id = ?
	`, id, scope.SubAccountID)
	return scanPage(row)
}

// ListPages returns the funnel's pages in position order.
func (s *Service) ListPages(ctx context.Context, scope access.Scope, funnelID string) ([]*Page, error) {
	if _, err := s.GetFunnel(ctx, scope, funnelID); err != nil {
		return nil, err
	}
	return s.queryPages(ctx, funnelID)
}

func (s *Service) queryPages(ctx context.Context, funnelID string) ([]*Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pageColumns+` FROM funnel_page fp WHERE fp.funnel_id = ? ORDER BY fp.position, fp.id
	`, funnelID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	out := make([]*Page, 0)
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePage overwrites a page's content fields. Position and visits are untouched.
func (s *Service) UpdatePage(ctx context.Context, scope access.Scope, id string, in PageInput) (*Page, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	if _, err := s.GetPage(ctx, scope, id); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE funnel_page SET name = ?, path_name = ?, content = ?, preview_image = ?, updated_at = ? WHERE id = ?
	`, in.Name, normalizePath(in.PathName), in.Content, in.PreviewImage, sqlite.Now(), id)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrPathTaken
	}
	if err != nil {
		return nil, fmt.Errorf("update page: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Updated a funnel page", entityPage, in.Name))
	return s.GetPage(ctx, scope, id)
}

// DeletePage removes a page and renumbers the funnel.
func (s *Service) DeletePage(ctx context.Context, scope access.Scope, id string) error {
	if !scope.Role.CanWrite() {
		return access.ErrForbidden
	}
	p, err := s.GetPage(ctx, scope, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM funnel_page WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	ids, err := pageOrder.OrderedIDs(ctx, tx, p.FunnelID)
	if err != nil {
		return err
	}
	if err := pageOrder.WritePositions(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Deleted a funnel page", entityPage, p.Name))
	return nil
}

// ReorderPages stores pageIDs as the funnel's page order. pageIDs must be
// exactly the funnel's current pages, otherwise ordering.ErrOrderConflict.
func (s *Service) ReorderPages(ctx context.Context, scope access.Scope, funnelID string, pageIDs []string) (_ []*Page, err error) {
	defer func() { metrics.RecordReorder(entityPage, err) }()

	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	f, err := s.GetFunnel(ctx, scope, funnelID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := pageOrder.OrderedIDs(ctx, tx, funnelID)
	if err != nil {
		return nil, err
	}
	if err := ordering.CheckPermutation(current, pageIDs); err != nil {
		return nil, err
	}
	if err := pageOrder.WritePositions(ctx, tx, pageIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Reordered funnel pages", entityFunnel, f.Name))
	return s.queryPages(ctx, funnelID)
}

// MovePage drops a page on drop-zone slot to (0..len) of its funnel.
func (s *Service) MovePage(ctx context.Context, scope access.Scope, pageID string, to int) (_ []*Page, err error) {
	defer func() { metrics.RecordReorder(entityPage, err) }()

	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	p, err := s.GetPage(ctx, scope, pageID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := pageOrder.OrderedIDs(ctx, tx, p.FunnelID)
	if err != nil {
		return nil, err
	}
	from := ordering.IndexOf(current, pageID)
	if from < 0 {
		return nil, sql.ErrNoRows
	}
	next, changed, err := ordering.Move(current, from, to)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := pageOrder.WritePositions(ctx, tx, next); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if changed {
		s.notifier.Notify(ctx, notification.NewEvent(scope, "Moved funnel page", entityPage, p.Name))
	}
	return s.queryPages(ctx, p.FunnelID)
}

func scanPage(row interface{ Scan(...any) error }) (*Page, error) {
	var (
		p                    Page
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.FunnelID, &p.Name, &p.PathName, &p.Content, &p.PreviewImage, &p.Visits,
		&p.Position, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = sqlite.ParseTime(createdAt)
	p.UpdatedAt = sqlite.ParseTime(updatedAt)
	return &p, nil
}
