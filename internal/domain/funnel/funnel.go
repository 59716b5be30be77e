// Package funnel manages marketing funnels of a sub-account, their ordered
// pages, and the public read path used to serve published funnels.
package funnel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/tidwall/gjson"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

var (
	// ErrSubdomainTaken is returned when another funnel already uses the subdomain.
	ErrSubdomainTaken = errors.New("subdomain already taken")
	// ErrPathTaken is returned when another page of the funnel uses the path.
	ErrPathTaken = errors.New("page path already used in funnel")
	// ErrInvalidInput is returned for malformed subdomains, paths or product lists.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	entityFunnel = "funnel"
	entityPage   = "funnel_page"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Funnel is an ordered set of landing pages served under a subdomain.
type Funnel struct {
	ID            string    `json:"id"`
	SubAccountID  string    `json:"subAccountId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Published     bool      `json:"published"`
	SubDomainName string    `json:"subDomainName"`
	Favicon       string    `json:"favicon"`
	LiveProducts  string    `json:"liveProducts"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FunnelInput carries editable funnel fields. An empty SubDomainName gets a
// generated one on create and keeps the current one on update.
type FunnelInput struct {
	Name          string
	Description   string
	SubDomainName string
	Favicon       string
	Published     bool
}

// Service manages funnels and their pages.
type Service struct {
	db       *sql.DB
	notifier notification.Notifier
}

// NewService returns a Service.
func NewService(db *sql.DB, notifier notification.Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// DefaultSubdomain returns a readable random subdomain such as "brave-otter-3f9c".
func DefaultSubdomain() string {
	return petname.Generate(2, "-") + "-" + uuid.Short(4)
}

func normalizeSubdomain(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !subdomainPattern.MatchString(s) {
		return "", fmt.Errorf("%w: subdomain %q", ErrInvalidInput, s)
	}
	return s, nil
}

const funnelColumns = `id, sub_account_id, name, description, published, sub_domain_name, favicon,
	live_products, created_at, updated_at`

// CreateFunnel adds a funnel to the sub-account.
func (s *Service) CreateFunnel(ctx context.Context, scope access.Scope, in FunnelInput) (*Funnel, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	sub := in.SubDomainName
	if sub == "" {
		sub = DefaultSubdomain()
	}
	sub, err := normalizeSubdomain(sub)
	if err != nil {
		return nil, err
	}

	id := uuid.NewV7().String()
	now := sqlite.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO funnel (id, sub_account_id, name, description, published, sub_domain_name, favicon, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, scope.SubAccountID, in.Name, in.Description, in.Published, sub, in.Favicon, now, now)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrSubdomainTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create funnel: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Created funnel", entityFunnel, in.Name))
	return s.GetFunnel(ctx, scope, id)
}

// GetFunnel returns a funnel of the sub-account, or sql.ErrNoRows.
func (s *Service) GetFunnel(ctx context.Context, scope access.Scope, id string) (*Funnel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+funnelColumns+` FROM funnel WHERE id = ? AND sub_account_id = ?`, id, scope.SubAccountID)
	return scanFunnel(row)
}

// ListFunnels returns the sub-account's funnels, newest first.
func (s *Service) ListFunnels(ctx context.Context, scope access.Scope) ([]*Funnel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+funnelColumns+` FROM funnel WHERE sub_account_id = ? ORDER BY created_at DESC, id DESC`,
		scope.SubAccountID)
	if err != nil {
		return nil, fmt.Errorf("list funnels: %w", err)
	}
	defer rows.Close()

	out := make([]*Funnel, 0)
	for rows.Next() {
		f, err := scanFunnel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFunnel overwrites a funnel's details.
func (s *Service) UpdateFunnel(ctx context.Context, scope access.Scope, id string, in FunnelInput) (*Funnel, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	current, err := s.GetFunnel(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	sub := current.SubDomainName
	if in.SubDomainName != "" {
		if sub, err = normalizeSubdomain(in.SubDomainName); err != nil {
			return nil, err
		}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE funnel SET name = ?, description = ?, published = ?, sub_domain_name = ?, favicon = ?, updated_at = ?
		WHERE id = ?
	`, in.Name, in.Description, in.Published, sub, in.Favicon, sqlite.Now(), id)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrSubdomainTaken
	}
	if err != nil {
		return nil, fmt.Errorf("update funnel: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Updated funnel", entityFunnel, in.Name))
	return s.GetFunnel(ctx, scope, id)
}

// UpdateProducts replaces the funnel's live products, a JSON array.
func (s *Service) UpdateProducts(ctx context.Context, scope access.Scope, id, liveProducts string) (*Funnel, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	if !gjson.Valid(liveProducts) || !gjson.Parse(liveProducts).IsArray() {
		return nil, fmt.Errorf("%w: liveProducts must be a JSON array", ErrInvalidInput)
	}
	f, err := s.GetFunnel(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE funnel SET live_products = ?, updated_at = ? WHERE id = ?`, liveProducts, sqlite.Now(), id); err != nil {
		return nil, fmt.Errorf("update funnel products: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Updated funnel products", entityFunnel, f.Name))
	return s.GetFunnel(ctx, scope, id)
}

// DeleteFunnel removes a funnel with its pages.
func (s *Service) DeleteFunnel(ctx context.Context, scope access.Scope, id string) error {
	if !scope.Role.CanWrite() {
		return access.ErrForbidden
	}
	f, err := s.GetFunnel(ctx, scope, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM funnel WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete funnel: %w", err)
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Deleted funnel", entityFunnel, f.Name))
	return nil
}

func scanFunnel(row interface{ Scan(...any) error }) (*Funnel, error) {
	var (
		f                    Funnel
		createdAt, updatedAt string
	)
	if err := row.Scan(&f.ID, &f.SubAccountID, &f.Name, &f.Description, &f.Published, &f.SubDomainName,
		&f.Favicon, &f.LiveProducts, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	f.CreatedAt = sqlite.ParseTime(createdAt)
	f.UpdatedAt = sqlite.ParseTime(updatedAt)
	return &f, nil
}
