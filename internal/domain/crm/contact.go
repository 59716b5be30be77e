// Package crm provides the customer records of a sub-account: contacts and
// the media library.
package crm

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

// ErrContactExists is returned when the email is already a contact of the sub-account.
var ErrContactExists = errors.New("contact email already exists")

const entityContact = "contact"

// Contact is a customer of a sub-account. TicketValue sums the value of the
// tickets the contact is the customer of.
type Contact struct {
	ID           string    `json:"id"`
	SubAccountID string    `json:"subAccountId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	TicketValue  float64   `json:"ticketValue"`
	TicketCount  int       `json:"ticketCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ContactInput defines the editable contact fields.
type ContactInput struct {
	Name  string
	Email string
}

// ListContactsInput filters by a case-insensitive substring of name or
// email (Query) and paginates.
type ListContactsInput struct {
	Query  string
	Limit  int
	Offset int
}

// ContactService provides contact operations scoped to a sub-account.
type ContactService struct {
	db       *sql.DB
	notifier notification.Notifier
}

// NewContactService creates a ContactService instance.
func NewContactService(db *sql.DB, notifier notification.Notifier) *ContactService {
	return &ContactService{db: db, notifier: notifier}
}

const contactSelect = `
	SELECT c.id, c.sub_account_id, c.name, c.email,
		COALESCE(SUM(t.value), 0), COUNT(t.id), c.created_at, c.updated_at
	FROM contact c
	LEFT JOIN ticket t ON t.customer_id = c.id`

// Create inserts a new contact.
func (s *ContactService) Create(ctx context.Context, scope access.Scope, input ContactInput) (*Contact, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	id := uuid.NewV7().String()
	now := sqlite.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact (id, sub_account_id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
	`, id, scope.SubAccountID, input.Name, normalizeEmail(input.Email), now, now)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrContactExists
	}
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Created a contact", entityContact, input.Name))
	return s.Get(ctx, scope, id)
}

// Get retrieves a contact by ID, or sql.ErrNoRows.
func (s *ContactService) Get(ctx context.Context, scope access.Scope, contactID string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx, contactSelect+`
		WHERE c.id = ? AND c.sub_account_id = ?
		GROUP BY c.id
	`, contactID, scope.SubAccountID)
	return scanContact(row)
}

// List retrieves contacts of the sub-account by name with pagination.
func (s *ContactService) List(ctx context.Context, scope access.Scope, input ListContactsInput) ([]*Contact, int, error) {
	where := `c.sub_account_id = ?`
	args := []any{scope.SubAccountID}
	if q := strings.TrimSpace(input.Query); q != "" {
		where += ` AND (c.name LIKE ? ESCAPE '\' OR c.email LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact c WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, contactSelect+`
		WHERE `+where+`
		GROUP BY c.id
		ORDER BY c.name, c.id
		LIMIT ? OFFSET ?
	`, append(args, input.Limit, input.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]*Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, c)
	}
	return contacts, total, rows.Err()
}

// Update modifies a contact.
func (s *ContactService) Update(ctx context.Context, scope access.Scope, contactID string, input ContactInput) (*Contact, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE contact SET name = ?, email = ?, updated_at = ? WHERE id = ? AND sub_account_id = ?
	`, input.Name, normalizeEmail(input.Email), sqlite.Now(), contactID, scope.SubAccountID)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrContactExists
	}
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}

	s.notifier.Notify(ctx, notification.NewEvent(scope, "Updated a contact", entityContact, input.Name))
	return s.Get(ctx, scope, contactID)
}

// Delete removes a contact. Tickets keep existing without a customer.
func (s *ContactService) Delete(ctx context.Context, scope access.Scope, contactID string) error {
	if !scope.Role.CanWrite() {
		return access.ErrForbidden
	}
	c, err := s.Get(ctx, scope, contactID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contact WHERE id = ?`, contactID); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	s.notifier.Notify(ctx, notification.NewEvent(scope, "Deleted a contact", entityContact, c.Name))
	return nil
}

func scanContact(row interface{ Scan(...any) error }) (*Contact, error) {
	var (
		c                    Contact
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.SubAccountID, &c.Name, &c.Email, &c.TicketValue, &c.TicketCount,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = sqlite.ParseTime(createdAt)
	c.UpdatedAt = sqlite.ParseTime(updatedAt)
	return &c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
