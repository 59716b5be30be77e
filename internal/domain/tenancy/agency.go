package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
)

// Agency is the top-level tenant.
type Agency struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	CompanyEmail     string    `json:"companyEmail"`
	CompanyPhone     string    `json:"companyPhone"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	ZipCode          string    `json:"zipCode"`
	State            string    `json:"state"`
	Country          string    `json:"country"`
	AgencyLogo       string    `json:"agencyLogo"`
	WhiteLabel       bool      `json:"whiteLabel"`
	Goal             int       `json:"goal"`
	CustomerID       *string   `json:"customerId,omitempty"`
	ConnectAccountID *string   `json:"connectAccountId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// UpdateAgencyInput carries the full set of editable agency details.
type UpdateAgencyInput struct {
	Name             string
	CompanyEmail     string
	CompanyPhone     string
	Address          string
	City             string
	ZipCode          string
	State            string
	Country          string
	AgencyLogo       string
	WhiteLabel       bool
	Goal             int
	ConnectAccountID *string
}

// AgencyService reads and edits the caller's agency.
type AgencyService struct {
	db       *sql.DB
	notifier notification.Notifier
}

// NewAgencyService returns an AgencyService.
func NewAgencyService(db *sql.DB, notifier notification.Notifier) *AgencyService {
	return &AgencyService{db: db, notifier: notifier}
}

const agencyColumns = `id, name, company_email, company_phone, address, city, zip_code, state,
	country, agency_logo, white_label, goal, customer_id, connect_account_id, created_at, updated_at`

// Get returns the agency, or sql.ErrNoRows.
func (s *AgencyService) Get(ctx context.Context, agencyID string) (*Agency, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agencyColumns+` FROM agency WHERE id = ?`, agencyID)
	return scanAgency(row)
}

// Update overwrites the agency details. Owner and admin only.
func (s *AgencyService) Update(ctx context.Context, scope access.Scope, in UpdateAgencyInput) (*Agency, error) {
	if !scope.Role.CanManageAgency() {
		return nil, access.ErrForbidden
	}
	if in.Goal < 1 {
		in.Goal = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE agency SET name = ?, company_email = ?, company_phone = ?, address = ?, city = ?,
			zip_code = ?, state = ?, country = ?, agency_logo = ?, white_label = ?, goal = ?,
			connect_account_id = ?, updated_at = ?
		WHERE id = ?
	`, in.Name, in.CompanyEmail, in.CompanyPhone, in.Address, in.City, in.ZipCode, in.State,
		in.Country, in.AgencyLogo, in.WhiteLabel, in.Goal, in.ConnectAccountID, sqlite.Now(), scope.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("update agency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}

	s.notifier.Notify(ctx, notification.NewEvent(agencyScope(scope), "Updated agency details", entityAgency, in.Name))
	return s.Get(ctx, scope.AgencyID)
}

// Delete removes the agency and everything it owns. Owner only.
func (s *AgencyService) Delete(ctx context.Context, scope access.Scope) error {
	if !scope.Role.CanDeleteAgency() {
		return access.ErrForbidden
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM agency WHERE id = ?`, scope.AgencyID)
	if err != nil {
		return fmt.Errorf("delete agency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanAgency(row interface{ Scan(...any) error }) (*Agency, error) {
	var (
		a                    Agency
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.CompanyEmail, &a.CompanyPhone, &a.Address, &a.City,
		&a.ZipCode, &a.State, &a.Country, &a.AgencyLogo, &a.WhiteLabel, &a.Goal, &a.CustomerID,
		&a.ConnectAccountID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = sqlite.ParseTime(createdAt)
	a.UpdatedAt = sqlite.ParseTime(updatedAt)
	return &a, nil
}

// agencyScope drops any sub-account from s so the event is agency-level.
func agencyScope(s access.Scope) access.Scope {
	s.SubAccountID = ""
	return s
}
