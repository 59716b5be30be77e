package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// defaultSubAccountGoal is the revenue goal of a new sub-account.
const defaultSubAccountGoal = 5000

// SubAccount is a client workspace inside an agency.
type SubAccount struct {
	ID               string    `json:"id"`
	AgencyID         string    `json:"agencyId"`
	Name             string    `json:"name"`
	CompanyEmail     string    `json:"companyEmail"`
	CompanyPhone     string    `json:"companyPhone"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	ZipCode          string    `json:"zipCode"`
	State            string    `json:"state"`
	Country          string    `json:"country"`
	SubAccountLogo   string    `json:"subAccountLogo"`
	Goal             int       `json:"goal"`
	ConnectAccountID *string   `json:"connectAccountId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// SubAccountInput carries every sub-account detail. Goal 0 keeps the default.
type SubAccountInput struct {
	Name             string
	CompanyEmail     string
	CompanyPhone     string
	Address          string
	City             string
	ZipCode          string
	State            string
	Country          string
	SubAccountLogo   string
	Goal             int
	ConnectAccountID *string
}

// Quota reports how many sub-accounts an agency may own. 0 means unlimited.
type Quota interface {
	MaxSubAccounts(ctx context.Context, agencyID string) (int, error)
}

// SubAccountService manages sub-accounts.
type SubAccountService struct {
	db       *sql.DB
	quota    Quota
	notifier notification.Notifier
}

// NewSubAccountService returns a SubAccountService. A nil quota means unlimited.
func NewSubAccountService(db *sql.DB, quota Quota, notifier notification.Notifier) *SubAccountService {
	return &SubAccountService{db: db, quota: quota, notifier: notifier}
}

const subAccountColumns = `id, agency_id, name, company_email, company_phone, address, city, zip_code,
	state, country, sub_account_logo, goal, connect_account_id, created_at, updated_at`

// Create adds a sub-account and grants the creator access to it.
func (s *SubAccountService) Create(ctx context.Context, scope access.Scope, in SubAccountInput) (*SubAccount, error) {
	if !scope.Role.CanManageAgency() {
		return nil, access.ErrForbidden
	}
	limit, err := s.quotaLimit(ctx, scope.AgencyID)
	if err != nil {
		return nil, err
	}
	if in.Goal <= 0 {
		in.Goal = defaultSubAccountGoal
	}

	id := uuid.NewV7().String()
	now := sqlite.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := checkQuota(ctx, tx, scope.AgencyID, limit); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sub_account (id, agency_id, name, company_email, company_phone, address, city,
			zip_code, state, country, sub_account_logo, goal, connect_account_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, scope.AgencyID, in.Name, in.CompanyEmail, in.CompanyPhone, in.Address, in.City, in.ZipCode,
		in.State, in.Country, in.SubAccountLogo, in.Goal, in.ConnectAccountID, now, now); err != nil {
		return nil, fmt.Errorf("insert sub_account: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO permission (id, user_id, sub_account_id, access) VALUES (?, ?, ?, 1)
	`, uuid.NewV7().String(), scope.UserID, id); err != nil {
		return nil, fmt.Errorf("grant creator access: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	evtScope := scope
	evtScope.SubAccountID = id
	s.notifier.Notify(ctx, notification.NewEvent(evtScope, "Created a subaccount", entitySubAccount, in.Name))
	return s.Get(ctx, scope, id)
}

// quotaLimit returns the agency's sub-account limit. 0 means unlimited.
func (s *SubAccountService) quotaLimit(ctx context.Context, agencyID string) (int, error) {
	if s.quota == nil {
		return 0, nil
	}
	limit, err := s.quota.MaxSubAccounts(ctx, agencyID)
	if err != nil {
		return 0, fmt.Errorf("load quota: %w", err)
	}
	return limit, nil
}

// checkQuota must run inside the insert transaction. SQLite will not upgrade a
// stale read snapshot to a write, so a concurrent create cannot pass the same count.
func checkQuota(ctx context.Context, tx *sql.Tx, agencyID string, limit int) error {
	if limit == 0 {
		return nil
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sub_account WHERE agency_id = ?`, agencyID).Scan(&count); err != nil {
		return fmt.Errorf("count sub_accounts: %w", err)
	}
	if count >= limit {
		return fmt.Errorf("%w: plan allows %d", ErrQuotaExceeded, limit)
	}
	return nil
}

// Get returns a sub-account the caller may access, or sql.ErrNoRows.
func (s *SubAccountService) Get(ctx context.Context, scope access.Scope, id string) (*SubAccount, error) {
	f := access.SubAccountFilter(scope, "id")
	args := append([]any{id, scope.AgencyID}, f.Args...)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subAccountColumns+` FROM sub_account WHERE `+access.And("id = ?", "agency_id = ?", f.Where), args...)
	return scanSubAccount(row)
}

// List returns the sub-accounts visible to the caller, ordered by name.
func (s *SubAccountService) List(ctx context.Context, scope access.Scope, limit, offset int) ([]*SubAccount, int, error) {
	f := access.SubAccountFilter(scope, "id")
	where := access.And("agency_id = ?", f.Where)
	args := append([]any{scope.AgencyID}, f.Args...)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sub_account WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sub_accounts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subAccountColumns+` FROM sub_account WHERE `+where+` ORDER BY name, id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sub_accounts: %w", err)
	}
	defer rows.Close()

	out := make([]*SubAccount, 0)
	for rows.Next() {
		sa, err := scanSubAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sa)
	}
	return out, total, rows.Err()
}

// Update overwrites a sub-account's details. Owner and admin only.
func (s *SubAccountService) Update(ctx context.Context, scope access.Scope, id string, in SubAccountInput) (*SubAccount, error) {
	if !scope.Role.CanManageAgency() {
		return nil, access.ErrForbidden
	}
	if in.Goal <= 0 {
		in.Goal = defaultSubAccountGoal
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sub_account SET name = ?, company_email = ?, company_phone = ?, address = ?, city = ?,
			zip_code = ?, state = ?, country = ?, sub_account_logo = ?, goal = ?, connect_account_id = ?,
			updated_at = ?
		WHERE id = ? AND agency_id = ?
	`, in.Name, in.CompanyEmail, in.CompanyPhone, in.Address, in.City, in.ZipCode, in.State, in.Country,
		in.SubAccountLogo, in.Goal, in.ConnectAccountID, sqlite.Now(), id, scope.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("update sub_account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}

	evtScope := scope
	evtScope.SubAccountID = id
	s.notifier.Notify(ctx, notification.NewEvent(evtScope, "Updated subaccount", entitySubAccount, in.Name))
	return s.Get(ctx, scope, id)
}

// Delete removes a sub-account and all of its content.
func (s *SubAccountService) Delete(ctx context.Context, scope access.Scope, id string) error {
	if !scope.Role.CanManageAgency() {
		return access.ErrForbidden
	}
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sub_account WHERE id = ? AND agency_id = ?`, id, scope.AgencyID).Scan(&name)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sub_account WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete sub_account: %w", err)
	}

	// The sub-account row is gone, so the event is recorded at agency level.
	s.notifier.Notify(ctx, notification.NewEvent(agencyScope(scope), "Deleted a subaccount", entitySubAccount, name))
	return nil
}

func scanSubAccount(row interface{ Scan(...any) error }) (*SubAccount, error) {
	var (
		sa                   SubAccount
		createdAt, updatedAt string
	)
	if err := row.Scan(&sa.ID, &sa.AgencyID, &sa.Name, &sa.CompanyEmail, &sa.CompanyPhone, &sa.Address,
		&sa.City, &sa.ZipCode, &sa.State, &sa.Country, &sa.SubAccountLogo, &sa.Goal, &sa.ConnectAccountID,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sa.CreatedAt = sqlite.ParseTime(createdAt)
	sa.UpdatedAt = sqlite.ParseTime(updatedAt)
	return &sa, nil
}
