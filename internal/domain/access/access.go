// Package access implements the role matrix and per-sub-account permission
// checks shared by every tenant-scoped service.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Role is a user's role within an agency.
type Role string

const (
	RoleAgencyOwner     Role = "AGENCY_OWNER"
	RoleAgencyAdmin     Role = "AGENCY_ADMIN"
	RoleSubAccountUser  Role = "SUBACCOUNT_USER"
	RoleSubAccountGuest Role = "SUBACCOUNT_GUEST"
)

var (
	// ErrForbidden is returned when the caller's role does not allow an action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnknownRole is returned by ParseRole for values outside the role set.
	ErrUnknownRole = errors.New("unknown role")
)

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAgencyOwner, RoleAgencyAdmin, RoleSubAccountUser, RoleSubAccountGuest:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// IsAgencyRole reports whether r sees every sub-account of its agency.
func (r Role) IsAgencyRole() bool {
	return r == RoleAgencyOwner || r == RoleAgencyAdmin
}

// CanManageAgency covers sub-account create/delete, team, invitations and billing.
func (r Role) CanManageAgency() bool {
	return r.IsAgencyRole()
}

// CanDeleteAgency is reserved to the owner. Changing an owner's role is too.
func (r Role) CanDeleteAgency() bool {
	return r == RoleAgencyOwner
}

// CanWrite reports whether r may mutate content inside a sub-account.
func (r Role) CanWrite() bool {
	return r != RoleSubAccountGuest && r != ""
}

// Scope identifies the caller and the tenant an operation runs in.
// SubAccountID is empty for agency-level operations.
type Scope struct {
	AgencyID     string
	SubAccountID string
	UserID       string
	Role         Role
}

// Checker answers permission questions backed by the permission table.
type Checker struct {
	db *sql.DB
}

// NewChecker returns a Checker.
func NewChecker(db *sql.DB) *Checker {
	return &Checker{db: db}
}

// SubAccountInAgency returns sql.ErrNoRows when subAccountID does not belong to agencyID.
func (c *Checker) SubAccountInAgency(ctx context.Context, agencyID, subAccountID string) error {
	var one int
	return c.db.QueryRowContext(ctx,
		`SELECT 1 FROM sub_account WHERE id = ? AND agency_id = ?`, subAccountID, agencyID,
	).Scan(&one)
}

// CanAccessSubAccount reports whether the user may enter subAccountID.
// Agency roles always can; sub-account roles need a permission row with access granted.
func (c *Checker) CanAccessSubAccount(ctx context.Context, userID string, role Role, subAccountID string) (bool, error) {
	if role.IsAgencyRole() {
		return true, nil
	}
	var granted bool
	err := c.db.QueryRowContext(ctx, `
		SELECT access FROM permission WHERE user_id = ? AND sub_account_id = ?
	`, userID, subAccountID).Scan(&granted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load permission: %w", err)
	}
	return granted, nil
}

// Identity is the stored tenant and role of a user.
type Identity struct {
	AgencyID string
	Role     Role
}

// LookupUser returns the current agency and role of userID, or sql.ErrNoRows
// once the account is gone.
func (c *Checker) LookupUser(ctx context.Context, userID string) (Identity, error) {
	var agencyID, role string
	if err := c.db.QueryRowContext(ctx,
		`SELECT agency_id, role FROM user_account WHERE id = ?`, userID,
	).Scan(&agencyID, &role); err != nil {
		return Identity{}, err
	}
	r, err := ParseRole(role)
	if err != nil {
		return Identity{}, err
	}
	return Identity{AgencyID: agencyID, Role: r}, nil
}

// Filter is a SQL WHERE fragment plus its args.
type Filter struct {
	Where string
	Args  []any
}

// SubAccountFilter builds a filter restricting column (a sub_account_id
// column, e.g. "n.sub_account_id") to the sub-accounts the caller may see.
// Agency roles get an always-true filter.
func SubAccountFilter(s Scope, column string) Filter {
	if s.Role.IsAgencyRole() {
		return Filter{Where: "1 = 1"}
	}
	return Filter{
		Where: column + ` IN (SELECT sub_account_id FROM permission WHERE user_id = ? AND access = 1)`,
		Args:  []any{s.UserID},
	}
}

// And joins non-empty fragments with AND.
func And(fragments ...string) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f != "" {
			parts = append(parts, "("+f+")")
		}
	}
	return strings.Join(parts, " AND ")
}

// AccessibleSubAccounts returns the sub-account IDs a sub-account role user
// has been granted. Agency roles get all=true and no list.
func (c *Checker) AccessibleSubAccounts(ctx context.Context, userID string, role Role) (ids []string, all bool, err error) {
	if role.IsAgencyRole() {
		return nil, true, nil
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT sub_account_id FROM permission WHERE user_id = ? AND access = 1 ORDER BY sub_account_id
	`, userID)
	if err != nil {
		return nil, false, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, false, err
		}
		ids = append(ids, id)
	}
	return ids, false, rows.Err()
}
