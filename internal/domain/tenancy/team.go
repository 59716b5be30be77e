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

// Member is a user of an agency with their sub-account permissions.
type Member struct {
	ID          string        `json:"id"`
	AgencyID    string        `json:"agencyId"`
	Email       string        `json:"email"`
	Name        string        `json:"name"`
	AvatarURL   string        `json:"avatarUrl"`
	Role        access.Role   `json:"role"`
	Status      string        `json:"status"`
	Permissions []*Permission `json:"permissions"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Permission is a member's access flag for one sub-account.
type Permission struct {
	SubAccountID   string `json:"subAccountId"`
	SubAccountName string `json:"subAccountName"`
	Access         bool   `json:"access"`
}

// TeamService manages the users of an agency.
type TeamService struct {
	db       *sql.DB
	notifier notification.Notifier
}

// NewTeamService returns a TeamService.
func NewTeamService(db *sql.DB, notifier notification.Notifier) *TeamService {
	return &TeamService{db: db, notifier: notifier}
}

// ListMembers returns every user of the agency, owners first.
func (s *TeamService) ListMembers(ctx context.Context, agencyID string) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agency_id, email, name, avatar_url, role, status, created_at
		FROM user_account WHERE agency_id = ?
		ORDER BY CASE role WHEN 'AGENCY_OWNER' THEN 0 WHEN 'AGENCY_ADMIN' THEN 1 ELSE 2 END, name, id
	`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members := make([]*Member, 0)
	byID := make(map[string]*Member)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		members = append(members, m)
		byID[m.ID] = m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	perms, err := s.db.QueryContext(ctx, `
		SELECT p.user_id, p.sub_account_id, sa.name, p.access
		FROM permission p
		JOIN sub_account sa ON sa.id = p.sub_account_id
		WHERE sa.agency_id = ?
		ORDER BY sa.name, sa.id
	`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer perms.Close()
	for perms.Next() {
		var (
			userID string
			p      Permission
		)
		if err := perms.Scan(&userID, &p.SubAccountID, &p.SubAccountName, &p.Access); err != nil {
			return nil, err
		}
		if m, ok := byID[userID]; ok {
			m.Permissions = append(m.Permissions, &p)
		}
	}
	return members, perms.Err()
}

// GetMember returns one user of the agency with permissions, or sql.ErrNoRows.
func (s *TeamService) GetMember(ctx context.Context, agencyID, userID string) (*Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, email, name, avatar_url, role, status, created_at
		FROM user_account WHERE id = ? AND agency_id = ?
	`, userID, agencyID)
	m, err := scanMember(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.sub_account_id, sa.name, p.access
		FROM permission p
		JOIN sub_account sa ON sa.id = p.sub_account_id
		WHERE p.user_id = ?
		ORDER BY sa.name, sa.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.SubAccountID, &p.SubAccountName, &p.Access); err != nil {
			return nil, err
		}
		m.Permissions = append(m.Permissions, &p)
	}
	return m, rows.Err()
}

// ChangeRole sets a member's role. Granting or taking away the owner role
// needs the caller to be an owner, and the agency always keeps one owner.
func (s *TeamService) ChangeRole(ctx context.Context, scope access.Scope, userID string, role access.Role) (*Member, error) {
	if !scope.Role.CanManageAgency() {
		return nil, access.ErrForbidden
	}
	target, err := s.GetMember(ctx, scope.AgencyID, userID)
	if err != nil {
		return nil, err
	}
	if (target.Role == access.RoleAgencyOwner || role == access.RoleAgencyOwner) && !scope.Role.CanDeleteAgency() {
		return nil, access.ErrForbidden
	}
	if target.Role == access.RoleAgencyOwner && role != access.RoleAgencyOwner {
		owners, err := s.countOwners(ctx, scope.AgencyID)
		if err != nil {
			return nil, err
		}
		if owners <= 1 {
			return nil, ErrOwnerProtected
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE user_account SET role = ?, updated_at = ? WHERE id = ?`, string(role), sqlite.Now(), userID); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(agencyScope(scope), "Updated role of", entityUser, target.Name))
	return s.GetMember(ctx, scope.AgencyID, userID)
}

// SetAccess grants or revokes a member's access to a sub-account of the agency.
func (s *TeamService) SetAccess(ctx context.Context, scope access.Scope, userID, subAccountID string, granted bool) (*Member, error) {
	if !scope.Role.CanManageAgency() {
		return nil, access.ErrForbidden
	}
	target, err := s.GetMember(ctx, scope.AgencyID, userID)
	if err != nil {
		return nil, err
	}
	if err := access.NewChecker(s.db).SubAccountInAgency(ctx, scope.AgencyID, subAccountID); err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO permission (id, user_id, sub_account_id, access) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, sub_account_id) DO UPDATE SET access = excluded.access
	`, uuid.NewV7().String(), userID, subAccountID, granted); err != nil {
		return nil, fmt.Errorf("upsert permission: %w", err)
	}

	evtScope := scope
	evtScope.SubAccountID = subAccountID
	s.notifier.Notify(ctx, notification.NewEvent(evtScope, "Updated access of", entityUser, target.Name))
	return s.GetMember(ctx, scope.AgencyID, userID)
}

// RemoveMember deletes a user from the agency. The owner cannot be removed.
func (s *TeamService) RemoveMember(ctx context.Context, scope access.Scope, userID string) error {
	if !scope.Role.CanManageAgency() {
		return access.ErrForbidden
	}
	target, err := s.GetMember(ctx, scope.AgencyID, userID)
	if err != nil {
		return err
	}
	if target.Role == access.RoleAgencyOwner {
		return ErrOwnerProtected
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_account WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(agencyScope(scope), "Removed a team member", entityUser, target.Name))
	return nil
}

// UpdateProfile changes the caller's own name and avatar.
func (s *TeamService) UpdateProfile(ctx context.Context, scope access.Scope, name, avatarURL string) (*Member, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_account SET name = ?, avatar_url = ?, updated_at = ? WHERE id = ? AND agency_id = ?
	`, name, avatarURL, sqlite.Now(), scope.UserID, scope.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}
	s.notifier.Notify(ctx, notification.NewEvent(agencyScope(scope), "Updated user details", entityUser, name))
	return s.GetMember(ctx, scope.AgencyID, scope.UserID)
}

func (s *TeamService) countOwners(ctx context.Context, agencyID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_account WHERE agency_id = ? AND role = ?`, agencyID, string(access.RoleAgencyOwner)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

func scanMember(row interface{ Scan(...any) error }) (*Member, error) {
	var (
		m         Member
		role      string
		createdAt string
	)
	if err := row.Scan(&m.ID, &m.AgencyID, &m.Email, &m.Name, &m.AvatarURL, &role, &m.Status, &createdAt); err != nil {
		return nil, err
	}
	m.Role = access.Role(role)
	m.CreatedAt = sqlite.ParseTime(createdAt)
	m.Permissions = make([]*Permission, 0)
	return &m, nil
}
