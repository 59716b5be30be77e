package tenancy

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/mailer"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// Invitation statuses.
const (
	InvitationPending  = "PENDING"
	InvitationAccepted = "ACCEPTED"
	InvitationRevoked  = "REVOKED"
)

// Invitation invites an email address to join an agency with a role.
type Invitation struct {
	ID        string      `json:"id"`
	AgencyID  string      `json:"agencyId"`
	Email     string      `json:"email"`
	Role      access.Role `json:"role"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

var inviteTemplate = template.Must(template.New("invite").Parse(
	`<p>You have been invited to join <strong>{{.Agency}}</strong> as {{.Role}}.</p>` +
		`<p><a href="{{.Link}}">Accept the invitation</a> by signing up with {{.Email}}.</p>`))

// InvitationService creates and revokes invitations and mails invitees.
type InvitationService struct {
	db         *sql.DB
	mailer     mailer.Mailer
	notifier   notification.Notifier
	logger     *zap.Logger
	appBaseURL string
}

// NewInvitationService returns an InvitationService. appBaseURL prefixes the
// sign-up link in invitation mails.
func NewInvitationService(db *sql.DB, m mailer.Mailer, notifier notification.Notifier, logger *zap.Logger, appBaseURL string) *InvitationService {
	return &InvitationService{
		db:         db,
		mailer:     m,
		notifier:   notifier,
		logger:     logger,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
	}
}

// Create records a pending invitation and sends the invitation mail.
// A mail failure is logged and does not fail the call.
func (s *InvitationService) Create(ctx context.Context, scope access.Scope, email string, role access.Role) (*Invitation, error) {
	if !scope.Role.CanManageAgency() {
		return nil, access.ErrForbidden
	}
	if role == access.RoleAgencyOwner {
		return nil, access.ErrForbidden
	}
	email = strings.ToLower(strings.TrimSpace(email))

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM user_account WHERE email = ?`, email).Scan(&exists)
	if err == nil {
		return nil, ErrAlreadyMember
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check user: %w", err)
	}

	now := sqlite.Now()
	inv := &Invitation{
		ID:        uuid.NewV7().String(),
		AgencyID:  scope.AgencyID,
		Email:     email,
		Role:      role,
		Status:    InvitationPending,
		CreatedAt: sqlite.ParseTime(now),
		UpdatedAt: sqlite.ParseTime(now),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invitation (id, agency_id, email, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.AgencyID, inv.Email, string(inv.Role), inv.Status, now, now)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}

	s.sendInvite(ctx, inv)
	s.notifier.Notify(ctx, notification.NewEvent(agencyScope(scope), "Invited", entityInvitation, email))
	return inv, nil
}

func (s *InvitationService) sendInvite(ctx context.Context, inv *Invitation) {
	var agencyName string
	if err := s.db.QueryRowContext(ctx, `SELECT name FROM agency WHERE id = ?`, inv.AgencyID).Scan(&agencyName); err != nil {
		s.logger.Warn("invitation mail skipped", zap.String("invitation_id", inv.ID), zap.Error(err))
		return
	}

	var body bytes.Buffer
	err := inviteTemplate.Execute(&body, map[string]string{
		"Agency": agencyName,
		"Role":   string(inv.Role),
		"Email":  inv.Email,
		"Link":   s.appBaseURL + "/sign-up?email=" + template.URLQueryEscaper(inv.Email),
	})
	if err != nil {
		s.logger.Error("render invitation mail", zap.Error(err))
		return
	}

	msg := mailer.Message{To: inv.Email, Subject: "You're invited to " + agencyName, HTML: body.String()}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("invitation mail failed",
			zap.String("invitation_id", inv.ID),
			zap.String("email", inv.Email),
			zap.Error(err),
		)
	}
}

// List returns the agency's invitations, newest first. An empty status lists all.
func (s *InvitationService) List(ctx context.Context, agencyID, status string) ([]*Invitation, error) {
	q := `SELECT id, agency_id, email, role, status, created_at, updated_at FROM invitation WHERE agency_id = ?`
	args := []any{agencyID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	out := make([]*Invitation, 0)
	for rows.Next() {
		var (
			inv                  Invitation
			role                 string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&inv.ID, &inv.AgencyID, &inv.Email, &role, &inv.Status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		inv.Role = access.Role(role)
		inv.CreatedAt = sqlite.ParseTime(createdAt)
		inv.UpdatedAt = sqlite.ParseTime(updatedAt)
		out = append(out, &inv)
	}
	return out, rows.Err()
}

// Revoke cancels a pending invitation.
func (s *InvitationService) Revoke(ctx context.Context, scope access.Scope, id string) error {
	if !scope.Role.CanManageAgency() {
		return access.ErrForbidden
	}
	var email, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT email, status FROM invitation WHERE id = ? AND agency_id = ?`, id, scope.AgencyID).Scan(&email, &status)
	if err != nil {
		return err
	}
	if status != InvitationPending {
		return ErrNotPending
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE invitation SET status = ?, updated_at = ? WHERE id = ?`, InvitationRevoked, sqlite.Now(), id); err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}

	s.notifier.Notify(ctx, notification.NewEvent(agencyScope(scope), "Revoked invitation", entityInvitation, email))
	return nil
}
