// Package auth registers users and issues tokens. A registration either
// creates a new agency owned by the user or, when a pending invitation exists
// for the email, joins the inviting agency with the invited role.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	domainaudit "github.com/matiasleandrokruk/agencyhub/internal/domain/audit"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	pkgauth "github.com/matiasleandrokruk/agencyhub/pkg/auth"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// ErrInvalidCredentials is returned by Login when email or password is incorrect.
// A single error for both cases avoids leaking whether an email exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailAlreadyExists is returned by Register when the email is already taken.
var ErrEmailAlreadyExists = errors.New("email already registered")

// RegisterInput holds the data needed to create a user. AgencyName is used
// only when no pending invitation exists for Email.
type RegisterInput struct {
	Email      string
	Password   string
	Name       string
	AgencyName string
}

// LoginInput holds the credentials for authentication.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned after successful Register or Login.
//
//nolint:revive // auth.AuthResult reads fine at call sites
type AuthResult struct {
	Token    string
	UserID   string
	AgencyID string
	Role     access.Role
}

// AuthService defines the authentication business operations.
//
//nolint:revive // public interface of the auth module
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
}

type authService struct {
	db          *sql.DB
	auditLogger auditLogger
}

type auditLogger interface {
	LogWithDetails(
		ctx context.Context,
		agencyID string,
		actorID string,
		actorType domainaudit.ActorType,
		action string,
		entityType *string,
		entityID *string,
		details *domainaudit.EventDetails,
		outcome domainaudit.Outcome,
	) error
}

// NewAuthService creates a new AuthService backed by the provided DB.
func NewAuthService(db *sql.DB) AuthService {
	return &authService{db: db}
}

// NewAuthServiceWithAudit creates a new AuthService with audit logging.
func NewAuthServiceWithAudit(db *sql.DB, logger auditLogger) AuthService {
	return &authService{db: db, auditLogger: logger}
}

// Register creates the user and returns a JWT. Agency creation or invitation
// acceptance happens in the same transaction as the user insert.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	input.Email = normalizeEmail(input.Email)

	hash, err := pkgauth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	res, err := s.insertUser(ctx, input, hash)
	if err != nil {
		return nil, err
	}

	token, err := pkgauth.GenerateJWT(res.UserID, res.AgencyID, string(res.Role))
	if err != nil {
		s.logAuthFailure(ctx, res.AgencyID, res.UserID, "register", "jwt_generation_failed")
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	res.Token = token

	s.logAuthSuccess(ctx, res.AgencyID, res.UserID, "register")
	return res, nil
}

func (s *authService) insertUser(ctx context.Context, input RegisterInput, passwordHash string) (*AuthResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := sqlite.Now()
	res := &AuthResult{UserID: uuid.NewV7().String()}

	var invitationID, invitedRole string
	err = tx.QueryRowContext(ctx, `
		SELECT id, agency_id, role FROM invitation
		WHERE email = ? AND status = 'PENDING'
		ORDER BY created_at DESC LIMIT 1
	`, input.Email).Scan(&invitationID, &res.AgencyID, &invitedRole)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res.AgencyID = uuid.NewV7().String()
		res.Role = access.RoleAgencyOwner
		agencyName := strings.TrimSpace(input.AgencyName)
		if agencyName == "" {
			agencyName = input.Name + "'s Agency"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agency (id, name, company_email, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, res.AgencyID, agencyName, input.Email, now, now); err != nil {
			return nil, fmt.Errorf("failed to create agency: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up invitation: %w", err)
	default:
		role, err := access.ParseRole(invitedRole)
		if err != nil {
			return nil, err
		}
		res.Role = role
		if _, err := tx.ExecContext(ctx, `
			UPDATE invitation SET status = 'ACCEPTED', updated_at = ? WHERE id = ?
		`, now, invitationID); err != nil {
			return nil, fmt.Errorf("failed to accept invitation: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_account (id, agency_id, email, name, password_hash, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?)
	`, res.UserID, res.AgencyID, input.Email, input.Name, passwordHash, string(res.Role), now, now)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return res, nil
}

// Login verifies credentials and returns a JWT. Any failure yields
// ErrInvalidCredentials.
func (s *authService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	var (
		res          AuthResult
		role         string
		passwordHash sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, role, password_hash
		FROM user_account
		WHERE email = ? AND status = 'active'
		LIMIT 1
	`, normalizeEmail(input.Email)).Scan(&res.UserID, &res.AgencyID, &role, &passwordHash)
	if err != nil {
		s.logAuthFailure(ctx, "unknown", "unknown", "login", "user_not_found_or_query_error")
		return nil, ErrInvalidCredentials
	}
	res.Role = access.Role(role)

	// Invited users created out of band may have no password yet.
	if !passwordHash.Valid || passwordHash.String == "" {
		s.logAuthFailure(ctx, res.AgencyID, res.UserID, "login", "missing_password_hash")
		return nil, ErrInvalidCredentials
	}

	if !pkgauth.VerifyPassword(passwordHash.String, input.Password) {
		s.logAuthFailure(ctx, res.AgencyID, res.UserID, "login", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	token, err := pkgauth.GenerateJWT(res.UserID, res.AgencyID, role)
	if err != nil {
		s.logAuthFailure(ctx, res.AgencyID, res.UserID, "login", "jwt_generation_failed")
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	res.Token = token

	s.logAuthSuccess(ctx, res.AgencyID, res.UserID, "login")
	return &res, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) logAuthSuccess(ctx context.Context, agencyID, userID, action string) {
	if s.auditLogger == nil {
		return
	}
	_ = s.auditLogger.LogWithDetails(
		ctx,
		agencyID,
		userID,
		domainaudit.ActorTypeUser,
		action,
		nil,
		nil,
		nil,
		domainaudit.OutcomeSuccess,
	)
}

func (s *authService) logAuthFailure(ctx context.Context, agencyID, userID, action, reason string) {
	if s.auditLogger == nil {
		return
	}
	_ = s.auditLogger.LogWithDetails(
		ctx,
		agencyID,
		userID,
		domainaudit.ActorTypeUser,
		action,
		nil,
		nil,
		&domainaudit.EventDetails{Metadata: map[string]any{"reason": reason}},
		domainaudit.OutcomeError,
	)
}
