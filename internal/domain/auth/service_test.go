// Tests run against in-memory SQLite with real migrations.
package auth_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	domainaudit "github.com/matiasleandrokruk/agencyhub/internal/domain/audit"
	domainauth "github.com/matiasleandrokruk/agencyhub/internal/domain/auth"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite/sqlitetest"
	"github.com/matiasleandrokruk/agencyhub/pkg/auth"
)

// TestMain sets JWT_SECRET before any test runs; GenerateJWT panics without it.
func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!") //nolint:errcheck
	os.Exit(m.Run())
}

// ===== REGISTER TESTS =====

func TestAuthService_Register_Success(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)

	result, err := svc.Register(context.Background(), domainauth.RegisterInput{
		Email:      "alice@acme.com",
		Password:   "SecurePass123!",
		Name:       "Alice",
		AgencyName: "Acme Corp",
	})
	if err != nil {
		t.Fatalf("Register() error = %v; want nil", err)
	}

	if result.Token == "" {
		t.Error("Register() Token is empty; want JWT token")
	}
	if result.UserID == "" || result.AgencyID == "" {
		t.Errorf("Register() ids = %+v; want non-empty", result)
	}
	if result.Role != access.RoleAgencyOwner {
		t.Errorf("Register() Role = %s; want AGENCY_OWNER", result.Role)
	}
}

func TestAuthService_Register_TokenIsValid(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)

	result, err := svc.Register(context.Background(), domainauth.RegisterInput{
		Email:      "bob@acme.com",
		Password:   "SecurePass123!",
		Name:       "Bob",
		AgencyName: "Acme Corp",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	claims, err := auth.ParseJWT(result.Token)
	if err != nil {
		t.Fatalf("Returned token is not a valid JWT: %v", err)
	}
	if claims.UserID != result.UserID {
		t.Errorf("JWT UserID = %q; want %q", claims.UserID, result.UserID)
	}
	if claims.AgencyID != result.AgencyID {
		t.Errorf("JWT AgencyID = %q; want %q", claims.AgencyID, result.AgencyID)
	}
	if claims.Role != string(access.RoleAgencyOwner) {
		t.Errorf("JWT Role = %q; want AGENCY_OWNER", claims.Role)
	}
}

func TestAuthService_Register_UserPersistedInDB(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)

	result, err := svc.Register(context.Background(), domainauth.RegisterInput{
		Email:      " Carol@Acme.com ",
		Password:   "SecurePass123!",
		Name:       "Carol",
		AgencyName: "Acme Corp",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var email, name, status, role string
	var passwordHash sql.NullString
	err = db.QueryRow(`
		SELECT email, name, status, role, password_hash
		FROM user_account WHERE id = ?
	`, result.UserID).Scan(&email, &name, &status, &role, &passwordHash)
	if err != nil {
		t.Fatalf("User not found in DB after Register: %v", err)
	}

	if email != "carol@acme.com" {
		t.Errorf("email = %q; want normalized %q", email, "carol@acme.com")
	}
	if name != "Carol" || status != "active" || role != "AGENCY_OWNER" {
		t.Errorf("user row = name %q status %q role %q", name, status, role)
	}
	if !passwordHash.Valid || passwordHash.String == "" || passwordHash.String == "SecurePass123!" {
		t.Error("password_hash missing or stored in plaintext")
	}
}

func TestAuthService_Register_AgencyCreated(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)

	result, err := svc.Register(context.Background(), domainauth.RegisterInput{
		Email:      "dave@example.com",
		Password:   "SecurePass123!",
		Name:       "Dave",
		AgencyName: "Example LLC",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var name, companyEmail string
	err = db.QueryRow(`SELECT name, company_email FROM agency WHERE id = ?`, result.AgencyID).Scan(&name, &companyEmail)
	if err != nil {
		t.Fatalf("Agency not found in DB after Register: %v", err)
	}
	if name != "Example LLC" || companyEmail != "dave@example.com" {
		t.Errorf("agency = %q / %q", name, companyEmail)
	}
}

func TestAuthService_Register_DefaultAgencyName(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)

	result, err := svc.Register(context.Background(), domainauth.RegisterInput{
		Email: "erin@example.com", Password: "SecurePass123!", Name: "Erin",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	var name string
	if err := db.QueryRow(`SELECT name FROM agency WHERE id = ?`, result.AgencyID).Scan(&name); err != nil {
		t.Fatalf("load agency: %v", err)
	}
	if name != "Erin's Agency" {
		t.Errorf("agency name = %q; want %q", name, "Erin's Agency")
	}
}

func TestAuthService_Register_AcceptsPendingInvitation(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)
	agencyID := sqlitetest.Agency(t, db, "Inviting Agency")

	now := sqlite.Now()
	if _, err := db.Exec(`
		INSERT INTO invitation (id, agency_id, email, role, status, created_at, updated_at)
		VALUES ('inv-1', ?, 'frank@example.com', 'SUBACCOUNT_USER', 'PENDING', ?, ?)
	`, agencyID, now, now); err != nil {
		t.Fatalf("seed invitation: %v", err)
	}

	result, err := svc.Register(context.Background(), domainauth.RegisterInput{
		Email: "frank@example.com", Password: "SecurePass123!", Name: "Frank", AgencyName: "Ignored",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if result.AgencyID != agencyID || result.Role != access.RoleSubAccountUser {
		t.Errorf("Register() = agency %q role %s; want invited agency and SUBACCOUNT_USER", result.AgencyID, result.Role)
	}

	var status string
	if err := db.QueryRow(`SELECT status FROM invitation WHERE id = 'inv-1'`).Scan(&status); err != nil {
		t.Fatalf("load invitation: %v", err)
	}
	if status != "ACCEPTED" {
		t.Errorf("invitation status = %q; want ACCEPTED", status)
	}
	if n := sqlitetest.Count(t, db, "agency", "name = 'Ignored'"); n != 0 {
		t.Errorf("an agency was created for an invited user")
	}
}

func TestAuthService_Register_DuplicateEmailRollsBack(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)

	input := domainauth.RegisterInput{
		Email:      "dup@acme.com",
		Password:   "SecurePass123!",
		Name:       "Dup",
		AgencyName: "Acme Corp",
	}
	if _, err := svc.Register(context.Background(), input); err != nil {
		t.Fatalf("First Register() error = %v; want nil", err)
	}

	_, err := svc.Register(context.Background(), input)
	if !errors.Is(err, domainauth.ErrEmailAlreadyExists) {
		t.Fatalf("Register() duplicate error = %v; want ErrEmailAlreadyExists", err)
	}
	if n := sqlitetest.Count(t, db, "agency", ""); n != 1 {
		t.Errorf("agency rows = %d; want 1 (second agency rolled back)", n)
	}
}

// ===== LOGIN TESTS =====

func TestAuthService_Login_Success(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)

	reg, err := svc.Register(context.Background(), domainauth.RegisterInput{
		Email: "eve@acme.com", Password: "SecurePass123!", Name: "Eve", AgencyName: "Acme Corp",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := svc.Login(context.Background(), domainauth.LoginInput{
		Email: "EVE@acme.com", Password: "SecurePass123!",
	})
	if err != nil {
		t.Fatalf("Login() error = %v; want nil", err)
	}
	if result.UserID != reg.UserID || result.AgencyID != reg.AgencyID || result.Role != access.RoleAgencyOwner {
		t.Errorf("Login() = %+v; want ids of registered user", result)
	}

	claims, err := auth.ParseJWT(result.Token)
	if err != nil {
		t.Fatalf("Login token invalid: %v", err)
	}
	if claims.AgencyID != reg.AgencyID {
		t.Errorf("JWT AgencyID = %q; want %q", claims.AgencyID, reg.AgencyID)
	}
}

func TestAuthService_Login_ErrorMessageGeneric(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)

	svc.Register(context.Background(), domainauth.RegisterInput{ //nolint:errcheck
		Email: "hank@acme.com", Password: "SecurePass123!", Name: "Hank", AgencyName: "Acme Corp",
	})

	_, errWrongPw := svc.Login(context.Background(), domainauth.LoginInput{
		Email: "hank@acme.com", Password: "WrongPassword!",
	})
	_, errNoUser := svc.Login(context.Background(), domainauth.LoginInput{
		Email: "nosuchuser@acme.com", Password: "SecurePass123!",
	})

	if !errors.Is(errWrongPw, domainauth.ErrInvalidCredentials) || !errors.Is(errNoUser, domainauth.ErrInvalidCredentials) {
		t.Fatalf("errors = %v / %v; want ErrInvalidCredentials for both", errWrongPw, errNoUser)
	}
}

func TestAuthService_Login_NoPasswordHash(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthService(db)
	agencyID := sqlitetest.Agency(t, db, "Acme")
	userID := sqlitetest.User(t, db, agencyID, "No Password", "AGENCY_ADMIN")

	var email string
	if err := db.QueryRow(`SELECT email FROM user_account WHERE id = ?`, userID).Scan(&email); err != nil {
		t.Fatalf("load email: %v", err)
	}
	_, err := svc.Login(context.Background(), domainauth.LoginInput{Email: email, Password: ""})
	if !errors.Is(err, domainauth.ErrInvalidCredentials) {
		t.Errorf("Login() error = %v; want ErrInvalidCredentials", err)
	}
}

func TestAuthService_AuditTrail(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := domainauth.NewAuthServiceWithAudit(db, domainaudit.NewAuditService(db))
	ctx := context.Background()

	reg, err := svc.Register(ctx, domainauth.RegisterInput{
		Email: "ivy@acme.com", Password: "SecurePass123!", Name: "Ivy", AgencyName: "Acme",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	svc.Login(ctx, domainauth.LoginInput{Email: "ivy@acme.com", Password: "nope"}) //nolint:errcheck

	if n := sqlitetest.Count(t, db, "audit_event", "agency_id = ? AND action = 'register' AND outcome = 'success'", reg.AgencyID); n != 1 {
		t.Errorf("register success audit rows = %d; want 1", n)
	}
	if n := sqlitetest.Count(t, db, "audit_event", "agency_id = ? AND action = 'login' AND outcome = 'error'", reg.AgencyID); n != 1 {
		t.Errorf("login failure audit rows = %d; want 1", n)
	}
}
