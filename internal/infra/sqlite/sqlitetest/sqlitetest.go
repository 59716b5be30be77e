// Package sqlitetest provides migrated in-memory databases and tenant
// fixtures for tests.
package sqlitetest

import (
	"database/sql"
	"testing"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

// Open returns a migrated in-memory database closed at test cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sqlite.NewDB(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("sqlite.NewDB: %v", err)
	}
	if err := sqlite.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("sqlite.MigrateUp: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Agency inserts an agency and returns its ID.
func Agency(t testing.TB, db *sql.DB, name string) string {
	t.Helper()
	id := uuid.NewV7().String()
	now := sqlite.Now()
	if _, err := db.Exec(`
		INSERT INTO agency (id, name, company_email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, "hello@"+uuid.Short(6)+".example.com", now, now); err != nil {
		t.Fatalf("insert agency: %v", err)
	}
	return id
}

// User inserts a user with role into agencyID and returns its ID.
// The user has no password and cannot log in.
func User(t testing.TB, db *sql.DB, agencyID, name, role string) string {
	t.Helper()
	id := uuid.NewV7().String()
	now := sqlite.Now()
	if _, err := db.Exec(`
		INSERT INTO user_account (id, agency_id, email, name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, agencyID, uuid.Short(12)+"@example.com", name, role, now, now); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

// SubAccount inserts a fully populated sub-account and returns its ID.
func SubAccount(t testing.TB, db *sql.DB, agencyID, name string) string {
	t.Helper()
	id := uuid.NewV7().String()
	now := sqlite.Now()
	if _, err := db.Exec(`
		INSERT INTO sub_account (id, agency_id, name, company_email, company_phone, address, city,
			zip_code, state, country, sub_account_logo, created_at, updated_at)
		VALUES (?, ?, ?, 'client@example.com', '+1 555 0100', '1 Main St', 'Springfield',
			'12345', 'IL', 'US', 'https://cdn.example.com/logo.png', ?, ?)
	`, id, agencyID, name, now, now); err != nil {
		t.Fatalf("insert sub_account: %v", err)
	}
	return id
}

// Grant sets userID's access to subAccountID.
func Grant(t testing.TB, db *sql.DB, userID, subAccountID string, access bool) {
	t.Helper()
	if _, err := db.Exec(`
		INSERT INTO permission (id, user_id, sub_account_id, access) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, sub_account_id) DO UPDATE SET access = excluded.access
	`, uuid.NewV7().String(), userID, subAccountID, access); err != nil {
		t.Fatalf("grant permission: %v", err)
	}
}

// Count returns SELECT COUNT(*) FROM table WHERE where.
func Count(t testing.TB, db *sql.DB, table, where string, args ...any) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
