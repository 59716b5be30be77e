package sqlite_test

import (
	"database/sql"
	"testing"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
)

// TestMigrate_RunsAllMigrations verifies that MigrateUp applies all pending migrations.
func TestMigrate_RunsAllMigrations(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)

	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v; want nil", err)
	}

	var count int
	row := db.QueryRow("SELECT COUNT(*) FROM schema_migrations")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("SELECT COUNT(*) FROM schema_migrations error = %v", err)
	}

	if count != 4 {
		t.Errorf("schema_migrations has %d rows after MigrateUp; want 4", count)
	}
}

// TestMigrate_Idempotent verifies that running MigrateUp twice does not fail.
func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)

	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() first run error = %v; want nil", err)
	}
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() second run error = %v; want nil (idempotent)", err)
	}
}

func TestMigrate_TablesCreated(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	for _, table := range []string{
		"agency", "user_account", "sub_account", "permission", "invitation",
		"notification", "audit_event",
		"contact", "media", "tag", "pipeline", "lane", "ticket", "ticket_tag",
		"funnel", "funnel_page",
		"subscription", "webhook_event",
	} {
		assertTableExists(t, db, table)
	}
}

// TestMigrate_ForeignKeyConstraintEnforced inserts a sub-account for an agency
// that does not exist; the FK must reject it.
func TestMigrate_ForeignKeyConstraintEnforced(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	_, err := db.Exec(`
		INSERT INTO sub_account (id, agency_id, name, company_email, company_phone, address, city,
			zip_code, state, country, sub_account_logo, created_at, updated_at)
		VALUES ('sa-1', 'missing-agency', 'Client', 'c@example.com', '1', 'a', 'c', 'z', 's', 'x', 'l',
			datetime('now'), datetime('now'))
	`)
	if err == nil {
		t.Error("INSERT with non-existent agency_id succeeded; want FK constraint error")
	}
}

func TestMigrate_UserEmailUnique(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	insertAgency(t, db, "ag-1")

	_, err := db.Exec(`
		INSERT INTO user_account (id, agency_id, email, name, role, created_at, updated_at)
		VALUES ('user-1', 'ag-1', 'alice@example.com', 'Alice', 'AGENCY_OWNER', datetime('now'), datetime('now'))
	`)
	if err != nil {
		t.Fatalf("first user insert error = %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO user_account (id, agency_id, email, name, role, created_at, updated_at)
		VALUES ('user-2', 'ag-1', 'alice@example.com', 'Alice 2', 'AGENCY_ADMIN', datetime('now'), datetime('now'))
	`)
	if err == nil {
		t.Error("duplicate email INSERT succeeded; want UNIQUE constraint error")
	}
}

func TestMigrate_UserRoleChecked(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	insertAgency(t, db, "ag-1")

	_, err := db.Exec(`
		INSERT INTO user_account (id, agency_id, email, name, role, created_at, updated_at)
		VALUES ('user-1', 'ag-1', 'bob@example.com', 'Bob', 'SUPERUSER', datetime('now'), datetime('now'))
	`)
	if err == nil {
		t.Error("INSERT with unknown role succeeded; want CHECK constraint error")
	}
}

func TestMigrate_FunnelSubdomainUnique(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	insertAgency(t, db, "ag-1")
	if _, err := db.Exec(`
		INSERT INTO sub_account (id, agency_id, name, company_email, company_phone, address, city,
			zip_code, state, country, sub_account_logo, created_at, updated_at)
		VALUES ('sa-1', 'ag-1', 'Client', 'c@example.com', '1', 'a', 'c', 'z', 's', 'x', 'l',
			datetime('now'), datetime('now'))
	`); err != nil {
		t.Fatalf("sub_account insert: %v", err)
	}

	insert := `INSERT INTO funnel (id, sub_account_id, name, sub_domain_name, created_at, updated_at)
		VALUES (?, 'sa-1', 'Launch', 'spring-sale', datetime('now'), datetime('now'))`
	if _, err := db.Exec(insert, "f-1"); err != nil {
		t.Fatalf("first funnel insert: %v", err)
	}
	if _, err := db.Exec(insert, "f-2"); err == nil {
		t.Error("duplicate sub_domain_name INSERT succeeded; want UNIQUE constraint error")
	}
}

// TestMigrate_PendingInvitationUnique allows a re-invite only after the first
// invitation left the PENDING state.
func TestMigrate_PendingInvitationUnique(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	insertAgency(t, db, "ag-1")

	insert := `INSERT INTO invitation (id, agency_id, email, role, status, created_at, updated_at)
		VALUES (?, 'ag-1', 'new@example.com', 'SUBACCOUNT_USER', ?, datetime('now'), datetime('now'))`
	if _, err := db.Exec(insert, "inv-1", "PENDING"); err != nil {
		t.Fatalf("first invitation: %v", err)
	}
	if _, err := db.Exec(insert, "inv-2", "PENDING"); err == nil {
		t.Fatal("second pending invitation succeeded; want UNIQUE constraint error")
	}
	if _, err := db.Exec(`UPDATE invitation SET status = 'REVOKED' WHERE id = 'inv-1'`); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := db.Exec(insert, "inv-3", "PENDING"); err != nil {
		t.Errorf("re-invite after revoke error = %v; want nil", err)
	}
}

// TestMigrate_Version returns the current applied migration version.
func TestMigrate_Version(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	version, err := sqlite.MigrationVersion(db)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v; want nil", err)
	}

	if version != 4 {
		t.Errorf("MigrationVersion() = %d; want 4 after MigrateUp", version)
	}
}

// TestMigrate_OnlyAppliesPending verifies that already-applied migrations are NOT re-run.
func TestMigrate_OnlyAppliesPending(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() first error = %v", err)
	}

	var countBefore int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&countBefore); err != nil {
		t.Fatalf("count before: %v", err)
	}

	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() second error = %v", err)
	}

	var countAfter int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&countAfter); err != nil {
		t.Fatalf("count after: %v", err)
	}

	if countAfter != countBefore {
		t.Errorf("schema_migrations count changed from %d to %d; want unchanged", countBefore, countAfter)
	}
}

// TestMigrationVersion_NoMigrations verifies version is 0 on fresh DB.
func TestMigrationVersion_NoMigrations(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)

	version, err := sqlite.MigrationVersion(db)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}

	if version != 0 {
		t.Errorf("MigrationVersion() = %d; want 0 on fresh DB", version)
	}
}

func insertAgency(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	if _, err := db.Exec(`
		INSERT INTO agency (id, name, created_at, updated_at)
		VALUES (?, 'Acme Agency', datetime('now'), datetime('now'))
	`, id); err != nil {
		t.Fatalf("agency insert: %v", err)
	}
}

// assertTableExists fails the test if the given table doesn't exist in the DB.
func assertTableExists(t *testing.T, db *sql.DB, tableName string) {
	t.Helper()

	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&name)

	if err == sql.ErrNoRows {
		t.Errorf("table %q not found in sqlite_master after MigrateUp", tableName)
		return
	}
	if err != nil {
		t.Fatalf("assertTableExists(%q) query error = %v", tableName, err)
	}
}
