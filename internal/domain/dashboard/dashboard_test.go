package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/billing"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification/notificationtest"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/pipeline"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite/sqlitetest"
)

type staticPlan struct {
	plan   billing.Plan
	active bool
}

func (p staticPlan) CurrentPlan(context.Context, string) (billing.Plan, bool, error) {
	return p.plan, p.active, nil
}

func value(v float64) *float64 { return &v }

// seedBoard creates a pipeline with two lanes holding valued tickets.
func seedBoard(t *testing.T, db *sql.DB, scope access.Scope) (pipelineID string, laneIDs []string) {
	t.Helper()
	ctx := context.Background()
	svc := pipeline.NewService(db, &notificationtest.Recorder{})
	p, err := svc.CreatePipeline(ctx, scope, "Sales")
	if err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}
	for _, name := range []string{"Lead", "Won"} {
		l, err := svc.CreateLane(ctx, scope, p.ID, name)
		if err != nil {
			t.Fatalf("CreateLane: %v", err)
		}
		laneIDs = append(laneIDs, l.ID)
	}
	for _, tk := range []struct {
		lane  int
		value *float64
	}{{0, value(100)}, {0, value(50)}, {1, value(1000)}, {1, nil}} {
		if _, err := svc.CreateTicket(ctx, scope, laneIDs[tk.lane], pipeline.TicketInput{Name: "Deal", Value: tk.value}); err != nil {
			t.Fatalf("CreateTicket: %v", err)
		}
	}
	return p.ID, laneIDs
}

func TestAgencyStats(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	ctx := context.Background()
	agencyID := sqlitetest.Agency(t, db, "Acme")
	ownerID := sqlitetest.User(t, db, agencyID, "Alice", string(access.RoleAgencyOwner))
	subA := sqlitetest.SubAccount(t, db, agencyID, "Client A")
	sqlitetest.SubAccount(t, db, agencyID, "Client B")
	owner := access.Scope{AgencyID: agencyID, SubAccountID: subA, UserID: ownerID, Role: access.RoleAgencyOwner}
	seedBoard(t, db, owner)

	plan := billing.DefaultCatalog().Plans()[1]
	svc := NewService(db, staticPlan{plan: plan, active: true})

	owner.SubAccountID = ""
	st, err := svc.AgencyStats(ctx, owner)
	if err != nil {
		t.Fatalf("AgencyStats() error = %v", err)
	}
	want := &AgencyStats{SubAccounts: 2, Goal: 5, Plan: plan, SubscriptionActive: true, PipelineValue: 1150}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("AgencyStats() mismatch (-want +got):\n%s", diff)
	}

	// A sub-account user without grants sees nothing of the agency's data.
	userID := sqlitetest.User(t, db, agencyID, "Bob", string(access.RoleSubAccountUser))
	st, err = svc.AgencyStats(ctx, access.Scope{AgencyID: agencyID, UserID: userID, Role: access.RoleSubAccountUser})
	if err != nil {
		t.Fatalf("AgencyStats() as user error = %v", err)
	}
	if st.SubAccounts != 0 || st.PipelineValue != 0 {
		t.Errorf("AgencyStats() as ungranted user = %+v; want zero counts", st)
	}
}

func TestSubAccountStats(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	ctx := context.Background()
	agencyID := sqlitetest.Agency(t, db, "Acme")
	ownerID := sqlitetest.User(t, db, agencyID, "Alice", string(access.RoleAgencyOwner))
	subID := sqlitetest.SubAccount(t, db, agencyID, "Client A")
	scope := access.Scope{AgencyID: agencyID, SubAccountID: subID, UserID: ownerID, Role: access.RoleAgencyOwner}
	svc := NewService(db, staticPlan{plan: billing.DefaultCatalog().Fallback()})

	empty, err := svc.SubAccountStats(ctx, scope, "")
	if err != nil {
		t.Fatalf("SubAccountStats() on empty sub-account error = %v", err)
	}
	if empty.PipelineID != "" || len(empty.Lanes) != 0 || empty.Goal != 5000 {
		t.Errorf("empty SubAccountStats() = %+v", empty)
	}

	pipelineID, lanes := seedBoard(t, db, scope)
	st, err := svc.SubAccountStats(ctx, scope, "")
	if err != nil {
		t.Fatalf("SubAccountStats() error = %v", err)
	}
	if st.PipelineID != pipelineID || st.Pipelines != 1 || st.Tickets != 4 || st.PipelineValue != 1150 {
		t.Errorf("SubAccountStats() = %+v", st)
	}
	wantLanes := []LaneValue{
		{LaneID: lanes[0], Name: "Lead", Tickets: 2, Value: 150},
		{LaneID: lanes[1], Name: "Won", Tickets: 2, Value: 1000},
	}
	if diff := cmp.Diff(wantLanes, st.Lanes); diff != "" {
		t.Errorf("lanes mismatch (-want +got):\n%s", diff)
	}

	other := sqlitetest.SubAccount(t, db, agencyID, "Client B")
	otherScope := scope
	otherScope.SubAccountID = other
	if _, err := svc.SubAccountStats(ctx, otherScope, pipelineID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("SubAccountStats() with foreign pipeline error = %v; want sql.ErrNoRows", err)
	}
}

func TestLaunchpad(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	ctx := context.Background()
	agencyID := sqlitetest.Agency(t, db, "Acme")
	ownerID := sqlitetest.User(t, db, agencyID, "Alice", string(access.RoleAgencyOwner))
	subID := sqlitetest.SubAccount(t, db, agencyID, "Client A")
	scope := access.Scope{AgencyID: agencyID, SubAccountID: subID, UserID: ownerID, Role: access.RoleAgencyOwner}
	svc := NewService(db, staticPlan{})

	lp, err := svc.Launchpad(ctx, scope)
	if err != nil {
		t.Fatalf("Launchpad() error = %v", err)
	}
	if diff := cmp.Diff(&Launchpad{DetailsComplete: true}, lp); diff != "" {
		t.Errorf("initial Launchpad() mismatch (-want +got):\n%s", diff)
	}

	seedBoard(t, db, scope)
	if _, err := db.Exec(`UPDATE sub_account SET connect_account_id = 'acc_1' WHERE id = ?`, subID); err != nil {
		t.Fatalf("connect account: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO funnel (id, sub_account_id, name, sub_domain_name, created_at, updated_at)
		VALUES ('f-1', ?, 'Launch', 'spring-sale', datetime('now'), datetime('now'))
	`, subID); err != nil {
		t.Fatalf("insert funnel: %v", err)
	}

	lp, err = svc.Launchpad(ctx, scope)
	if err != nil {
		t.Fatalf("Launchpad() error = %v", err)
	}
	if !lp.Done {
		t.Errorf("Launchpad() = %+v; want done", lp)
	}

	if _, err := db.Exec(`UPDATE sub_account SET address = '' WHERE id = ?`, subID); err != nil {
		t.Fatalf("clear address: %v", err)
	}
	if lp, _ := svc.Launchpad(ctx, scope); lp.DetailsComplete || lp.Done {
		t.Errorf("Launchpad() with missing address = %+v; want incomplete", lp)
	}
}
