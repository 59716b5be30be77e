package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification/notificationtest"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite/sqlitetest"
)

func TestTeamService_ListMembersWithPermissions(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := NewTeamService(db, &notificationtest.Recorder{})
	owner := ownerScope(t, db)
	user := memberScope(t, db, owner.AgencyID, access.RoleSubAccountUser)
	saID := sqlitetest.SubAccount(t, db, owner.AgencyID, "Client A")
	sqlitetest.Grant(t, db, user.UserID, saID, true)

	other := ownerScope(t, db)
	sqlitetest.User(t, db, other.AgencyID, "Outsider", string(access.RoleAgencyAdmin))

	members, err := svc.ListMembers(context.Background(), owner.AgencyID)
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("ListMembers() returned %d members, want 2", len(members))
	}
	if members[0].Role != access.RoleAgencyOwner {
		t.Errorf("first member role = %s, want owner first", members[0].Role)
	}
	if len(members[0].Permissions) != 0 {
		t.Errorf("owner permissions = %d, want 0", len(members[0].Permissions))
	}
	perms := members[1].Permissions
	if len(perms) != 1 || perms[0].SubAccountID != saID || !perms[0].Access || perms[0].SubAccountName != "Client A" {
		t.Errorf("user permissions = %+v", perms)
	}
}

func TestTeamService_ChangeRole(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := NewTeamService(db, &notificationtest.Recorder{})
	owner := ownerScope(t, db)
	admin := memberScope(t, db, owner.AgencyID, access.RoleAgencyAdmin)
	user := memberScope(t, db, owner.AgencyID, access.RoleSubAccountUser)
	ctx := context.Background()

	m, err := svc.ChangeRole(ctx, admin, user.UserID, access.RoleSubAccountGuest)
	if err != nil {
		t.Fatalf("admin ChangeRole(user->guest) error = %v", err)
	}
	if m.Role != access.RoleSubAccountGuest {
		t.Errorf("role = %s, want SUBACCOUNT_GUEST", m.Role)
	}

	if _, err := svc.ChangeRole(ctx, admin, owner.UserID, access.RoleAgencyAdmin); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("admin demoting owner error = %v, want ErrForbidden", err)
	}
	if _, err := svc.ChangeRole(ctx, admin, user.UserID, access.RoleAgencyOwner); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("admin promoting to owner error = %v, want ErrForbidden", err)
	}
	if _, err := svc.ChangeRole(ctx, owner, owner.UserID, access.RoleAgencyAdmin); !errors.Is(err, ErrOwnerProtected) {
		t.Errorf("sole owner demoting self error = %v, want ErrOwnerProtected", err)
	}

	if _, err := svc.ChangeRole(ctx, owner, admin.UserID, access.RoleAgencyOwner); err != nil {
		t.Fatalf("owner promoting admin error = %v", err)
	}
	if _, err := svc.ChangeRole(ctx, owner, owner.UserID, access.RoleAgencyAdmin); err != nil {
		t.Errorf("owner stepping down with a second owner error = %v", err)
	}
}

func TestTeamService_SetAccess(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	rec := &notificationtest.Recorder{}
	svc := NewTeamService(db, rec)
	owner := ownerScope(t, db)
	user := memberScope(t, db, owner.AgencyID, access.RoleSubAccountUser)
	saID := sqlitetest.SubAccount(t, db, owner.AgencyID, "Client A")
	ctx := context.Background()

	if _, err := svc.SetAccess(ctx, owner, user.UserID, saID, true); err != nil {
		t.Fatalf("SetAccess(true) error = %v", err)
	}
	m, err := svc.SetAccess(ctx, owner, user.UserID, saID, false)
	if err != nil {
		t.Fatalf("SetAccess(false) error = %v", err)
	}
	if len(m.Permissions) != 1 || m.Permissions[0].Access {
		t.Errorf("permissions after revoke = %+v", m.Permissions)
	}
	if evt, _ := rec.Last(); evt.SubAccountID != saID {
		t.Errorf("event sub-account = %q, want %q", evt.SubAccountID, saID)
	}

	foreign := sqlitetest.SubAccount(t, db, sqlitetest.Agency(t, db, "Other"), "Foreign")
	if _, err := svc.SetAccess(ctx, owner, user.UserID, foreign, true); err == nil {
		t.Error("SetAccess on another agency's sub-account succeeded")
	}
	if _, err := svc.SetAccess(ctx, user, user.UserID, saID, true); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("SetAccess as SUBACCOUNT_USER error = %v, want ErrForbidden", err)
	}
}

func TestTeamService_RemoveMember(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := NewTeamService(db, &notificationtest.Recorder{})
	owner := ownerScope(t, db)
	admin := memberScope(t, db, owner.AgencyID, access.RoleAgencyAdmin)
	user := memberScope(t, db, owner.AgencyID, access.RoleSubAccountUser)
	ctx := context.Background()

	if err := svc.RemoveMember(ctx, admin, owner.UserID); !errors.Is(err, ErrOwnerProtected) {
		t.Fatalf("RemoveMember(owner) error = %v, want ErrOwnerProtected", err)
	}
	if err := svc.RemoveMember(ctx, admin, user.UserID); err != nil {
		t.Fatalf("RemoveMember(user) error = %v", err)
	}
	if n := sqlitetest.Count(t, db, "user_account", "id = ?", user.UserID); n != 0 {
		t.Errorf("removed user still present")
	}
}

func TestTeamService_UpdateProfile(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := NewTeamService(db, &notificationtest.Recorder{})
	owner := ownerScope(t, db)

	m, err := svc.UpdateProfile(context.Background(), owner, "Olivia O.", "https://cdn.example.com/o.png")
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if m.Name != "Olivia O." || m.AvatarURL != "https://cdn.example.com/o.png" {
		t.Errorf("UpdateProfile() = %+v", m)
	}
}
