package tenancy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification/notificationtest"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/mailer"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite/sqlitetest"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func TestInvitationService_CreateSendsMail(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	fm := &fakeMailer{}
	rec := &notificationtest.Recorder{}
	svc := NewInvitationService(db, fm, rec, zap.NewNop(), "https://app.example.com/")
	owner := ownerScope(t, db)

	inv, err := svc.Create(context.Background(), owner, "  New.Person@Example.com ", access.RoleSubAccountUser)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if inv.Email != "new.person@example.com" || inv.Status != InvitationPending {
		t.Errorf("Create() = %+v", inv)
	}
	if len(fm.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(fm.sent))
	}
	msg := fm.sent[0]
	if msg.To != "new.person@example.com" || !strings.Contains(msg.Subject, "Acme Agency") {
		t.Errorf("mail = %+v", msg)
	}
	if !strings.Contains(msg.HTML, "https://app.example.com/sign-up?email=new.person%40example.com") {
		t.Errorf("mail body missing sign-up link: %s", msg.HTML)
	}
	if evt, _ := rec.Last(); evt.Action != "Invited" || evt.EntityName != inv.Email {
		t.Errorf("last event = %+v", evt)
	}
}

func TestInvitationService_MailFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := NewInvitationService(db, &fakeMailer{err: errors.New("smtp down")}, &notificationtest.Recorder{}, zap.NewNop(), "")
	owner := ownerScope(t, db)

	if _, err := svc.Create(context.Background(), owner, "x@example.com", access.RoleAgencyAdmin); err != nil {
		t.Fatalf("Create() with failing mailer error = %v, want nil", err)
	}
	if n := sqlitetest.Count(t, db, "invitation", "email = ?", "x@example.com"); n != 1 {
		t.Errorf("invitations = %d, want 1", n)
	}
}

func TestInvitationService_Rules(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	svc := NewInvitationService(db, &fakeMailer{}, &notificationtest.Recorder{}, zap.NewNop(), "")
	owner := ownerScope(t, db)
	user := memberScope(t, db, owner.AgencyID, access.RoleSubAccountUser)
	ctx := context.Background()

	if _, err := svc.Create(ctx, user, "a@example.com", access.RoleSubAccountUser); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("Create() as SUBACCOUNT_USER error = %v, want ErrForbidden", err)
	}
	if _, err := svc.Create(ctx, owner, "a@example.com", access.RoleAgencyOwner); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("Create() with owner role error = %v, want ErrForbidden", err)
	}

	var existing string
	if err := db.QueryRow(`SELECT email FROM user_account WHERE id = ?`, user.UserID).Scan(&existing); err != nil {
		t.Fatalf("load email: %v", err)
	}
	if _, err := svc.Create(ctx, owner, existing, access.RoleSubAccountUser); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("Create() for existing user error = %v, want ErrAlreadyMember", err)
	}

	first, err := svc.Create(ctx, owner, "a@example.com", access.RoleSubAccountUser)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(ctx, owner, "a@example.com", access.RoleSubAccountGuest); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate pending Create() error = %v, want ErrDuplicate", err)
	}

	if err := svc.Revoke(ctx, owner, first.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := svc.Revoke(ctx, owner, first.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("second Revoke() error = %v, want ErrNotPending", err)
	}
	if _, err := svc.Create(ctx, owner, "a@example.com", access.RoleSubAccountGuest); err != nil {
		t.Errorf("re-invite after revoke error = %v", err)
	}

	pending, err := svc.List(ctx, owner.AgencyID, InvitationPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("List(PENDING) = %d items err %v, want 1", len(pending), err)
	}
	all, err := svc.List(ctx, owner.AgencyID, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("List() = %d items err %v, want 2", len(all), err)
	}
}
