package funnel

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification/notificationtest"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite/sqlitetest"
	"github.com/matiasleandrokruk/agencyhub/pkg/ordering"
)

type fixture struct {
	db    *sql.DB
	svc   *Service
	rec   *notificationtest.Recorder
	scope access.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqlitetest.Open(t)
	agencyID := sqlitetest.Agency(t, db, "Acme")
	userID := sqlitetest.User(t, db, agencyID, "Alice", string(access.RoleSubAccountUser))
	subID := sqlitetest.SubAccount(t, db, agencyID, "Client A")
	sqlitetest.Grant(t, db, userID, subID, true)
	rec := &notificationtest.Recorder{}
	return &fixture{
		db:    db,
		svc:   NewService(db, rec),
		rec:   rec,
		scope: access.Scope{AgencyID: agencyID, SubAccountID: subID, UserID: userID, Role: access.RoleSubAccountUser},
	}
}

func (f *fixture) funnel(t *testing.T, sub string, published bool) *Funnel {
	t.Helper()
	fn, err := f.svc.CreateFunnel(context.Background(), f.scope, FunnelInput{Name: "Launch", SubDomainName: sub, Published: published})
	if err != nil {
		t.Fatalf("CreateFunnel: %v", err)
	}
	return fn
}

func (f *fixture) pages(t *testing.T, funnelID string, paths ...string) []string {
	t.Helper()
	ids := make([]string, len(paths))
	for i, p := range paths {
		pg, err := f.svc.CreatePage(context.Background(), f.scope, funnelID, PageInput{Name: p, PathName: p})
		if err != nil {
			t.Fatalf("CreatePage(%s): %v", p, err)
		}
		ids[i] = pg.ID
	}
	return ids
}

func pageIDs(pages []*Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.ID
	}
	return out
}

func TestDefaultSubdomain(t *testing.T) {
	t.Parallel()

	re := regexp.MustCompile(`^[a-z]+-[a-z]+-[0-9a-f]{4}$`)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		s := DefaultSubdomain()
		if !re.MatchString(s) {
			t.Fatalf("DefaultSubdomain() = %q, want word-word-hex4", s)
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Error("DefaultSubdomain() returned the same value every time")
	}
}

func TestFunnelCRUD(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	generated := f.funnel(t, "", false)
	if generated.SubDomainName == "" || generated.LiveProducts != "[]" {
		t.Errorf("CreateFunnel() defaults = %+v", generated)
	}

	explicit := f.funnel(t, "Spring-Sale", true)
	if explicit.SubDomainName != "spring-sale" || !explicit.Published {
		t.Errorf("CreateFunnel() = %+v", explicit)
	}
	if _, err := f.svc.CreateFunnel(ctx, f.scope, FunnelInput{Name: "Dup", SubDomainName: "spring-sale"}); !errors.Is(err, ErrSubdomainTaken) {
		t.Errorf("duplicate subdomain error = %v, want ErrSubdomainTaken", err)
	}
	if _, err := f.svc.CreateFunnel(ctx, f.scope, FunnelInput{Name: "Bad", SubDomainName: "no spaces!"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("invalid subdomain error = %v, want ErrInvalidInput", err)
	}

	updated, err := f.svc.UpdateFunnel(ctx, f.scope, explicit.ID, FunnelInput{Name: "Summer", Description: "d"})
	if err != nil {
		t.Fatalf("UpdateFunnel() error = %v", err)
	}
	if updated.Name != "Summer" || updated.SubDomainName != "spring-sale" || updated.Published {
		t.Errorf("UpdateFunnel() = %+v", updated)
	}

	list, err := f.svc.ListFunnels(ctx, f.scope)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListFunnels() = %d, %v", len(list), err)
	}

	if err := f.svc.DeleteFunnel(ctx, f.scope, generated.ID); err != nil {
		t.Fatalf("DeleteFunnel() error = %v", err)
	}
	if _, err := f.svc.GetFunnel(ctx, f.scope, generated.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetFunnel() after delete error = %v", err)
	}
}

func TestUpdateProducts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	fn := f.funnel(t, "shop", true)

	got, err := f.svc.UpdateProducts(ctx, f.scope, fn.ID, `[{"productId":"prod_1","recurring":true}]`)
	if err != nil {
		t.Fatalf("UpdateProducts() error = %v", err)
	}
	if got.LiveProducts != `[{"productId":"prod_1","recurring":true}]` {
		t.Errorf("LiveProducts = %s", got.LiveProducts)
	}
	for _, bad := range []string{`{"productId":"x"}`, `[{`, ``} {
		if _, err := f.svc.UpdateProducts(ctx, f.scope, fn.ID, bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("UpdateProducts(%q) error = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestPages_CRUDAndRenumber(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	fn := f.funnel(t, "launch", true)
	ids := f.pages(t, fn.ID, "/home/", "checkout", "thanks")

	pages, err := f.svc.ListPages(ctx, f.scope, fn.ID)
	if err != nil {
		t.Fatalf("ListPages() error = %v", err)
	}
	if pages[0].PathName != "home" || pages[2].Position != 2 {
		t.Errorf("pages = %+v", pages)
	}

	if _, err := f.svc.CreatePage(ctx, f.scope, fn.ID, PageInput{Name: "Again", PathName: "home"}); !errors.Is(err, ErrPathTaken) {
		t.Errorf("duplicate path error = %v, want ErrPathTaken", err)
	}

	upd, err := f.svc.UpdatePage(ctx, f.scope, ids[1], PageInput{Name: "Pay", PathName: "pay", Content: `{"blocks":[]}`})
	if err != nil || upd.PathName != "pay" || upd.Position != 1 {
		t.Fatalf("UpdatePage() = %+v, %v", upd, err)
	}

	if err := f.svc.DeletePage(ctx, f.scope, ids[0]); err != nil {
		t.Fatalf("DeletePage() error = %v", err)
	}
	pages, _ = f.svc.ListPages(ctx, f.scope, fn.ID)
	if diff := cmp.Diff([]string{ids[1], ids[2]}, pageIDs(pages)); diff != "" {
		t.Errorf("pages after delete (-want +got):\n%s", diff)
	}
	if pages[0].Position != 0 || pages[1].Position != 1 {
		t.Errorf("positions not renumbered: %d, %d", pages[0].Position, pages[1].Position)
	}
}

func TestReorderAndMovePages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	fn := f.funnel(t, "launch", true)
	ids := f.pages(t, fn.ID, "a", "b", "c")

	got, err := f.svc.ReorderPages(ctx, f.scope, fn.ID, []string{ids[2], ids[1], ids[0]})
	if err != nil {
		t.Fatalf("ReorderPages() error = %v", err)
	}
	if diff := cmp.Diff([]string{ids[2], ids[1], ids[0]}, pageIDs(got)); diff != "" {
		t.Errorf("ReorderPages (-want +got):\n%s", diff)
	}

	if _, err := f.svc.ReorderPages(ctx, f.scope, fn.ID, ids[:2]); !errors.Is(err, ordering.ErrOrderConflict) {
		t.Errorf("ReorderPages(missing id) error = %v, want ErrOrderConflict", err)
	}

	got, err = f.svc.MovePage(ctx, f.scope, ids[0], 0)
	if err != nil {
		t.Fatalf("MovePage() error = %v", err)
	}
	if diff := cmp.Diff([]string{ids[0], ids[2], ids[1]}, pageIDs(got)); diff != "" {
		t.Errorf("MovePage (-want +got):\n%s", diff)
	}
	if _, err := f.svc.MovePage(ctx, f.scope, ids[0], 9); !errors.Is(err, ordering.ErrInvalidMove) {
		t.Errorf("MovePage(9) error = %v, want ErrInvalidMove", err)
	}
}

func TestGetPublished(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	live := f.funnel(t, "live-site", true)
	draft := f.funnel(t, "draft-site", false)
	ids := f.pages(t, live.ID, "home", "offer")
	draftPage := f.pages(t, draft.ID, "home")[0]

	pub, err := f.svc.GetPublished(ctx, "LIVE-SITE")
	if err != nil {
		t.Fatalf("GetPublished() error = %v", err)
	}
	if pub.ID != live.ID || len(pub.Pages) != 2 || pub.Pages[1].ID != ids[1] {
		t.Errorf("GetPublished() = %+v", pub)
	}
	if _, err := f.svc.GetPublished(ctx, "draft-site"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetPublished(draft) error = %v, want sql.ErrNoRows", err)
	}

	if err := f.svc.PublishedPageExists(ctx, "live-site", ids[0]); err != nil {
		t.Errorf("PublishedPageExists(live) error = %v", err)
	}
	if err := f.svc.PublishedPageExists(ctx, "draft-site", draftPage); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("PublishedPageExists(draft) error = %v, want sql.ErrNoRows", err)
	}
	if err := f.svc.PublishedPageExists(ctx, "live-site", draftPage); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("PublishedPageExists(wrong funnel) error = %v, want sql.ErrNoRows", err)
	}
}

func TestGuestCannotEditFunnels(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	guest := f.scope
	guest.Role = access.RoleSubAccountGuest
	if _, err := f.svc.CreateFunnel(context.Background(), guest, FunnelInput{Name: "x"}); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("CreateFunnel() as guest error = %v, want ErrForbidden", err)
	}
}
