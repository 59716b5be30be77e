package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/agencyhub/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/agencyhub/internal/api/middleware"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite/sqlitetest"
)

func guardedRouter(checker middleware.SubAccountChecker, gotSubAccount *string) http.Handler {
	r := chi.NewRouter()
	r.Route("/subaccounts/{subaccountID}", func(r chi.Router) {
		r.Use(middleware.SubAccountGuard(checker))
		h := func(w http.ResponseWriter, r *http.Request) {
			*gotSubAccount = ctxkeys.String(r.Context(), ctxkeys.SubAccountID)
			w.WriteHeader(http.StatusOK)
		}
		r.Get("/", h)
		r.Post("/", h)
	})
	return r
}

func authedRequest(method, path, agencyID, userID string, role access.Role) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	ctx := ctxkeys.WithValue(req.Context(), ctxkeys.AgencyID, agencyID)
	ctx = ctxkeys.WithValue(ctx, ctxkeys.UserID, userID)
	ctx = ctxkeys.WithValue(ctx, ctxkeys.Role, string(role))
	return req.WithContext(ctx)
}

func TestSubAccountGuard(t *testing.T) {
	t.Parallel()

	db := sqlitetest.Open(t)
	agencyID := sqlitetest.Agency(t, db, "Acme")
	otherAgency := sqlitetest.Agency(t, db, "Globex")
	ownerID := sqlitetest.User(t, db, agencyID, "Alice", string(access.RoleAgencyOwner))
	userID := sqlitetest.User(t, db, agencyID, "Bob", string(access.RoleSubAccountUser))
	guestID := sqlitetest.User(t, db, agencyID, "Carol", string(access.RoleSubAccountGuest))
	subA := sqlitetest.SubAccount(t, db, agencyID, "Client A")
	subB := sqlitetest.SubAccount(t, db, agencyID, "Client B")
	foreign := sqlitetest.SubAccount(t, db, otherAgency, "Foreign")
	sqlitetest.Grant(t, db, userID, subA, true)
	sqlitetest.Grant(t, db, userID, subB, false)
	sqlitetest.Grant(t, db, guestID, subA, true)

	tests := []struct {
		name   string
		method string
		sub    string
		user   string
		role   access.Role
		want   int
	}{
		{name: "owner reads", method: http.MethodGet, sub: subB, user: ownerID, role: access.RoleAgencyOwner, want: http.StatusOK},
		{name: "owner writes", method: http.MethodPost, sub: subA, user: ownerID, role: access.RoleAgencyOwner, want: http.StatusOK},
		{name: "foreign sub-account", method: http.MethodGet, sub: foreign, user: ownerID, role: access.RoleAgencyOwner, want: http.StatusNotFound},
		{name: "unknown sub-account", method: http.MethodGet, sub: "nope", user: ownerID, role: access.RoleAgencyOwner, want: http.StatusNotFound},
		{name: "granted user", method: http.MethodPost, sub: subA, user: userID, role: access.RoleSubAccountUser, want: http.StatusOK},
		{name: "revoked user", method: http.MethodGet, sub: subB, user: userID, role: access.RoleSubAccountUser, want: http.StatusForbidden},
		{name: "guest reads", method: http.MethodGet, sub: subA, user: guestID, role: access.RoleSubAccountGuest, want: http.StatusOK},
		{name: "guest writes", method: http.MethodPost, sub: subA, user: guestID, role: access.RoleSubAccountGuest, want: http.StatusForbidden},
	}
	checker := access.NewChecker(db)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			rr := httptest.NewRecorder()
			guardedRouter(checker, &got).ServeHTTP(rr,
				authedRequest(tt.method, "/subaccounts/"+tt.sub+"/", agencyID, tt.user, tt.role))

			if rr.Code != tt.want {
				t.Fatalf("status = %d; want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
			if tt.want == http.StatusOK && got != tt.sub {
				t.Errorf("context SubAccountID = %q; want %q", got, tt.sub)
			}
		})
	}
}

func TestRequireAgencyManager(t *testing.T) {
	t.Parallel()

	h := middleware.RequireAgencyManager(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[access.Role]int{
		access.RoleAgencyOwner:     http.StatusNoContent,
		access.RoleAgencyAdmin:     http.StatusNoContent,
		access.RoleSubAccountUser:  http.StatusForbidden,
		access.RoleSubAccountGuest: http.StatusForbidden,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/invitations", "ag-1", "user-1", role))
		if rr.Code != want {
			t.Errorf("%s: status = %d; want %d", role, rr.Code, want)
		}
	}
}
