package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/agencyhub/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/billing"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/pipeline"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/tenancy"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite/sqlitetest"
	"github.com/matiasleandrokruk/agencyhub/pkg/ordering"
)

// TestMain sets JWT_SECRET once so auth tests can run in parallel.
func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!") //nolint:errcheck
	os.Exit(m.Run())
}

// tenant is an agency with an owner and one sub-account.
type tenant struct {
	db       *sql.DB
	agencyID string
	ownerID  string
	subID    string
}

func newTenant(t *testing.T) tenant {
	t.Helper()
	db := sqlitetest.Open(t)
	agencyID := sqlitetest.Agency(t, db, "Acme Agency")
	return tenant{
		db:       db,
		agencyID: agencyID,
		ownerID:  sqlitetest.User(t, db, agencyID, "Olivia Owner", string(access.RoleAgencyOwner)),
		subID:    sqlitetest.SubAccount(t, db, agencyID, "Client One"),
	}
}

// owner is the owner's scope inside the tenant's sub-account.
func (tn tenant) owner() access.Scope {
	return access.Scope{
		AgencyID:     tn.agencyID,
		SubAccountID: tn.subID,
		UserID:       tn.ownerID,
		Role:         access.RoleAgencyOwner,
	}
}

// as returns the scope of a new user with role, granted access to the sub-account.
func (tn tenant) as(t *testing.T, role access.Role) access.Scope {
	t.Helper()
	userID := sqlitetest.User(t, tn.db, tn.agencyID, "Member", string(role))
	sqlitetest.Grant(t, tn.db, userID, tn.subID, true)
	return access.Scope{AgencyID: tn.agencyID, SubAccountID: tn.subID, UserID: userID, Role: role}
}

// secondSub adds another sub-account to the agency.
func (tn tenant) secondSub(t *testing.T) string {
	t.Helper()
	return sqlitetest.SubAccount(t, tn.db, tn.agencyID, "Client Two")
}

// newRequest builds a request carrying the scope values the middleware would inject.
// params are chi URL params as key, value pairs.
func newRequest(t *testing.T, method, path string, body any, scope access.Scope, params ...string) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal error = %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(headerContentType, mimeJSON)

	ctx := req.Context()
	ctx = ctxkeys.WithValue(ctx, ctxkeys.AgencyID, scope.AgencyID)
	ctx = ctxkeys.WithValue(ctx, ctxkeys.UserID, scope.UserID)
	ctx = ctxkeys.WithValue(ctx, ctxkeys.Role, string(scope.Role))
	ctx = ctxkeys.WithValue(ctx, ctxkeys.SubAccountID, scope.SubAccountID)

	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response error = %v; body: %s", err, rr.Body.String())
	}
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, rr, &body)
	return body["error"]
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{access.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("get pipeline: %w", sql.ErrNoRows), http.StatusNotFound},
		{ordering.ErrOrderConflict, http.StatusConflict},
		{tenancy.ErrQuotaExceeded, http.StatusPaymentRequired},
		{fmt.Errorf("create tag: %w", pipeline.ErrTagExists), http.StatusConflict},
		{billing.ErrSubscriptionUnsupported, http.StatusNotImplemented},
		{billing.ErrGatewayNotConfigured, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d; want %d", tc.err, got, tc.want)
		}
	}
}

func TestWriteServiceError_HidesInternalErrors(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	writeServiceError(rr, errors.New("near \"SELEKT\": syntax error"), "list tickets")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != "failed to list tickets" {
		t.Errorf("error = %q; want %q", msg, "failed to list tickets")
	}

	rr = httptest.NewRecorder()
	writeServiceError(rr, fmt.Errorf("lookup: %w", sql.ErrNoRows), "get ticket")
	if msg := errorMessage(t, rr); msg != "not found" {
		t.Errorf("error = %q; want %q", msg, "not found")
	}

	rr = httptest.NewRecorder()
	writeServiceError(rr, tenancy.ErrQuotaExceeded, "create sub-account")
	if msg := errorMessage(t, rr); msg != tenancy.ErrQuotaExceeded.Error() {
		t.Errorf("error = %q; want %q", msg, tenancy.ErrQuotaExceeded.Error())
	}
}

func TestParsePaginationParams(t *testing.T) {
	t.Parallel()

	cases := []struct {
		query      string
		limit, off int
	}{
		{"", defaultPaginationLimit, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=1000", maxPaginationLimit, 0},
		{"limit=-3&offset=-1", defaultPaginationLimit, 0},
		{"limit=abc", defaultPaginationLimit, 0},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x?"+tc.query, nil)
		got := parsePaginationParams(req)
		if got.Limit != tc.limit || got.Offset != tc.off {
			t.Errorf("parsePaginationParams(%q) = %+v; want limit=%d offset=%d", tc.query, got, tc.limit, tc.off)
		}
	}
}

func TestDecodeAndValidate(t *testing.T) {
	t.Parallel()

	type roleBody struct {
		Role string `json:"role" validate:"required,role"`
	}

	cases := []struct {
		name    string
		body    string
		dst     any
		wantErr string
	}{
		{"malformed", "{", &ContactRequest{}, errInvalidBody},
		{"missing field uses json name", `{"email":"a@b.co"}`, &ContactRequest{}, "name is required"},
		{"bad email", `{"name":"Ann","email":"nope"}`, &ContactRequest{}, "email must be a valid email"},
		{"unknown role", `{"role":"ADMIN"}`, &roleBody{}, "role is invalid"},
		{"known role", `{"role":"SUBACCOUNT_USER"}`, &roleBody{}, ""},
		{"negative move", `{"to":-1}`, &MoveRequest{}, "to must satisfy gte=0"},
		{"zero move is valid", `{"to":0}`, &MoveRequest{}, ""},
		{"missing move target", `{}`, &MoveRequest{}, "to is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString(tc.body))
			err := decodeAndValidate(req, tc.dst)
			switch {
			case tc.wantErr == "" && err != nil:
				t.Fatalf("decodeAndValidate() error = %v; want nil", err)
			case tc.wantErr != "" && (err == nil || err.Error() != tc.wantErr):
				t.Fatalf("decodeAndValidate() error = %v; want %q", err, tc.wantErr)
			}
		})
	}
}
