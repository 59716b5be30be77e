package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	domainaudit "github.com/matiasleandrokruk/agencyhub/internal/domain/audit"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/billing"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/dashboard"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
)

func TestDashboardHandler(t *testing.T) {
	t.Parallel()

	tn := newTenant(t)
	plans := billing.NewService(tn.db, billing.DefaultCatalog(), billing.NewRazorpayGateway("", "", ""),
		notification.Nop{}, zap.NewNop(), "")
	h := NewDashboardHandler(dashboard.NewService(tn.db, plans))

	rr := httptest.NewRecorder()
	h.AgencyDashboard(rr, newRequest(t, http.MethodGet, "/dashboard", nil, tn.owner()))
	if rr.Code != http.StatusOK {
		t.Fatalf("AgencyDashboard status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var agency dashboard.AgencyStats
	decodeBody(t, rr, &agency)
	if agency.SubAccounts != 1 || agency.SubscriptionActive {
		t.Errorf("AgencyDashboard = %+v; want one sub-account and no subscription", agency)
	}

	rr = httptest.NewRecorder()
	h.SubAccountDashboard(rr, newRequest(t, http.MethodGet, "/dashboard", nil, tn.owner()))
	if rr.Code != http.StatusOK {
		t.Fatalf("SubAccountDashboard status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var sub dashboard.SubAccountStats
	decodeBody(t, rr, &sub)
	if sub.Pipelines != 0 || sub.PipelineID != "" {
		t.Errorf("SubAccountDashboard = %+v; want no pipelines", sub)
	}

	rr = httptest.NewRecorder()
	h.Launchpad(rr, newRequest(t, http.MethodGet, "/launchpad", nil, tn.owner()))
	var lp dashboard.Launchpad
	decodeBody(t, rr, &lp)
	if !lp.DetailsComplete || lp.Done {
		t.Errorf("Launchpad = %+v; want details complete and not done", lp)
	}
}

func TestAuditHandler_ListEvents_Filters(t *testing.T) {
	t.Parallel()

	tn := newTenant(t)
	svc := domainaudit.NewAuditService(tn.db)
	ctx := context.Background()
	for _, action := range []string{"create_pipeline", "create_pipeline", "delete_tag"} {
		if err := svc.LogWithDetails(ctx, tn.agencyID, tn.ownerID, domainaudit.ActorTypeUser, action,
			nil, nil, nil, domainaudit.OutcomeSuccess); err != nil {
			t.Fatalf("LogWithDetails() error = %v", err)
		}
	}
	h := NewAuditHandler(svc)

	cases := []struct {
		path string
		want int
	}{
		{"/audit", 3},
		{"/audit?action=create_pipeline", 2},
		{"/audit?outcome=denied", 0},
		{"/audit?actorId=" + tn.ownerID + "&limit=1", 3},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.ListEvents(rr, newRequest(t, http.MethodGet, tc.path, nil, tn.owner()))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d; want %d", tc.path, rr.Code, http.StatusOK)
		}
		var page ListResponse[*domainaudit.AuditEvent]
		decodeBody(t, rr, &page)
		if page.Meta.Total != tc.want {
			t.Errorf("%s: total = %d; want %d", tc.path, page.Meta.Total, tc.want)
		}
	}
}
