package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/billing"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
)

const testWebhookSecret = "whsec_test"

func newBillingHandler(t *testing.T) (tenant, *BillingHandler) {
	t.Helper()
	tn := newTenant(t)
	svc := billing.NewService(tn.db, billing.DefaultCatalog(), billing.NewRazorpayGateway("", "", ""),
		notification.Nop{}, zap.NewNop(), testWebhookSecret)
	return tn, NewBillingHandler(svc, zap.NewNop())
}

func webhookRequest(t *testing.T, body, signature, eventID string) *http.Request {
	t.Helper()
	req := newRequest(t, http.MethodPost, "/webhooks/razorpay", body, access.Scope{})
	req.Header.Set(headerRazorpaySignature, signature)
	if eventID != "" {
		req.Header.Set(headerRazorpayEventID, eventID)
	}
	return req
}

func hmacHex(body string) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestBillingHandler_Webhook(t *testing.T) {
	t.Parallel()

	_, h := newBillingHandler(t)
	body := `{"event":"payment.captured","payload":{}}`

	rr := httptest.NewRecorder()
	h.Webhook(rr, webhookRequest(t, body, hmacHex(body), "evt_1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("Webhook status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var res billing.WebhookResult
	decodeBody(t, rr, &res)
	if res.Outcome != billing.OutcomeIgnored || res.EventID != "evt_1" {
		t.Errorf("Webhook result = %+v; want ignored evt_1", res)
	}

	rr = httptest.NewRecorder()
	h.Webhook(rr, webhookRequest(t, body, hmacHex(body), "evt_1"))
	decodeBody(t, rr, &res)
	if rr.Code != http.StatusOK || res.Outcome != billing.OutcomeDuplicate {
		t.Errorf("replayed Webhook = %d %+v; want 200 duplicate", rr.Code, res)
	}

	rr = httptest.NewRecorder()
	h.Webhook(rr, webhookRequest(t, body, "deadbeef", "evt_2"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Webhook with a bad signature status = %d; want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestBillingHandler_GetSubscription_FallbackPlan(t *testing.T) {
	t.Parallel()

	tn, h := newBillingHandler(t)

	rr := httptest.NewRecorder()
	h.GetSubscription(rr, newRequest(t, http.MethodGet, "/billing/subscription", nil, tn.owner()))
	if rr.Code != http.StatusOK {
		t.Fatalf("GetSubscription status = %d; want %d. body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var got SubscriptionResponse
	decodeBody(t, rr, &got)
	if got.Active || got.Subscription != nil {
		t.Errorf("GetSubscription = %+v; want inactive without subscription", got)
	}
	if got.Plan.ID != billing.DefaultCatalog().Fallback().ID {
		t.Errorf("GetSubscription plan = %q; want fallback %q", got.Plan.ID, billing.DefaultCatalog().Fallback().ID)
	}
}

func TestBillingHandler_Checkout(t *testing.T) {
	t.Parallel()

	tn, h := newBillingHandler(t)

	cases := []struct {
		name string
		body CheckoutRequest
		want int
	}{
		{"empty", CheckoutRequest{Prices: []CheckoutPriceRequest{}}, http.StatusBadRequest},
		{"recurring", CheckoutRequest{Prices: []CheckoutPriceRequest{{ProductID: "p1", Recurring: true, Amount: 10}}}, http.StatusNotImplemented},
		{"no gateway keys", CheckoutRequest{Prices: []CheckoutPriceRequest{{ProductID: "p1", Amount: 10}}}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.Checkout(rr, newRequest(t, http.MethodPost, "/checkout", tc.body, tn.owner()))
		if rr.Code != tc.want {
			t.Errorf("%s: Checkout status = %d; want %d. body: %s", tc.name, rr.Code, tc.want, rr.Body.String())
		}
	}
}

func TestBillingHandler_CreateSubscription(t *testing.T) {
	t.Parallel()

	tn, h := newBillingHandler(t)
	rr := httptest.NewRecorder()
	h.CreateSubscription(rr, newRequest(t, http.MethodPost, "/billing/subscriptions", nil, tn.owner()))
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("CreateSubscription status = %d; want %d", rr.Code, http.StatusNotImplemented)
	}
}
