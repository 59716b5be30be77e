package handlers

import (
	"database/sql"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/billing"
)

const (
	headerRazorpaySignature = "X-Razorpay-Signature"
	headerRazorpayEventID   = "X-Razorpay-Event-Id"

	maxWebhookBody = 1 << 20
)

// BillingHandler serves plans, the agency subscription, checkouts and the
// payment provider webhook.
type BillingHandler struct {
	svc    *billing.Service
	logger *zap.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(svc *billing.Service, logger *zap.Logger) *BillingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingHandler{svc: svc, logger: logger}
}

// SubscriptionResponse describes the plan in effect for the caller's agency.
// Subscription is nil until the provider reports one.
type SubscriptionResponse struct {
	Plan         billing.Plan          `json:"plan"`
	Active       bool                  `json:"active"`
	Subscription *billing.Subscription `json:"subscription"`
}

// CustomerResponse is the body of POST /api/v1/billing/customer.
type CustomerResponse struct {
	CustomerID string `json:"customerId"`
}

// CheckoutPriceRequest is one line of a checkout. Amount is in major units.
type CheckoutPriceRequest struct {
	ProductID string  `json:"productId"`
	Recurring bool    `json:"recurring"`
	Amount    float64 `json:"amount"`
}

// CheckoutRequest is the request body for POST .../checkout.
type CheckoutRequest struct {
	Prices []CheckoutPriceRequest `json:"prices" validate:"required,min=1"`
}

// ListPlans handles GET /api/v1/billing/plans
func (h *BillingHandler) ListPlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DataResponse[billing.Plan]{Data: h.svc.Catalog().Plans()})
}

// GetSubscription handles GET /api/v1/billing/subscription
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	agencyID := scopeFromContext(r.Context()).AgencyID

	plan, active, err := h.svc.CurrentPlan(r.Context(), agencyID)
	if err != nil {
		writeServiceError(w, err, "load plan")
		return
	}
	resp := SubscriptionResponse{Plan: plan, Active: active}

	sub, err := h.svc.Get(r.Context(), agencyID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		writeServiceError(w, err, "load subscription")
		return
	default:
		resp.Subscription = sub
	}
	writeJSON(w, http.StatusOK, resp)
}

// EnsureCustomer handles POST /api/v1/billing/customer. Idempotent: an
// agency that already has a provider customer gets the stored id.
func (h *BillingHandler) EnsureCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.EnsureCustomer(r.Context(), scopeFromContext(r.Context()))
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("create billing customer", zap.Error(err))
		}
		writeServiceError(w, err, "create customer")
		return
	}
	writeJSON(w, http.StatusOK, CustomerResponse{CustomerID: id})
}

// CreateSubscription handles POST /api/v1/billing/subscriptions. Recurring
// plans are set up at the provider, so this always answers 501.
func (h *BillingHandler) CreateSubscription(w http.ResponseWriter, _ *http.Request) {
	writeServiceError(w, billing.ErrSubscriptionUnsupported, "create subscription")
}

// Checkout handles POST /subaccounts/{subaccountID}/checkout
//
// Response codes:
//   - 201 Created: the provider order
//   - 400 Bad Request: empty price list
//   - 501 Not Implemented: a recurring price was submitted
//   - 503 Service Unavailable: no provider credentials configured
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prices := make([]billing.CheckoutPrice, len(req.Prices))
	for i, p := range req.Prices {
		prices[i] = billing.CheckoutPrice{ProductID: p.ProductID, Recurring: p.Recurring, Amount: p.Amount}
	}

	order, err := h.svc.CreateCheckout(r.Context(), scopeFromContext(r.Context()), prices)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("create checkout", zap.Error(err))
		}
		writeServiceError(w, err, "create checkout")
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// Webhook handles POST /webhooks/razorpay. The raw body is verified against
// X-Razorpay-Signature; replays of an event id answer 200 with outcome "duplicate".
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody)
		return
	}

	res, err := h.svc.HandleWebhook(r.Context(),
		r.Header.Get(headerRazorpaySignature), r.Header.Get(headerRazorpayEventID), body)
	if err != nil {
		h.logger.Warn("webhook rejected",
			zap.String("event_id", res.EventID),
			zap.String("event", res.Event),
			zap.Error(err),
		)
		writeServiceError(w, err, "process webhook")
		return
	}

	h.logger.Info("webhook processed",
		zap.String("event_id", res.EventID),
		zap.String("event", res.Event),
		zap.String("outcome", res.Outcome),
	)
	writeJSON(w, http.StatusOK, res)
}
