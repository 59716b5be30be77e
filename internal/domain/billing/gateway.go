package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"
	defaultCurrency   = "INR"
)

// ErrGatewayNotConfigured is returned when API keys are missing.
var ErrGatewayNotConfigured = errors.New("payment gateway not configured")

// Customer is a customer record at the payment provider.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OrderInput describes a one-time payment. Amount is in minor units.
type OrderInput struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is a created payment order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway is the subset of the payment provider API the service uses.
type Gateway interface {
	CreateCustomer(ctx context.Context, name, email string) (*Customer, error)
	CreateOrder(ctx context.Context, in OrderInput) (*Order, error)
}

// RazorpayGateway calls the Razorpay REST API with HTTP basic auth.
// Endpoints used:
//   - POST /v1/customers
//   - POST /v1/orders
type RazorpayGateway struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// NewRazorpayGateway creates a gateway with a 15s default timeout.
func NewRazorpayGateway(baseURL, keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type customerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	FailExisting string `json:"fail_existing"`
}

// CreateCustomer registers a customer. An existing customer with the same
// email is returned instead of failing.
func (g *RazorpayGateway) CreateCustomer(ctx context.Context, name, email string) (*Customer, error) {
	body, err := json.Marshal(customerRequest{Name: name, Email: email, FailExisting: "0"})
	if err != nil {
		return nil, err
	}
	var c Customer
	if err := g.post(ctx, "/v1/customers", body, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateOrder creates a payment order. Currency defaults to INR.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, in OrderInput) (*Order, error) {
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var o Order
	if err := g.post(ctx, "/v1/orders", body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// post sends body to baseURL+path and decodes a 2xx response into out.
func (g *RazorpayGateway) post(ctx context.Context, path string, body []byte, out any) error {
	if g.keyID == "" || g.keySecret == "" {
		return ErrGatewayNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("razorpay post %s: build request: %w", path, err)
	}
	req.Header.Set(headerContentType, mimeJSON)
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay post %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("razorpay post %s: read body: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if desc := gjson.GetBytes(raw, "error.description").String(); desc != "" {
			return fmt.Errorf("razorpay post %s: status %d: %s", path, resp.StatusCode, desc)
		}
		return fmt.Errorf("razorpay post %s: status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("razorpay post %s: decode response: %w", path, err)
	}
	return nil
}
