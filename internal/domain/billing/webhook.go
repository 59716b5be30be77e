package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/metrics"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
)

const providerRazorpay = "razorpay"

var (
	// ErrWebhookNotConfigured is returned when no webhook secret is set.
	ErrWebhookNotConfigured = errors.New("webhook secret not configured")
	// ErrInvalidSignature is returned when the signature does not match the body.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrInvalidPayload is returned for a signed body that is not JSON.
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

// Webhook outcomes, also used as metric labels.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// WebhookResult reports what a delivery did.
type WebhookResult struct {
	EventID string `json:"eventId"`
	Event   string `json:"event"`
	Outcome string `json:"outcome"`
}

// subscriptionStates maps provider events to the resulting active flag.
var subscriptionStates = map[string]bool{
	"subscription.activated": true,
	"subscription.charged":   true,
	"subscription.resumed":   true,
	"subscription.cancelled": false,
	"subscription.halted":    false,
	"subscription.completed": false,
	"subscription.paused":    false,
}

// VerifySignature reports whether signature is the HMAC-SHA256 of body under
// secret, encoded as hex or base64.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sum := mac.Sum(nil)

	sig := strings.TrimSpace(signature)
	if sig == "" {
		return false
	}
	if decoded, err := hex.DecodeString(sig); err == nil && hmac.Equal(decoded, sum) {
		return true
	}
	if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil && hmac.Equal(decoded, sum) {
		return true
	}
	return false
}

// HandleWebhook verifies and applies one provider delivery. eventID is the
// provider's event id header; when empty the body digest is used. Replayed
// events return OutcomeDuplicate without touching subscriptions.
func (s *Service) HandleWebhook(ctx context.Context, signature, eventID string, body []byte) (res WebhookResult, err error) {
	res.Event = gjson.GetBytes(body, "event").String()
	defer func() {
		outcome := res.Outcome
		switch {
		case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrWebhookNotConfigured):
			outcome = "rejected"
		case err != nil:
			outcome = "error"
		}
		metrics.RecordWebhookEvent(res.Event, outcome)
	}()

	if s.webhookSecret == "" {
		return res, ErrWebhookNotConfigured
	}
	if !VerifySignature(s.webhookSecret, body, signature) {
		return res, ErrInvalidSignature
	}
	if !gjson.ValidBytes(body) {
		return res, ErrInvalidPayload
	}
	if eventID == "" {
		digest := sha256.Sum256(body)
		eventID = hex.EncodeToString(digest[:])
	}
	res.EventID = eventID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO webhook_event (id, provider, event_type, received_at) VALUES (?, ?, ?, ?)
	`, eventID, providerRazorpay, res.Event, sqlite.FormatTime(s.now()))
	if sqlite.IsUniqueViolation(err) {
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("record webhook event: %w", err)
	}

	res.Outcome, err = s.applySubscriptionEvent(ctx, tx, res.Event, body)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

func (s *Service) applySubscriptionEvent(ctx context.Context, tx *sql.Tx, event string, body []byte) (string, error) {
	active, ok := subscriptionStates[event]
	if !ok {
		return OutcomeIgnored, nil
	}

	entity := gjson.GetBytes(body, "payload.subscription.entity")
	subscriptionID := entity.Get("id").String()
	customerID := entity.Get("customer_id").String()
	if subscriptionID == "" || customerID == "" {
		s.logger.Warn("webhook subscription without ids", zap.String("event", event))
		return OutcomeIgnored, nil
	}

	var agencyID string
	err := tx.QueryRowContext(ctx, `SELECT id FROM agency WHERE customer_id = ?`, customerID).Scan(&agencyID)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("webhook for unknown customer",
			zap.String("event", event),
			zap.String("customer_id", customerID),
		)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("find agency by customer: %w", err)
	}

	periodEnd := s.now()
	if end := entity.Get("current_end").Int(); end > 0 {
		periodEnd = time.Unix(end, 0)
	} else if active {
		periodEnd = periodEnd.AddDate(0, 1, 0)
	}

	if err := s.upsertTx(ctx, tx, UpsertInput{
		AgencyID:         agencyID,
		PriceID:          entity.Get("plan_id").String(),
		CustomerID:       customerID,
		SubscriptionID:   subscriptionID,
		CurrentPeriodEnd: periodEnd,
		Active:           active,
	}); err != nil {
		return "", err
	}
	s.logger.Info("subscription updated from webhook",
		zap.String("event", event),
		zap.String("agency_id", agencyID),
		zap.Bool("active", active),
	)
	return OutcomeProcessed, nil
}
