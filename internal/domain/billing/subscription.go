package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/pkg/uuid"
)

var (
	// ErrSubscriptionUnsupported is returned for recurring checkouts; plans
	// are created at the provider, not through this service.
	ErrSubscriptionUnsupported = errors.New("subscriptions require server-side setup")
	// ErrInvalidCheckout is returned for an empty price list.
	ErrInvalidCheckout = errors.New("invalid checkout")
)

const entityBilling = "billing"

// Subscription is an agency's subscription as last reported by the provider.
type Subscription struct {
	ID               string    `json:"id"`
	AgencyID         string    `json:"agencyId"`
	Plan             *string   `json:"plan,omitempty"`
	PriceID          string    `json:"priceId"`
	CustomerID       string    `json:"customerId"`
	SubscriptionID   string    `json:"subscriptionId"`
	CurrentPeriodEnd time.Time `json:"currentPeriodEnd"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// UpsertInput is the provider-side state of a subscription.
type UpsertInput struct {
	AgencyID         string
	PriceID          string
	CustomerID       string
	SubscriptionID   string
	CurrentPeriodEnd time.Time
	Active           bool
}

// CheckoutPrice is one line of a checkout. Amount is in major units.
type CheckoutPrice struct {
	ProductID string
	Recurring bool
	Amount    float64
}

// Service manages subscriptions, plan quotas and provider checkouts.
type Service struct {
	db            *sql.DB
	catalog       *Catalog
	gateway       Gateway
	notifier      notification.Notifier
	logger        *zap.Logger
	webhookSecret string
	now           func() time.Time
}

// NewService creates a billing Service. An empty webhookSecret rejects every webhook.
func NewService(db *sql.DB, catalog *Catalog, gateway Gateway, notifier notification.Notifier, logger *zap.Logger, webhookSecret string) *Service {
	return &Service{
		db:            db,
		catalog:       catalog,
		gateway:       gateway,
		notifier:      notifier,
		logger:        logger,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

// Catalog returns the plan catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

const subscriptionColumns = `id, agency_id, plan, price_id, customer_id, subscription_id,
	current_period_end, active, created_at, updated_at`

// Get returns the agency's subscription, or sql.ErrNoRows.
func (s *Service) Get(ctx context.Context, agencyID string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscription WHERE agency_id = ?`, agencyID)
	return scanSubscription(row)
}

// Upsert stores the provider state for in.AgencyID.
func (s *Service) Upsert(ctx context.Context, in UpsertInput) (*Subscription, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.upsertTx(ctx, tx, in); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.Get(ctx, in.AgencyID)
}

func (s *Service) upsertTx(ctx context.Context, tx *sql.Tx, in UpsertInput) error {
	var plan *string
	if p, ok := s.catalog.ByPriceID(in.PriceID); ok {
		plan = &p.ID
	}
	now := sqlite.FormatTime(s.now())
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscription (id, agency_id, plan, price_id, customer_id, subscription_id,
			current_period_end, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agency_id) DO UPDATE SET
			plan = excluded.plan,
			price_id = excluded.price_id,
			customer_id = excluded.customer_id,
			subscription_id = excluded.subscription_id,
			current_period_end = excluded.current_period_end,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, uuid.NewV7().String(), in.AgencyID, plan, in.PriceID, in.CustomerID, in.SubscriptionID,
		sqlite.FormatTime(in.CurrentPeriodEnd), in.Active, now, now)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// Deactivate marks the subscription with the provider id inactive. Unknown
// ids return sql.ErrNoRows.
func (s *Service) Deactivate(ctx context.Context, subscriptionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscription SET active = 0, updated_at = ? WHERE subscription_id = ?
	`, sqlite.FormatTime(s.now()), subscriptionID)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CurrentPlan returns the plan in effect for the agency and whether it comes
// from an active subscription.
func (s *Service) CurrentPlan(ctx context.Context, agencyID string) (Plan, bool, error) {
	sub, err := s.Get(ctx, agencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return s.catalog.Fallback(), false, nil
	}
	if err != nil {
		return Plan{}, false, err
	}
	if !sub.Active || !sub.CurrentPeriodEnd.After(s.now()) {
		return s.catalog.Fallback(), false, nil
	}
	if p, ok := s.catalog.ByPriceID(sub.PriceID); ok {
		return p, true, nil
	}
	return s.catalog.Fallback(), true, nil
}

// MaxSubAccounts returns the sub-account limit of the agency's current plan.
func (s *Service) MaxSubAccounts(ctx context.Context, agencyID string) (int, error) {
	p, _, err := s.CurrentPlan(ctx, agencyID)
	if err != nil {
		return 0, err
	}
	return p.MaxSubAccounts, nil
}

// SweepExpired deactivates active subscriptions whose period has ended and
// returns how many were changed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := sqlite.FormatTime(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscription SET active = 0, updated_at = ? WHERE active = 1 AND current_period_end < ?
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("sweep subscriptions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("expired subscriptions deactivated", zap.Int64("count", n))
	}
	return int(n), nil
}

// EnsureCustomer returns the agency's provider customer id, creating the
// customer on first use.
func (s *Service) EnsureCustomer(ctx context.Context, scope access.Scope) (string, error) {
	if !scope.Role.CanManageAgency() {
		return "", access.ErrForbidden
	}
	var (
		name, email string
		customerID  sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, `
		SELECT name, company_email, customer_id FROM agency WHERE id = ?
	`, scope.AgencyID).Scan(&name, &email, &customerID); err != nil {
		return "", err
	}
	if customerID.Valid && customerID.String != "" {
		return customerID.String, nil
	}

	c, err := s.gateway.CreateCustomer(ctx, name, email)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE agency SET customer_id = ?, updated_at = ? WHERE id = ?
	`, c.ID, sqlite.FormatTime(s.now()), scope.AgencyID); err != nil {
		return "", fmt.Errorf("store customer id: %w", err)
	}

	agencyLevel := scope
	agencyLevel.SubAccountID = ""
	s.notifier.Notify(ctx, notification.NewEvent(agencyLevel, "Connected billing customer", entityBilling, name))
	return c.ID, nil
}

// CreateCheckout creates a one-time payment order for a sub-account. Only the
// first price is charged; recurring prices return ErrSubscriptionUnsupported.
func (s *Service) CreateCheckout(ctx context.Context, scope access.Scope, prices []CheckoutPrice) (*Order, error) {
	if !scope.Role.CanWrite() {
		return nil, access.ErrForbidden
	}
	if len(prices) == 0 {
		return nil, ErrInvalidCheckout
	}
	for _, p := range prices {
		if p.Recurring {
			return nil, ErrSubscriptionUnsupported
		}
	}
	amount := math.Max(0, prices[0].Amount)

	order, err := s.gateway.CreateOrder(ctx, OrderInput{
		Amount:   int64(math.Round(amount * 100)),
		Currency: defaultCurrency,
		Receipt:  "sa_" + uuid.Short(8) + "_" + strconv.FormatInt(s.now().UnixMilli(), 10),
		Notes:    map[string]string{"subAccountId": scope.SubAccountID},
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

func scanSubscription(row interface{ Scan(...any) error }) (*Subscription, error) {
	var (
		sub                         Subscription
		plan                        sql.NullString
		periodEnd, createdAt, updAt string
	)
	if err := row.Scan(&sub.ID, &sub.AgencyID, &plan, &sub.PriceID, &sub.CustomerID, &sub.SubscriptionID,
		&periodEnd, &sub.Active, &createdAt, &updAt); err != nil {
		return nil, err
	}
	if plan.Valid {
		sub.Plan = &plan.String
	}
	sub.CurrentPeriodEnd = sqlite.ParseTime(periodEnd)
	sub.CreatedAt = sqlite.ParseTime(createdAt)
	sub.UpdatedAt = sqlite.ParseTime(updAt)
	return &sub, nil
}
