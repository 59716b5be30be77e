// Package dashboard computes the read-only summaries shown on the agency and
// sub-account home screens.
package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/billing"
)

// PlanSource reports the plan in effect for an agency.
type PlanSource interface {
	CurrentPlan(ctx context.Context, agencyID string) (billing.Plan, bool, error)
}

// AgencyStats summarises an agency.
type AgencyStats struct {
	SubAccounts        int          `json:"subAccounts"`
	Goal               int          `json:"goal"`
	Plan               billing.Plan `json:"plan"`
	SubscriptionActive bool         `json:"subscriptionActive"`
	PipelineValue      float64      `json:"pipelineValue"`
	Contacts           int          `json:"contacts"`
}

// LaneValue is the ticket total of one lane.
type LaneValue struct {
	LaneID  string  `json:"laneId"`
	Name    string  `json:"name"`
	Tickets int     `json:"tickets"`
	Value   float64 `json:"value"`
}

// SubAccountStats summarises a sub-account. PipelineID is the pipeline the
// lane breakdown was computed for; empty when the sub-account has none.
type SubAccountStats struct {
	Contacts      int         `json:"contacts"`
	Funnels       int         `json:"funnels"`
	Pipelines     int         `json:"pipelines"`
	Tickets       int         `json:"tickets"`
	Goal          int         `json:"goal"`
	PipelineID    string      `json:"pipelineId,omitempty"`
	PipelineValue float64     `json:"pipelineValue"`
	Lanes         []LaneValue `json:"lanes"`
}

// Service computes dashboard statistics.
type Service struct {
	db    *sql.DB
	plans PlanSource
}

// NewService creates a dashboard Service.
func NewService(db *sql.DB, plans PlanSource) *Service {
	return &Service{db: db, plans: plans}
}

// AgencyStats returns the agency summary. Sub-account roles only count the
// sub-accounts they can access.
func (s *Service) AgencyStats(ctx context.Context, scope access.Scope) (*AgencyStats, error) {
	var st AgencyStats
	if err := s.db.QueryRowContext(ctx, `SELECT goal FROM agency WHERE id = ?`, scope.AgencyID).Scan(&st.Goal); err != nil {
		return nil, err
	}

	f := access.SubAccountFilter(scope, "sa.id")
	args := append([]any{scope.AgencyID}, f.Args...)
	where := access.And("sa.agency_id = ?", f.Where)

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sub_account sa WHERE `+where, args...).Scan(&st.SubAccounts); err != nil {
		return nil, fmt.Errorf("count sub-accounts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM contact c JOIN sub_account sa ON sa.id = c.sub_account_id WHERE `+where,
		args...).Scan(&st.Contacts); err != nil {
		return nil, fmt.Errorf("count contacts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(t.value), 0)
		FROM ticket t
		JOIN lane l ON l.id = t.lane_id
		JOIN pipeline p ON p.id = l.pipeline_id
		JOIN sub_account sa ON sa.id = p.sub_account_id
		WHERE `+where, args...).Scan(&st.PipelineValue); err != nil {
		return nil, fmt.Errorf("sum pipeline value: %w", err)
	}

	plan, active, err := s.plans.CurrentPlan(ctx, scope.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("current plan: %w", err)
	}
	st.Plan = plan
	st.SubscriptionActive = active
	return &st, nil
}

// SubAccountStats returns the sub-account summary. pipelineID selects the
// pipeline for the lane breakdown; empty picks the oldest pipeline.
func (s *Service) SubAccountStats(ctx context.Context, scope access.Scope, pipelineID string) (*SubAccountStats, error) {
	st := SubAccountStats{Lanes: make([]LaneValue, 0)}
	if err := s.db.QueryRowContext(ctx, `
		SELECT goal,
			(SELECT COUNT(*) FROM contact WHERE sub_account_id = sa.id),
			(SELECT COUNT(*) FROM funnel WHERE sub_account_id = sa.id),
			(SELECT COUNT(*) FROM pipeline WHERE sub_account_id = sa.id),
			(SELECT COUNT(*) FROM ticket t JOIN lane l ON l.id = t.lane_id
				JOIN pipeline p ON p.id = l.pipeline_id WHERE p.sub_account_id = sa.id)
		FROM sub_account sa WHERE sa.id = ?
	`, scope.SubAccountID).Scan(&st.Goal, &st.Contacts, &st.Funnels, &st.Pipelines, &st.Tickets); err != nil {
		return nil, err
	}

	if pipelineID == "" {
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM pipeline WHERE sub_account_id = ? ORDER BY created_at, id LIMIT 1
		`, scope.SubAccountID).Scan(&pipelineID)
		if errors.Is(err, sql.ErrNoRows) {
			return &st, nil
		}
		if err != nil {
			return nil, fmt.Errorf("default pipeline: %w", err)
		}
	} else {
		var one int
		if err := s.db.QueryRowContext(ctx, `
			SELECT 1 FROM pipeline WHERE id = ? AND sub_account_id = ?
		`, pipelineID, scope.SubAccountID).Scan(&one); err != nil {
			return nil, err
		}
	}
	st.PipelineID = pipelineID

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.name, COUNT(t.id), COALESCE(SUM(t.value), 0)
		FROM lane l
		LEFT JOIN ticket t ON t.lane_id = l.id
		WHERE l.pipeline_id = ?
		GROUP BY l.id
		ORDER BY l.position, l.id
	`, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("lane values: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lv LaneValue
		if err := rows.Scan(&lv.LaneID, &lv.Name, &lv.Tickets, &lv.Value); err != nil {
			return nil, err
		}
		st.PipelineValue += lv.Value
		st.Lanes = append(st.Lanes, lv)
	}
	return &st, rows.Err()
}
