package dashboard

import (
	"context"
	"database/sql"
	"strings"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
)

// Launchpad is the onboarding checklist of a sub-account.
type Launchpad struct {
	DetailsComplete  bool `json:"detailsComplete"`
	PaymentConnected bool `json:"paymentConnected"`
	HasFunnel        bool `json:"hasFunnel"`
	HasPipeline      bool `json:"hasPipeline"`
	Done             bool `json:"done"`
}

// Launchpad returns the checklist for the scoped sub-account.
func (s *Service) Launchpad(ctx context.Context, scope access.Scope) (*Launchpad, error) {
	var (
		fields             [9]string
		connectAccountID   sql.NullString
		funnels, pipelines int
	)
	if err := s.db.QueryRowContext(ctx, `
		SELECT name, company_email, company_phone, address, city, zip_code, state, country,
			sub_account_logo, connect_account_id,
			(SELECT COUNT(*) FROM funnel WHERE sub_account_id = sa.id),
			(SELECT COUNT(*) FROM pipeline WHERE sub_account_id = sa.id)
		FROM sub_account sa WHERE sa.id = ?
	`, scope.SubAccountID).Scan(&fields[0], &fields[1], &fields[2], &fields[3], &fields[4], &fields[5],
		&fields[6], &fields[7], &fields[8], &connectAccountID, &funnels, &pipelines); err != nil {
		return nil, err
	}

	lp := Launchpad{
		DetailsComplete:  true,
		PaymentConnected: connectAccountID.Valid && connectAccountID.String != "",
		HasFunnel:        funnels > 0,
		HasPipeline:      pipelines > 0,
	}
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			lp.DetailsComplete = false
			break
		}
	}
	lp.Done = lp.DetailsComplete && lp.PaymentConnected && lp.HasFunnel && lp.HasPipeline
	return &lp, nil
}
