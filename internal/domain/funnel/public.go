package funnel

import (
	"context"
	"strings"
)

// PublishedFunnel is the public view of a funnel: details and ordered pages.
type PublishedFunnel struct {
	*Funnel
	Pages []*Page `json:"pages"`
}

// GetPublished returns the published funnel served under subdomain, or
// sql.ErrNoRows when none exists or it is not published.
func (s *Service) GetPublished(ctx context.Context, subdomain string) (*PublishedFunnel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+funnelColumns+` FROM funnel WHERE sub_domain_name = ? AND published = 1`,
		strings.ToLower(subdomain))
	f, err := scanFunnel(row)
	if err != nil {
		return nil, err
	}
	pages, err := s.queryPages(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	return &PublishedFunnel{Funnel: f, Pages: pages}, nil
}

// PublishedPageExists returns sql.ErrNoRows unless pageID is a page of the
// published funnel served under subdomain.
func (s *Service) PublishedPageExists(ctx context.Context, subdomain, pageID string) error {
	var one int
	return s.db.QueryRowContext(ctx, `
		SELECT 1 FROM funnel_page fp JOIN funnel f ON f.id = fp.funnel_id
		WHERE fp.id = ? AND f.sub_domain_name = ? AND f.published = 1
	`, pageID, strings.ToLower(subdomain)).Scan(&one)
}
