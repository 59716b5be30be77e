// Package billing keeps each agency's subscription in sync with the payment
// provider and maps it onto a plan from the embedded catalog.
package billing

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var plansYAML []byte

// Plan is one entry of the plan catalog.
type Plan struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	PriceID        string `yaml:"priceId" json:"priceId"`
	Amount         int64  `yaml:"amount" json:"amount"`
	Currency       string `yaml:"currency" json:"currency"`
	MaxSubAccounts int    `yaml:"maxSubAccounts" json:"maxSubAccounts"`
}

// Catalog is the ordered plan list. The first plan is the fallback plan.
type Catalog struct {
	plans []Plan
}

// ParseCatalog decodes a YAML plan catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(doc.Plans) == 0 {
		return nil, errors.New("parse plan catalog: no plans")
	}
	seen := make(map[string]bool, len(doc.Plans))
	for _, p := range doc.Plans {
		if p.ID == "" {
			return nil, errors.New("parse plan catalog: plan without id")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("parse plan catalog: duplicate plan %q", p.ID)
		}
		seen[p.ID] = true
		if p.MaxSubAccounts < 0 {
			return nil, fmt.Errorf("parse plan catalog: plan %q has negative maxSubAccounts", p.ID)
		}
	}
	return &Catalog{plans: doc.Plans}, nil
}

// DefaultCatalog returns the embedded catalog. It panics if plans.yaml is
// malformed, which a unit test guards against.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(plansYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Plans returns a copy of every plan in catalog order.
func (c *Catalog) Plans() []Plan {
	return append([]Plan(nil), c.plans...)
}

// Fallback is the plan of agencies without an active subscription.
func (c *Catalog) Fallback() Plan {
	return c.plans[0]
}

// ByPriceID finds the plan billed under priceID. Unknown price ids map to no plan.
func (c *Catalog) ByPriceID(priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range c.plans {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}
