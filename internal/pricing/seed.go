package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/menumaster-admin/internal/auth"
)

// SampleRule is one rule of the demo data set and whether it ships approved.
type SampleRule struct {
	Draft    Draft
	Approved bool
}

// SampleRules returns the portal's demo pricing rules.
func SampleRules() []SampleRule {
	pizzaBase := decimal.RequireFromString("12.99")
	return []SampleRule{
		{
			Draft: Draft{
				Name:      "Standard Pizza Pricing",
				Scope:     SkuScope("sku1"),
				BasePrice: &pizzaBase,
				Slabs: []Slab{
					{From: 1, To: Bound(10), PricePerUnit: decimal.RequireFromString("12.99")},
					{From: 11, To: Bound(20), PricePerUnit: decimal.RequireFromString("11.99")},
				},
			},
			Approved: true,
		},
		{
			Draft: Draft{
				Name:  "Bulk Beverage Offer",
				Scope: CategoryScope("Beverages"),
				Slabs: []Slab{
					{From: 1, To: Bound(50), PricePerUnit: decimal.RequireFromString("1.50")},
					{From: 51, To: Bound(200), PricePerUnit: decimal.RequireFromString("1.25")},
					{From: 201, To: Bound(500), PricePerUnit: decimal.RequireFromString("1.00")},
				},
			},
		},
	}
}

// Seed submits every sample as maker and approves the ones marked Approved as
// checker. Samples whose name already exists on their scope are skipped, so
// running it twice is harmless.
func Seed(ctx context.Context, wf *Workflow, maker, checker auth.Actor, samples []SampleRule) ([]PricingRule, error) {
	var created []PricingRule
	for _, sample := range samples {
		exists, err := sampleExists(ctx, wf.Registry(), sample.Draft)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		rule, err := wf.Submit(ctx, maker, sample.Draft)
		if err != nil {
			return created, fmt.Errorf("seed %q: %w", sample.Draft.Name, err)
		}
		if sample.Approved {
			rule, err = wf.Approve(ctx, checker, rule.ID, rule.Version)
			if err != nil {
				return created, fmt.Errorf("approve %q: %w", sample.Draft.Name, err)
			}
		}
		created = append(created, rule)
	}
	return created, nil
}

func sampleExists(ctx context.Context, reg Registry, d Draft) (bool, error) {
	rules, _, err := reg.List(ctx, ListFilter{ScopeKey: d.Scope.Key()})
	if err != nil {
		return false, err
	}
	for _, r := range rules {
		if r.Name == d.Name {
			return true, nil
		}
	}
	return false, nil
}
