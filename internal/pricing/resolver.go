package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/menumaster-admin/internal/catalog"
	"github.com/noah-isme/menumaster-admin/internal/obs"
)

// Resolution is the outcome of a price lookup.
type Resolution struct {
	RuleID   string    `json:"ruleId"`
	RuleName string    `json:"ruleName"`
	Scope    Scope     `json:"scope"`
	Level    ScopeKind `json:"level"`
	Quote    Quote     `json:"quote"`
}

// Resolver answers price queries from the registry, consulting the catalog
// for a SKU's category only when no SKU-level rule is active.
type Resolver struct {
	Registry Registry
	Catalog  catalog.Lookup
}

// PriceForScope resolves the active rule of one scope key.
func (r Resolver) PriceForScope(ctx context.Context, scopeKey string, quantity int64) (Resolution, error) {
	scope, err := ParseScopeKey(scopeKey)
	if err != nil {
		return Resolution{}, err
	}
	res, err := r.resolve(ctx, scope, quantity)
	obs.ObservePriceResolution(string(scope.Kind()), ResultLabel(err))
	return res, err
}

// PriceForSku applies SKU > category > global precedence. The first level with
// an active rule decides the outcome, including NoMatchingSlab. Catalog errors
// are returned as is.
func (r Resolver) PriceForSku(ctx context.Context, skuID string, quantity int64) (Resolution, error) {
	res, level, err := r.priceForSku(ctx, skuID, quantity)
	obs.ObservePriceResolution(level, ResultLabel(err))
	return res, err
}

func (r Resolver) priceForSku(ctx context.Context, skuID string, quantity int64) (Resolution, string, error) {
	sku := SkuScope(skuID)
	if err := sku.Validate(); err != nil {
		return Resolution{}, "none", err
	}
	if res, found, err := r.tryScope(ctx, sku, quantity); found || err != nil {
		return res, string(ScopeSku), err
	}

	if r.Catalog == nil {
		return Resolution{}, "none", errors.New("pricing: catalog lookup not configured")
	}
	category, err := r.Catalog.SkuCategory(ctx, sku.Value())
	if err != nil {
		return Resolution{}, "catalog", fmt.Errorf("resolve category of %s: %w", sku.Value(), err)
	}
	if res, found, err := r.tryScope(ctx, CategoryScope(category), quantity); found || err != nil {
		return res, string(ScopeCategory), err
	}
	if res, found, err := r.tryScope(ctx, GlobalScope(), quantity); found || err != nil {
		return res, string(ScopeGlobal), err
	}
	detail := fmt.Sprintf("no sku, category %q or global rule is active", category)
	return Resolution{}, "none", newError(ErrNoActiveRule, detail).withScope(sku.Key())
}

// tryScope reports found=false only when the scope has no active rule.
func (r Resolver) tryScope(ctx context.Context, scope Scope, quantity int64) (Resolution, bool, error) {
	rule, found, err := r.Registry.ActiveRuleFor(ctx, scope.Key())
	if err != nil || !found {
		return Resolution{}, found, err
	}
	res, err := quoteRule(rule, scope, quantity)
	return res, true, err
}

func (r Resolver) resolve(ctx context.Context, scope Scope, quantity int64) (Resolution, error) {
	price, rule, err := ResolvePriceFor(ctx, r.Registry, scope.Key(), quantity)
	if err != nil {
		return Resolution{}, err
	}
	return newResolution(rule, scope, quantity, price), nil
}

func quoteRule(rule PricingRule, scope Scope, quantity int64) (Resolution, error) {
	price, err := ResolvePrice(rule.Slabs, quantity)
	if err != nil {
		if perr, ok := ErrorContext(err); ok {
			perr.RuleID = rule.ID
			perr.ScopeKey = scope.Key()
		}
		return Resolution{}, err
	}
	return newResolution(rule, scope, quantity, price), nil
}

func newResolution(rule PricingRule, scope Scope, quantity int64, price decimal.Decimal) Resolution {
	return Resolution{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Scope:    rule.Scope,
		Level:    scope.Kind(),
		Quote:    Compute(quantity, price, rule.BasePrice),
	}
}
