package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/menumaster-admin/internal/audit"
)

// ListFilter narrows Registry.List. Zero values match everything.
type ListFilter struct {
	Status    Status
	ScopeKey  string
	CreatedBy string
	Limit     int
	Offset    int
}

// Registry owns every pricing rule. All mutations go through Upsert so the
// version check, scope index, supersession and history stay in one critical section.
type Registry interface {
	Get(ctx context.Context, id string) (PricingRule, error)
	List(ctx context.Context, filter ListFilter) ([]PricingRule, int, error)
	// Upsert inserts rule when expectedVersion is 0 and otherwise replaces it only if
	// the stored version matches. The entry is appended to the rule history.
	Upsert(ctx context.Context, rule PricingRule, expectedVersion int64, entry audit.Entry) (PricingRule, error)
	ActiveRuleFor(ctx context.Context, scopeKey string) (PricingRule, bool, error)
	History(ctx context.Context, id string) ([]audit.Entry, error)
}

// ResolvePriceFor composes ActiveRuleFor and ResolvePrice.
func ResolvePriceFor(ctx context.Context, reg Registry, scopeKey string, quantity int64) (decimal.Decimal, PricingRule, error) {
	rule, found, err := reg.ActiveRuleFor(ctx, scopeKey)
	if err != nil {
		return decimal.Zero, PricingRule{}, err
	}
	if !found {
		return decimal.Zero, PricingRule{}, newError(ErrNoActiveRule, "").withScope(scopeKey)
	}
	price, err := ResolvePrice(rule.Slabs, quantity)
	if err != nil {
		if perr, ok := ErrorContext(err); ok {
			perr.RuleID = rule.ID
			perr.ScopeKey = scopeKey
		}
		return decimal.Zero, rule, err
	}
	return price, rule, nil
}

// CheckWritable validates the status flags of a rule about to be stored.
func CheckWritable(rule PricingRule) error {
	if rule.ID == "" {
		return newError(ErrInvalidDraft, "rule id is required")
	}
	if rule.Scope.Key() == "" {
		return newError(ErrInvalidDraft, "scope is required").withRule(rule.ID)
	}
	if rule.Active && rule.Status != StatusApproved {
		return newError(ErrInvariantViolation, fmt.Sprintf("%s rule cannot be active", rule.Status)).withRule(rule.ID)
	}
	return nil
}

// SupersessionEntry is the history record appended to a rule displaced by replacement.
func SupersessionEntry(trigger audit.Entry, displaced PricingRule, replacement string) audit.Entry {
	return audit.Entry{
		RuleID:     displaced.ID,
		Action:     audit.ActionSuperseded,
		ActorID:    trigger.ActorID,
		ActorRole:  trigger.ActorRole,
		FromStatus: string(StatusApproved),
		ToStatus:   string(StatusApproved),
		Reason:     "superseded by " + replacement,
		Version:    displaced.Version,
		At:         trigger.At,
		RequestID:  trigger.RequestID,
		ClientIP:   trigger.ClientIP,
	}
}

// StaleVersionError reports a version mismatch on rule id.
func StaleVersionError(id string, expected, stored int64) error {
	return newError(ErrStaleVersion, fmt.Sprintf("expected version %d, stored version is %d", expected, stored)).withRule(id)
}

// DuplicatePendingError reports that existing already occupies the pending slot.
func DuplicatePendingError(existing PricingRule) error {
	return newError(ErrDuplicatePendingRule, fmt.Sprintf("rule %s is already pending for %s", existing.ID, existing.CreatedBy)).
		withRule(existing.ID).withScope(existing.Scope.Key())
}

// RuleNotFoundError reports an unknown rule id.
func RuleNotFoundError(id string) error {
	return newError(ErrRuleNotFound, "").withRule(id)
}

// MultipleActiveError reports more than one active rule on a scope key.
func MultipleActiveError(scopeKey string, ids []string) error {
	return newError(ErrInvariantViolation, fmt.Sprintf("%d active rules: %v", len(ids), ids)).withScope(scopeKey)
}
