package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the approval state of a pricing rule.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus accepts the lowercase and capitalised forms used by the portal.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusRejected:
		return StatusRejected, true
	default:
		return "", false
	}
}

// PricingRule is a slab price list for one scope together with its approval state.
// Active is true only for the approved rule currently used for its scope key.
type PricingRule struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Scope           Scope            `json:"scope"`
	BasePrice       *decimal.Decimal `json:"basePrice,omitempty"`
	Slabs           []Slab           `json:"slabs"`
	Status          Status           `json:"status"`
	CreatedBy       string           `json:"createdBy"`
	// SubmittedBy authored the content currently under review or in force.
	SubmittedBy     string           `json:"submittedBy"`
	ApprovedBy      *string          `json:"approvedBy,omitempty"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	Version         int64            `json:"version"`
	Active          bool             `json:"active"`
	Supersedes      *string          `json:"supersedes,omitempty"`
	SupersededBy    *string          `json:"supersededBy,omitempty"`
}

// Clone returns a deep copy so callers never share slices or pointers with the registry.
func (r PricingRule) Clone() PricingRule {
	out := r
	out.Slabs = cloneSlabs(r.Slabs)
	if r.BasePrice != nil {
		price := *r.BasePrice
		out.BasePrice = &price
	}
	out.ApprovedBy = cloneString(r.ApprovedBy)
	out.Supersedes = cloneString(r.Supersedes)
	out.SupersededBy = cloneString(r.SupersededBy)
	return out
}

// Draft is the maker-supplied content of a rule.
type Draft struct {
	Name      string
	Scope     Scope
	BasePrice *decimal.Decimal
	Slabs     []Slab
}

// Normalize validates the draft and returns it with a trimmed name and sorted slabs.
func (d Draft) Normalize() (Draft, error) {
	out := Draft{Name: strings.TrimSpace(d.Name), Scope: d.Scope}
	if out.Name == "" {
		return Draft{}, newError(ErrInvalidDraft, "name is required")
	}
	if err := d.Scope.Validate(); err != nil {
		return Draft{}, err
	}
	if d.BasePrice != nil {
		if d.BasePrice.IsNegative() {
			return Draft{}, newError(ErrInvalidDraft, "base price must not be negative").withScope(d.Scope.Key())
		}
		price := *d.BasePrice
		out.BasePrice = &price
	}
	slabs, err := ValidateSlabs(d.Slabs)
	if err != nil {
		if perr, ok := ErrorContext(err); ok {
			perr.ScopeKey = d.Scope.Key()
		}
		return Draft{}, err
	}
	out.Slabs = slabs
	return out, nil
}

// sameContent reports whether the rule already holds the normalized draft.
func (r PricingRule) sameContent(d Draft) bool {
	if r.Name != d.Name || r.Scope != d.Scope {
		return false
	}
	switch {
	case r.BasePrice == nil && d.BasePrice == nil:
	case r.BasePrice == nil || d.BasePrice == nil:
		return false
	case !r.BasePrice.Equal(*d.BasePrice):
		return false
	}
	return slabsEqual(r.Slabs, d.Slabs)
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
