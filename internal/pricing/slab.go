package pricing

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Slab is a quantity range charged at a single unit price. A nil To means the
// slab has no upper bound.
type Slab struct {
	From         int64
	To           *int64
	PricePerUnit decimal.Decimal
}

// Bounded reports whether the slab has an upper limit.
func (s Slab) Bounded() bool { return s.To != nil }

// Contains reports whether quantity falls inside the slab range.
func (s Slab) Contains(quantity int64) bool {
	if quantity < s.From {
		return false
	}
	return s.To == nil || quantity <= *s.To
}

func (s Slab) String() string {
	upper := "∞"
	if s.To != nil {
		upper = fmt.Sprintf("%d", *s.To)
	}
	return fmt.Sprintf("[%d,%s]@%s", s.From, upper, s.PricePerUnit.String())
}

func (s Slab) equal(o Slab) bool {
	if s.From != o.From || !s.PricePerUnit.Equal(o.PricePerUnit) {
		return false
	}
	if s.To == nil || o.To == nil {
		return s.To == nil && o.To == nil
	}
	return *s.To == *o.To
}

type slabJSON struct {
	From         int64           `json:"from"`
	To           *int64          `json:"to"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
}

// MarshalJSON renders an unbounded slab with "to": null.
func (s Slab) MarshalJSON() ([]byte, error) {
	return json.Marshal(slabJSON{From: s.From, To: s.To, PricePerUnit: s.PricePerUnit})
}

// UnmarshalJSON accepts a missing, null or zero "to" as unbounded.
func (s *Slab) UnmarshalJSON(data []byte) error {
	var raw slabJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.From = raw.From
	s.PricePerUnit = raw.PricePerUnit
	s.To = nil
	if raw.To != nil && *raw.To != 0 {
		to := *raw.To
		s.To = &to
	}
	return nil
}

// Bound is a convenience for building bounded slabs.
func Bound(to int64) *int64 { return &to }

// ValidateSlabs checks the slab list and returns a copy sorted by From.
func ValidateSlabs(slabs []Slab) ([]Slab, error) {
	if len(slabs) == 0 {
		return nil, newError(ErrInvalidSlabConfiguration, "at least one slab is required")
	}
	for i, s := range slabs {
		if s.From < 1 {
			return nil, newError(ErrInvalidSlabConfiguration, "from must be at least 1").withSlab(i, s)
		}
		if s.To != nil && *s.To < s.From {
			return nil, newError(ErrInvalidSlabConfiguration, "from must not exceed to").withSlab(i, s)
		}
		if s.PricePerUnit.IsNegative() {
			return nil, newError(ErrInvalidSlabConfiguration, "price per unit must not be negative").withSlab(i, s)
		}
	}

	// order holds input positions so errors name the row the caller sent
	copied := cloneSlabs(slabs)
	order := make([]int, len(slabs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return slabs[order[a]].From < slabs[order[b]].From })
	sorted := make([]Slab, len(order))
	for i, pos := range order {
		sorted[i] = copied[pos]
	}
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.To == nil {
			return nil, newError(ErrInvalidSlabConfiguration, "only the last slab may be unbounded").withSlab(order[i-1], prev)
		}
		if *prev.To >= cur.From {
			return nil, newError(ErrInvalidSlabConfiguration, fmt.Sprintf("overlaps slab %s", prev.String())).withSlab(order[i], cur)
		}
	}
	return sorted, nil
}

// ResolvePrice returns the unit price of the slab containing quantity. The
// slabs must already be validated, which keeps them sorted and disjoint.
func ResolvePrice(slabs []Slab, quantity int64) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, newError(ErrNoMatchingSlab, fmt.Sprintf("quantity %d must be positive", quantity))
	}
	// first slab starting after quantity; the candidate is the one before it
	idx := sort.Search(len(slabs), func(i int) bool { return slabs[i].From > quantity })
	if idx == 0 {
		return decimal.Zero, newError(ErrNoMatchingSlab, fmt.Sprintf("quantity %d is below the first slab", quantity))
	}
	candidate := slabs[idx-1]
	if !candidate.Contains(quantity) {
		return decimal.Zero, newError(ErrNoMatchingSlab, fmt.Sprintf("quantity %d is not covered by any slab", quantity))
	}
	return candidate.PricePerUnit, nil
}

func cloneSlabs(slabs []Slab) []Slab {
	out := make([]Slab, len(slabs))
	for i, s := range slabs {
		out[i] = Slab{From: s.From, PricePerUnit: s.PricePerUnit}
		if s.To != nil {
			to := *s.To
			out[i].To = &to
		}
	}
	return out
}

func slabsEqual(a, b []Slab) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}
