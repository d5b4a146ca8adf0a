package pricing

import "github.com/shopspring/decimal"

// Quote is the priced outcome of a quantity under one rule.
type Quote struct {
	Quantity  int64            `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unitPrice"`
	Subtotal  decimal.Decimal  `json:"subtotal"`
	ListPrice *decimal.Decimal `json:"listPrice,omitempty"`
	Savings   decimal.Decimal  `json:"savings"`
}

// Compute prices quantity at unitPrice. When the rule carries a base price the
// quote also reports the undiscounted list price and the savings against it.
func Compute(quantity int64, unitPrice decimal.Decimal, basePrice *decimal.Decimal) Quote {
	q := Quote{Quantity: quantity, UnitPrice: unitPrice, Savings: decimal.Zero}
	if quantity <= 0 {
		q.Subtotal = decimal.Zero
		return q
	}
	qty := decimal.NewFromInt(quantity)
	q.Subtotal = unitPrice.Mul(qty)
	if basePrice != nil {
		list := basePrice.Mul(qty)
		q.ListPrice = &list
		if savings := list.Sub(q.Subtotal); savings.IsPositive() {
			q.Savings = savings
		}
	}
	return q
}
