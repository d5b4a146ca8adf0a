package pricing

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func menuSlabs() []Slab {
	return []Slab{
		{From: 11, To: Bound(20), PricePerUnit: dec("11.99")},
		{From: 1, To: Bound(10), PricePerUnit: dec("12.99")},
	}
}

func TestResolvePriceBySlab(t *testing.T) {
	slabs, err := ValidateSlabs(menuSlabs())
	require.NoError(t, err)
	require.Equal(t, int64(1), slabs[0].From, "slabs must come back sorted")

	cases := []struct {
		qty  int64
		want string
	}{
		{1, "12.99"},
		{5, "12.99"},
		{10, "12.99"},
		{11, "11.99"},
		{15, "11.99"},
		{20, "11.99"},
	}
	for _, tc := range cases {
		price, err := ResolvePrice(slabs, tc.qty)
		require.NoError(t, err, "qty %d", tc.qty)
		require.True(t, price.Equal(dec(tc.want)), "qty %d: got %s want %s", tc.qty, price, tc.want)
	}
}

func TestResolvePriceOutsideSlabs(t *testing.T) {
	slabs, err := ValidateSlabs(menuSlabs())
	require.NoError(t, err)
	for _, qty := range []int64{25, 0, -3} {
		_, err := ResolvePrice(slabs, qty)
		require.ErrorIs(t, err, ErrNoMatchingSlab, "qty %d", qty)
	}
}

func TestResolvePriceGap(t *testing.T) {
	slabs, err := ValidateSlabs([]Slab{
		{From: 1, To: Bound(5), PricePerUnit: dec("3")},
		{From: 10, PricePerUnit: dec("2")},
	})
	require.NoError(t, err)

	_, err = ResolvePrice(slabs, 7)
	require.ErrorIs(t, err, ErrNoMatchingSlab)

	price, err := ResolvePrice(slabs, 1_000_000)
	require.NoError(t, err)
	require.True(t, price.Equal(dec("2")))
}

func TestValidateSlabsRejects(t *testing.T) {
	cases := map[string][]Slab{
		"empty":              nil,
		"from below one":     {{From: 0, To: Bound(5), PricePerUnit: dec("1")}},
		"to before from":     {{From: 5, To: Bound(4), PricePerUnit: dec("1")}},
		"negative price":     {{From: 1, To: Bound(4), PricePerUnit: dec("-0.01")}},
		"unbounded not last": {{From: 1, PricePerUnit: dec("1")}, {From: 10, To: Bound(20), PricePerUnit: dec("1")}},
		"overlap":            {{From: 1, To: Bound(10), PricePerUnit: dec("1")}, {From: 10, To: Bound(20), PricePerUnit: dec("1")}},
		"two unbounded":      {{From: 1, PricePerUnit: dec("1")}, {From: 5, PricePerUnit: dec("1")}},
	}
	for name, slabs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateSlabs(slabs)
			require.ErrorIs(t, err, ErrInvalidSlabConfiguration)
		})
	}
}

func TestValidateSlabsReportsOffendingSlab(t *testing.T) {
	_, err := ValidateSlabs([]Slab{
		{From: 1, To: Bound(10), PricePerUnit: dec("1")},
		{From: 8, To: Bound(12), PricePerUnit: dec("1")},
	})
	perr, ok := ErrorContext(err)
	require.True(t, ok)
	require.NotNil(t, perr.Slab)
	require.Equal(t, int64(8), perr.Slab.From)
	require.Equal(t, 1, perr.SlabIndex)
}

func TestValidateSlabsDoesNotMutateInput(t *testing.T) {
	in := menuSlabs()
	out, err := ValidateSlabs(in)
	require.NoError(t, err)
	require.Equal(t, int64(11), in[0].From)
	*out[0].To = 99
	require.Equal(t, int64(20), *in[0].To)
}

func TestValidateSlabsAllowsFreeTier(t *testing.T) {
	_, err := ValidateSlabs([]Slab{{From: 1, To: Bound(1), PricePerUnit: decimal.Zero}})
	require.NoError(t, err)
}

func TestSlabJSONUnbounded(t *testing.T) {
	var slabs []Slab
	raw := `[{"from":1,"to":10,"pricePerUnit":"12.99"},{"from":11,"to":0,"pricePerUnit":"11.99"},{"from":50,"pricePerUnit":"9"}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &slabs))
	require.True(t, slabs[0].Bounded())
	require.False(t, slabs[1].Bounded())
	require.False(t, slabs[2].Bounded())

	out, err := json.Marshal(slabs[1])
	require.NoError(t, err)
	require.JSONEq(t, `{"from":11,"to":null,"pricePerUnit":"11.99"}`, string(out))
}

func TestErrorMessageCarriesContext(t *testing.T) {
	err := newError(ErrStaleVersion, "expected version 1").withRule("r1").withScope("sku:sku1")
	require.True(t, errors.Is(err, ErrStaleVersion))
	require.Contains(t, err.Error(), "rule=r1")
	require.Contains(t, err.Error(), "scope=sku:sku1")
}

func TestValidateSlabsReportsInputPosition(t *testing.T) {
	_, err := ValidateSlabs([]Slab{
		{From: 11, To: Bound(20), PricePerUnit: dec("0.90")},
		{From: 21, PricePerUnit: dec("0.80")},
		{From: 1, To: Bound(11), PricePerUnit: dec("1")},
	})
	perr, ok := ErrorContext(err)
	require.True(t, ok)
	require.Equal(t, int64(11), perr.Slab.From)
	require.Equal(t, 0, perr.SlabIndex)

	_, err = ValidateSlabs([]Slab{
		{From: 50, PricePerUnit: dec("0.50")},
		{From: 1, PricePerUnit: dec("1")},
	})
	perr, ok = ErrorContext(err)
	require.True(t, ok)
	require.Nil(t, perr.Slab.To)
	require.Equal(t, int64(1), perr.Slab.From)
	require.Equal(t, 1, perr.SlabIndex)
}
