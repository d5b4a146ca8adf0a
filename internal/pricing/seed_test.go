package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeedLoadsSampleRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := Seed(ctx, f.workflow, alice, charlie, SampleRules())
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, StatusApproved, created[0].Status)
	require.True(t, created[0].Active)
	require.Equal(t, StatusPending, created[1].Status)

	price, _, err := ResolvePriceFor(ctx, f.reg, "sku:sku1", 12)
	require.NoError(t, err)
	require.True(t, price.Equal(dec("11.99")))

	again, err := Seed(ctx, f.workflow, alice, charlie, SampleRules())
	require.NoError(t, err)
	require.Empty(t, again)

	_, total, err := f.reg.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestSeedStopsOnWorkflowError(t *testing.T) {
	f := newFixture(t)
	_, err := Seed(context.Background(), f.workflow, alice, alice, SampleRules())
	require.ErrorIs(t, err, ErrForbidden)
}
