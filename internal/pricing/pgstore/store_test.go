package pgstore_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/menumaster-admin/internal/audit"
	"github.com/noah-isme/menumaster-admin/internal/auth"
	"github.com/noah-isme/menumaster-admin/internal/pricing"
	"github.com/noah-isme/menumaster-admin/internal/pricing/pgstore"
)

// newStore connects to PRICING_TEST_DATABASE_URL and starts from empty tables.
func newStore(t *testing.T) (*pgstore.Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("PRICING_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PRICING_TEST_DATABASE_URL not set")
	}
	require.NoError(t, pgstore.Migrate(dsn))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, `TRUNCATE pricing_rule_history, pricing_rules`)
	require.NoError(t, err)
	return pgstore.New(pool), pool
}

func newWorkflow(t *testing.T, reg pricing.Registry) *pricing.Workflow {
	t.Helper()
	var seq int
	var mu sync.Mutex
	wf, err := pricing.NewWorkflow(pricing.WorkflowConfig{
		Registry: reg,
		Logger:   zerolog.Nop(),
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("pg-rule-%d", seq)
		},
	})
	require.NoError(t, err)
	return wf
}

var (
	maker   = auth.Actor{ID: "maker-1", Role: auth.RoleMaker}
	checker = auth.Actor{ID: "checker-1", Role: auth.RoleChecker}
	admin   = auth.Actor{ID: "admin-1", Role: auth.RoleAdmin}
)

func pizzaDraft() pricing.Draft {
	base := decimal.RequireFromString("14.99")
	return pricing.Draft{
		Name:      "Standard Pizza Pricing",
		Scope:     pricing.SkuScope("sku1"),
		BasePrice: &base,
		Slabs: []pricing.Slab{
			{From: 1, To: pricing.Bound(10), PricePerUnit: decimal.RequireFromString("12.99")},
			{From: 11, To: pricing.Bound(20), PricePerUnit: decimal.RequireFromString("11.99")},
		},
	}
}

func TestStoreLifecycle(t *testing.T) {
	store, _ := newStore(t)
	wf := newWorkflow(t, store)
	ctx := context.Background()

	rule, err := wf.Submit(ctx, maker, pizzaDraft())
	require.NoError(t, err)
	require.Equal(t, int64(1), rule.Version)

	_, err = wf.Submit(ctx, maker, pizzaDraft())
	require.ErrorIs(t, err, pricing.ErrDuplicatePendingRule)

	approved, err := wf.Approve(ctx, checker, rule.ID, rule.Version)
	require.NoError(t, err)
	require.True(t, approved.Active)
	require.Equal(t, int64(2), approved.Version)

	stored, err := store.Get(ctx, rule.ID)
	require.NoError(t, err)
	require.True(t, stored.BasePrice.Equal(decimal.RequireFromString("14.99")))
	require.Len(t, stored.Slabs, 2)
	require.Equal(t, pricing.SkuScope("sku1"), stored.Scope)
	require.Equal(t, maker.ID, stored.SubmittedBy)

	price, _, err := pricing.ResolvePriceFor(ctx, store, "sku:sku1", 15)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("11.99")))

	_, err = wf.Approve(ctx, checker, rule.ID, approved.Version)
	require.ErrorIs(t, err, pricing.ErrInvalidTransition)
}

func TestStoreSupersedesActiveRule(t *testing.T) {
	store, _ := newStore(t)
	wf := newWorkflow(t, store)
	ctx := context.Background()

	first, err := wf.Submit(ctx, maker, pizzaDraft())
	require.NoError(t, err)
	first, err = wf.Approve(ctx, checker, first.ID, first.Version)
	require.NoError(t, err)

	second, err := wf.Submit(ctx, maker, pizzaDraft())
	require.NoError(t, err)
	second, err = wf.Approve(ctx, admin, second.ID, second.Version)
	require.NoError(t, err)
	require.Equal(t, first.ID, *second.Supersedes)

	active, found, err := store.ActiveRuleFor(ctx, "sku:sku1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, second.ID, active.ID)

	displaced, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	require.False(t, displaced.Active)
	require.Equal(t, second.ID, *displaced.SupersededBy)

	history, err := store.History(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, audit.ActionSuperseded, history[2].Action)
}

func TestStoreConcurrentApprovals(t *testing.T) {
	store, _ := newStore(t)
	wf := newWorkflow(t, store)
	ctx := context.Background()

	rule, err := wf.Submit(ctx, maker, pizzaDraft())
	require.NoError(t, err)

	checkers := []auth.Actor{checker, {ID: "checker-2", Role: auth.RoleChecker}, admin}
	errs := make([]error, len(checkers))
	var wg sync.WaitGroup
	for i, actor := range checkers {
		wg.Add(1)
		go func(i int, actor auth.Actor) {
			defer wg.Done()
			_, errs[i] = wf.Approve(ctx, actor, rule.ID, rule.Version)
		}(i, actor)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, pricing.ErrStaleVersion)
	}
	require.Equal(t, 1, succeeded)
}

func TestStoreListAndNotFound(t *testing.T) {
	store, _ := newStore(t)
	wf := newWorkflow(t, store)
	ctx := context.Background()

	_, err := wf.Submit(ctx, maker, pizzaDraft())
	require.NoError(t, err)
	drinks := pizzaDraft()
	drinks.Name = "Bulk Beverage Offer"
	drinks.Scope = pricing.CategoryScope("Beverages")
	_, err = wf.Submit(ctx, maker, drinks)
	require.NoError(t, err)

	rules, total, err := store.List(ctx, pricing.ListFilter{ScopeKey: "category:Beverages"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "Bulk Beverage Offer", rules[0].Name)

	rules, total, err = store.List(ctx, pricing.ListFilter{Status: pricing.StatusPending, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, rules, 1)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, pricing.ErrRuleNotFound)
	_, err = store.History(ctx, "missing")
	require.ErrorIs(t, err, pricing.ErrRuleNotFound)
}
