package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/menumaster-admin/internal/catalog"
)

func TestStaticLookup(t *testing.T) {
	lookup := catalog.NewStaticLookup(catalog.DefaultSKUs()...)
	category, err := lookup.SkuCategory(context.Background(), "sku3")
	require.NoError(t, err)
	require.Equal(t, "Beverages", category)

	_, err = lookup.SkuCategory(context.Background(), "sku404")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestLoadStaticLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skus.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"sku9","name":"Garlic Bread","category":"Sides"}]`), 0o600))
	lookup, err := catalog.LoadStaticLookup(path)
	require.NoError(t, err)
	category, err := lookup.SkuCategory(context.Background(), "sku9")
	require.NoError(t, err)
	require.Equal(t, "Sides", category)

	_, err = catalog.LoadStaticLookup(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func newCatalogServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		switch r.URL.Path {
		case "/skus/sku1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"sku1","category":"Pizza"}`))
		case "/skus/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPLookup(t *testing.T) {
	var calls int32
	srv := newCatalogServer(t, &calls)
	lookup, err := catalog.NewHTTPLookup(catalog.HTTPConfig{BaseURL: srv.URL + "/", Timeout: time.Second, Client: srv.Client()})
	require.NoError(t, err)

	category, err := lookup.SkuCategory(context.Background(), "sku1")
	require.NoError(t, err)
	require.Equal(t, "Pizza", category)

	_, err = lookup.SkuCategory(context.Background(), "sku404")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = lookup.SkuCategory(context.Background(), "broken")
	require.ErrorIs(t, err, catalog.ErrUnavailable)
	require.False(t, errors.Is(err, catalog.ErrNotFound))
	require.Equal(t, int32(3), atomic.LoadInt32(&calls), "each lookup is attempted exactly once")
}

func TestCachedLookupCachesHitsOnly(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	var calls int32
	srv := newCatalogServer(t, &calls)
	origin, err := catalog.NewHTTPLookup(catalog.HTTPConfig{BaseURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	cached := catalog.CachedLookup{Origin: origin, Cache: catalog.NewCache(client, time.Minute)}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		category, err := cached.SkuCategory(ctx, "sku1")
		require.NoError(t, err)
		require.Equal(t, "Pizza", category)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	for i := 0; i < 2; i++ {
		_, err := cached.SkuCategory(ctx, "sku404")
		require.ErrorIs(t, err, catalog.ErrNotFound)
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&calls), "misses are never cached")

	mr.FastForward(2 * time.Minute)
	_, err = cached.SkuCategory(ctx, "sku1")
	require.NoError(t, err)
	require.Equal(t, int32(4), atomic.LoadInt32(&calls), "expired entries go back to origin")
}

func TestCachedLookupSurvivesRedisOutage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	cached := catalog.CachedLookup{
		Origin: catalog.NewStaticLookup(catalog.DefaultSKUs()...),
		Cache:  catalog.NewCache(client, time.Minute),
	}
	category, err := cached.SkuCategory(context.Background(), "sku2")
	require.NoError(t, err)
	require.Equal(t, "Pizza", category)
}
