package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/menumaster-admin/internal/obs"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// CachedLookup fronts another Lookup with the Redis cache. Only successful
// lookups are cached; cache failures fall through to the origin.
type CachedLookup struct {
	Origin Lookup
	Cache  *Cache
	Logger zerolog.Logger
}

type cachedCategory struct {
	Category string `json:"category"`
}

func cacheKey(skuID string) string { return "catalog:sku-category:" + skuID }

// SkuCategory implements Lookup.
func (l CachedLookup) SkuCategory(ctx context.Context, skuID string) (string, error) {
	var hit cachedCategory
	found, err := l.Cache.GetJSON(ctx, cacheKey(skuID), &hit)
	if err != nil {
		l.Logger.Warn().Err(err).Str("sku_id", skuID).Msg("catalog cache read failed")
	}
	if found && hit.Category != "" {
		obs.ObserveCatalogLookup("cache", "hit")
		return hit.Category, nil
	}
	obs.ObserveCatalogLookup("cache", "miss")

	category, err := l.Origin.SkuCategory(ctx, skuID)
	if err != nil {
		return "", err
	}
	if err := l.Cache.SetJSON(ctx, cacheKey(skuID), cachedCategory{Category: category}); err != nil {
		l.Logger.Warn().Err(err).Str("sku_id", skuID).Msg("catalog cache write failed")
	}
	return category, nil
}
