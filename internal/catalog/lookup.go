package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned when the catalog does not know the SKU.
	ErrNotFound = errors.New("catalog: sku not found")
	// ErrUnavailable wraps transport failures, timeouts and open circuits.
	ErrUnavailable = errors.New("catalog: unavailable")
)

// Lookup resolves the category of a SKU.
type Lookup interface {
	SkuCategory(ctx context.Context, skuID string) (string, error)
}

// SKU is a catalog entry as far as pricing is concerned.
type SKU struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price,omitempty"`
}

// StaticLookup serves categories from an in-memory table.
type StaticLookup struct {
	mu   sync.RWMutex
	skus map[string]SKU
}

// NewStaticLookup builds a lookup over skus.
func NewStaticLookup(skus ...SKU) *StaticLookup {
	l := &StaticLookup{skus: make(map[string]SKU, len(skus))}
	for _, s := range skus {
		l.Put(s)
	}
	return l
}

// LoadStaticLookup reads a JSON array of SKUs from path.
func LoadStaticLookup(path string) (*StaticLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed file: %w", err)
	}
	var skus []SKU
	if err := json.Unmarshal(data, &skus); err != nil {
		return nil, fmt.Errorf("catalog: decode seed file: %w", err)
	}
	return NewStaticLookup(skus...), nil
}

// DefaultSKUs mirrors the sample catalog shipped with the admin portal.
func DefaultSKUs() []SKU {
	return []SKU{
		{ID: "sku1", Name: "Margherita Pizza", Category: "Pizza", Price: 12.99},
		{ID: "sku2", Name: "Pepperoni Pizza", Category: "Pizza", Price: 14.99},
		{ID: "sku3", Name: "Coca-Cola Can", Category: "Beverages", Price: 1.50},
	}
}

// Put adds or replaces a SKU.
func (l *StaticLookup) Put(s SKU) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return
	}
	s.ID = id
	s.Category = strings.TrimSpace(s.Category)
	l.mu.Lock()
	l.skus[id] = s
	l.mu.Unlock()
}

// SkuCategory implements Lookup.
func (l *StaticLookup) SkuCategory(_ context.Context, skuID string) (string, error) {
	l.mu.RLock()
	s, ok := l.skus[strings.TrimSpace(skuID)]
	l.mu.RUnlock()
	if !ok || s.Category == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, skuID)
	}
	return s.Category, nil
}
