package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/menumaster-admin/internal/obs"
	"github.com/noah-isme/menumaster-admin/internal/resilience"
)

// HTTPLookup queries the catalog service at GET {base}/skus/{id}.
type HTTPLookup struct {
	baseURL string
	client  resilience.HTTPClient
}

// HTTPConfig configures HTTPLookup.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	Breaker *resilience.Breaker
	Client  *http.Client
}

// NewHTTPLookup constructs an HTTPLookup. The transport is traced with otelhttp.
func NewHTTPLookup(cfg HTTPConfig) (*HTTPLookup, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("catalog: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("catalog: invalid base url: %w", err)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPLookup{
		baseURL: base,
		client:  resilience.HTTPClient{Client: client, Breaker: cfg.Breaker, Timeout: timeout},
	}, nil
}

type skuResponse struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

// SkuCategory implements Lookup. It never retries.
func (l *HTTPLookup) SkuCategory(ctx context.Context, skuID string) (string, error) {
	skuID = strings.TrimSpace(skuID)
	if skuID == "" {
		return "", fmt.Errorf("%w: empty sku id", ErrNotFound)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/skus/"+url.PathEscape(skuID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(ctx, req)
	if err != nil {
		obs.ObserveCatalogLookup("http", "unavailable")
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		obs.ObserveCatalogLookup("http", "not_found")
		return "", fmt.Errorf("%w: %s", ErrNotFound, skuID)
	case resp.StatusCode != http.StatusOK:
		obs.ObserveCatalogLookup("http", "unavailable")
		return "", fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	}

	var payload skuResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		obs.ObserveCatalogLookup("http", "unavailable")
		return "", fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	category := strings.TrimSpace(payload.Category)
	if category == "" {
		obs.ObserveCatalogLookup("http", "not_found")
		return "", fmt.Errorf("%w: %s has no category", ErrNotFound, skuID)
	}
	obs.ObserveCatalogLookup("http", "ok")
	return category, nil
}
