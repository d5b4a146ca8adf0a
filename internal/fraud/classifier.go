package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/menumaster-admin/internal/resilience"
)

// ErrUnavailable wraps transport failures, timeouts and open circuits.
var ErrUnavailable = errors.New("fraud: classifier unavailable")

// Input is the restaurant account evidence sent for assessment.
type Input struct {
	KYCInfo            string `json:"kycInfo" validate:"required,max=20000"`
	TransactionHistory string `json:"transactionHistory" validate:"required,max=50000"`
}

// Verdict is the classifier's assessment of an account.
type Verdict struct {
	IsFraudulent bool   `json:"isFraudulent"`
	Reason       string `json:"fraudulentReason"`
}

// Classifier assesses whether an account looks fraudulent.
type Classifier interface {
	Classify(ctx context.Context, in Input) (Verdict, error)
}

// HTTPConfig configures HTTPClassifier.
type HTTPConfig struct {
	URL     string
	Timeout time.Duration
	Breaker *resilience.Breaker
	Client  *http.Client
}

// HTTPClassifier posts Input as JSON to an external model endpoint and
// expects a Verdict back. Calls are attempted once.
type HTTPClassifier struct {
	url    string
	client resilience.HTTPClient
}

// NewHTTPClassifier constructs an HTTPClassifier with an otelhttp transport.
func NewHTTPClassifier(cfg HTTPConfig) (*HTTPClassifier, error) {
	target := strings.TrimSpace(cfg.URL)
	if target == "" {
		return nil, errors.New("fraud: classifier url is required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClassifier{
		url:    target,
		client: resilience.HTTPClient{Client: client, Breaker: cfg.Breaker, Timeout: timeout},
	}, nil
}

// Classify implements Classifier.
func (c *HTTPClassifier) Classify(ctx context.Context, in Input) (Verdict, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return Verdict{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	}

	var verdict Verdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	verdict.Reason = strings.TrimSpace(verdict.Reason)
	return verdict, nil
}
