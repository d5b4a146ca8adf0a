package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/menumaster-admin/internal/auth"
	"github.com/noah-isme/menumaster-admin/internal/catalog"
	"github.com/noah-isme/menumaster-admin/internal/fraud"
	"github.com/noah-isme/menumaster-admin/internal/health"
	"github.com/noah-isme/menumaster-admin/internal/pricing"
)

type okClassifier struct{}

func (okClassifier) Classify(context.Context, fraud.Input) (fraud.Verdict, error) {
	return fraud.Verdict{Reason: "steady history"}, nil
}

type testAPI struct {
	handler http.Handler
	auth    *auth.Service
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	authService, err := auth.NewService(auth.Config{Secret: "router-test-secret"})
	require.NoError(t, err)

	registry := pricing.NewMemoryRegistry()
	workflow, err := pricing.NewWorkflow(pricing.WorkflowConfig{Registry: registry, Logger: zerolog.Nop()})
	require.NoError(t, err)

	handler := newRouter(routerDeps{
		Logger: zerolog.Nop(),
		Auth:   authService,
		Pricing: pricing.NewHandler(pricing.HandlerConfig{
			Workflow: workflow,
			Resolver: pricing.Resolver{Registry: registry, Catalog: catalog.NewStaticLookup(catalog.DefaultSKUs()...)},
			Logger:   zerolog.Nop(),
		}),
		History:        registry,
		Fraud:          fraud.Handler{Classifier: okClassifier{}, Logger: zerolog.Nop()},
		Health:         health.Handler{},
		Redis:          client,
		BodyLimit:      1 << 20,
		IdempotencyTTL: time.Hour,
		FraudLimit:     1,
		FraudWindow:    time.Minute,
	})
	return testAPI{handler: handler, auth: authService}
}

func (a testAPI) call(t *testing.T, method, path string, actor *auth.Actor, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, _, err := a.auth.IssueAccessToken(*actor)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

var (
	maker   = &auth.Actor{ID: "priya", Role: auth.RoleMaker}
	checker = &auth.Actor{ID: "marco", Role: auth.RoleChecker}
)

const draftBody = `{"name":"Standard Pizza Pricing","scope":{"type":"sku","value":"sku1"},
	"slabs":[{"from":1,"to":10,"pricePerUnit":"12.99"},{"from":11,"to":20,"pricePerUnit":"11.99"}]}`

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Error.Code
}

func TestRouterRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	rr := api.call(t, http.MethodGet, "/api/v1/pricing-rules", nil, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = api.call(t, http.MethodGet, "/health/live", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterMakerCheckerFlow(t *testing.T) {
	api := newTestAPI(t)

	rr := api.call(t, http.MethodPost, "/api/v1/pricing-rules", checker, draftBody)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.call(t, http.MethodPost, "/api/v1/pricing-rules", maker, draftBody, "Idempotency-Key", "create-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Data pricing.PricingRule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	rr = api.call(t, http.MethodPost, "/api/v1/pricing-rules", maker, draftBody, "Idempotency-Key", "create-1")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "IDEMPOTENT_REPLAY", errorCode(t, rr))

	approvePath := "/api/v1/pricing-rules/" + created.Data.ID + "/approve"
	rr = api.call(t, http.MethodPost, approvePath, maker, `{"version":1}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.call(t, http.MethodPost, approvePath, checker, `{"version":1}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = api.call(t, http.MethodGet, "/api/v1/pricing-rules/"+created.Data.ID+"/history", checker, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Total   int `json:"total"`
		Entries []struct {
			Action  string `json:"action"`
			ActorID string `json:"actorId"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.Equal(t, 2, history.Total)
	require.Equal(t, "approved", history.Entries[1].Action)
	require.Equal(t, "marco", history.Entries[1].ActorID)

	rr = api.call(t, http.MethodGet, "/api/v1/skus/sku1/price?quantity=12", maker, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"unitPrice":"11.99"`)

	rr = api.call(t, http.MethodGet, "/api/v1/pricing-rules/missing/history", checker, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "RULE_NOT_FOUND", errorCode(t, rr))
}

func TestRouterFraudEndpoint(t *testing.T) {
	api := newTestAPI(t)
	body := `{"kycInfo":"registered 2019","transactionHistory":"steady orders"}`

	rr := api.call(t, http.MethodPost, "/api/v1/fraud/flag", maker, body)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.call(t, http.MethodPost, "/api/v1/fraud/flag", checker, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = api.call(t, http.MethodPost, "/api/v1/fraud/flag", checker, body)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "RATE_LIMITED", errorCode(t, rr))
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}
