package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/menumaster-admin/internal/audit"
	"github.com/noah-isme/menumaster-admin/internal/auth"
	"github.com/noah-isme/menumaster-admin/internal/common"
	"github.com/noah-isme/menumaster-admin/internal/fraud"
	"github.com/noah-isme/menumaster-admin/internal/health"
	"github.com/noah-isme/menumaster-admin/internal/obs"
	"github.com/noah-isme/menumaster-admin/internal/pricing"
	"github.com/noah-isme/menumaster-admin/internal/ratelimit"
	"github.com/noah-isme/menumaster-admin/internal/security"
)

// routerDeps is everything newRouter mounts.
type routerDeps struct {
	Logger         zerolog.Logger
	Auth           *auth.Service
	Pricing        *pricing.Handler
	History        audit.HistoryReader
	Fraud          fraud.Handler
	Health         health.Handler
	Redis          *redis.Client
	HTTPMetrics    *obs.HTTPMetrics
	Tracing        bool
	Metrics        bool
	AllowedOrigins []string
	BodyLimit      int64
	IdempotencyTTL time.Duration
	FraudLimit     int
	FraudWindow    time.Duration
	HSTS           bool
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: d.HSTS, HSTSMaxAge: 31536000, HSTSIncludeSubdomains: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(d.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if d.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	authMiddleware := auth.Middleware{Service: d.Auth}
	idem := common.Idem{R: d.Redis, TTL: d.IdempotencyTTL}
	history := audit.Handler{Reader: d.History, MapError: pricing.HTTPError}
	fraudLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: d.Redis, Prefix: "rl:"},
		Config:  ratelimit.Config{Key: ratelimit.ByActor("fraud"), Window: d.FraudWindow, Max: d.FraudLimit},
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: d.BodyLimit}.Middleware)
		v.Use(audit.RequestMeta)
		v.Use(authMiddleware.RequireAuth)

		v.Route("/pricing-rules", func(pr chi.Router) {
			pr.Get("/", d.Pricing.List)
			pr.Get("/{id}", d.Pricing.Get)
			pr.Get("/{id}/history", history.List)

			pr.Group(func(makers chi.Router) {
				makers.Use(auth.RequireRole(auth.RoleMaker, auth.RoleAdmin))
				makers.With(idem.Middleware).Post("/", d.Pricing.Create)
				makers.Put("/{id}", d.Pricing.Update)
			})
			pr.Group(func(checkers chi.Router) {
				checkers.Use(auth.RequireRole(auth.RoleChecker, auth.RoleAdmin))
				checkers.Post("/{id}/approve", d.Pricing.Approve)
				checkers.Post("/{id}/reject", d.Pricing.Reject)
			})
		})

		v.Get("/prices", d.Pricing.PriceForScope)
		v.Get("/skus/{skuId}/price", d.Pricing.PriceForSku)

		v.With(auth.RequireRole(auth.RoleAdmin, auth.RoleChecker), fraudLimit.Middleware).
			Post("/fraud/flag", d.Fraud.Flag)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
