package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Registry drivers.
const (
	RegistryMemory   = "memory"
	RegistryPostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	RegistryDriver     string
	RunMigrations      bool
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	IdempotencyTTL     time.Duration

	Auth     AuthConfig
	Catalog  CatalogConfig
	Fraud    FraudConfig
	Kafka    KafkaConfig
	Breaker  BreakerConfig
	Obs      ObsConfig
	Shutdown time.Duration
}

// AuthConfig configures access token verification.
type AuthConfig struct {
	Secret         string
	Issuer         string
	Audience       string
	AccessTokenTTL time.Duration
}

// CatalogConfig selects where SKU categories come from. An empty BaseURL
// falls back to the static catalog, optionally loaded from SeedFile.
type CatalogConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	SeedFile string
}

// FraudConfig configures the external classifier and its per-actor rate limit.
type FraudConfig struct {
	ClassifierURL string
	Timeout       time.Duration
	RateLimit     int
	RateWindow    time.Duration
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// BreakerConfig tunes circuit breakers on outbound calls.
type BreakerConfig struct {
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
}

// ObsConfig carries logging, metrics and tracing settings.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	ServiceName      string
	ServiceVersion   string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		RegistryDriver:     strings.ToLower(strings.TrimSpace(k.String("REGISTRY_DRIVER"))),
		RunMigrations:      parseBool(k.String("DB_RUN_MIGRATIONS"), true),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     parseInt64(k.String("BODY_LIMIT_BYTES"), 1<<20),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		Shutdown:           parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		Auth: AuthConfig{
			Secret:         k.String("JWT_SECRET"),
			Issuer:         strings.TrimSpace(k.String("JWT_ISSUER")),
			Audience:       strings.TrimSpace(k.String("JWT_AUDIENCE")),
			AccessTokenTTL: parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		},
		Catalog: CatalogConfig{
			BaseURL:  strings.TrimRight(strings.TrimSpace(k.String("CATALOG_BASE_URL")), "/"),
			Timeout:  parseDuration(k.String("CATALOG_TIMEOUT"), "2s"),
			CacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
			SeedFile: strings.TrimSpace(k.String("CATALOG_SEED_FILE")),
		},
		Fraud: FraudConfig{
			ClassifierURL: strings.TrimSpace(k.String("FRAUD_CLASSIFIER_URL")),
			Timeout:       parseDuration(k.String("FRAUD_TIMEOUT"), "5s"),
			RateLimit:     int(parseInt64(k.String("FRAUD_RATE_LIMIT"), 10)),
			RateWindow:    parseDuration(k.String("FRAUD_RATE_WINDOW"), "1m"),
		},
		Kafka: KafkaConfig{
			Brokers: splitAndTrim(k.String("KAFKA_BROKERS")),
			Topic:   valueOrDefault(k.String("KAFKA_TOPIC"), "menumaster.pricing-rules"),
		},
		Breaker: BreakerConfig{
			MinRequests:  int(parseInt64(k.String("BREAKER_MIN_REQUESTS"), 10)),
			FailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
			OpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "menumaster"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			ServiceName:      valueOrDefault(k.String("OBS_SERVICE_NAME"), "menumaster-admin"),
			ServiceVersion:   valueOrDefault(k.String("OBS_SERVICE_VERSION"), "dev"),
		},
	}

	if cfg.RegistryDriver == "" {
		cfg.RegistryDriver = RegistryMemory
		if cfg.DatabaseURL != "" {
			cfg.RegistryDriver = RegistryPostgres
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.RegistryDriver {
	case RegistryMemory:
	case RegistryPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres registry"))
		}
	default:
		errs = append(errs, fmt.Errorf("REGISTRY_DRIVER must be %q or %q, got %q", RegistryMemory, RegistryPostgres, c.RegistryDriver))
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		errs = append(errs, errors.New("BREAKER_FAILURE_RATIO must be in (0, 1]"))
	}
	if c.Fraud.RateLimit <= 0 {
		errs = append(errs, errors.New("FRAUD_RATE_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt64(value string, fallback int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
