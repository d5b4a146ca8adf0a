package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToMemoryRegistry(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"JWT_SECRET":      "secret",
		"DATABASE_URL":    "",
		"REGISTRY_DRIVER": "",
		"CATALOG_TIMEOUT": "750ms",
		"KAFKA_BROKERS":   "k1:9092, k2:9092",
	})
	require.NoError(t, err)
	require.Equal(t, RegistryMemory, cfg.RegistryDriver)
	require.Equal(t, 750*time.Millisecond, cfg.Catalog.Timeout)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 0.5, cfg.Breaker.FailureRatio)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadPicksPostgresWhenDatabaseConfigured(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"JWT_SECRET":      "secret",
		"DATABASE_URL":    "postgres://localhost/menumaster",
		"REGISTRY_DRIVER": "",
	})
	require.NoError(t, err)
	require.Equal(t, RegistryPostgres, cfg.RegistryDriver)
	require.True(t, cfg.RunMigrations)
}

func TestLoadValidates(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"JWT_SECRET":            "",
		"REGISTRY_DRIVER":       "postgres",
		"DATABASE_URL":          "",
		"BREAKER_FAILURE_RATIO": "2",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "JWT_SECRET")
	require.Contains(t, err.Error(), "DATABASE_URL")
	require.Contains(t, err.Error(), "BREAKER_FAILURE_RATIO")
}

func TestParseBoolFallback(t *testing.T) {
	require.True(t, parseBool("", true))
	require.False(t, parseBool("off", true))
	require.True(t, parseBool("YES", false))
}
