package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/menumaster-admin/internal/obs"
)

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("menumaster", registry)
	obs.MustRegisterDomainMetrics("menumaster", registry)

	obs.ObserveRuleTransition("approve", "ok")
	obs.ObserveRuleTransition("approve", "stale_version")
	obs.ObserveRuleTransition("approve", "ok")
	obs.ObservePriceResolution("sku", "ok")
	obs.ObserveInvariantViolation()

	require.Equal(t, float64(2), testutil.ToFloat64(obs.RuleTransitionsTotal.WithLabelValues("approve", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.RuleTransitionsTotal.WithLabelValues("approve", "stale_version")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.PriceResolutionsTotal.WithLabelValues("sku", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.InvariantViolationsTotal))

	count, err := testutil.GatherAndCount(registry, "menumaster_pricing_rule_transitions_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
