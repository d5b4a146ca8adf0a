package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// RuleTransitionsTotal counts approval workflow operations by outcome.
	RuleTransitionsTotal *prometheus.CounterVec
	// PriceResolutionsTotal counts price lookups by winning precedence level and outcome.
	PriceResolutionsTotal *prometheus.CounterVec
	// InvariantViolationsTotal counts detected registry bookkeeping bugs.
	InvariantViolationsTotal prometheus.Counter
	// CatalogLookupsTotal counts SKU category lookups by source.
	CatalogLookupsTotal *prometheus.CounterVec
	// FraudChecksTotal counts classifier calls by verdict.
	FraudChecksTotal *prometheus.CounterVec
	// EventPublishTotal counts domain event deliveries per publisher.
	EventPublishTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		RuleTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_rule_transitions_total",
			Help:      "Count of pricing rule workflow operations by action and result.",
		}, []string{"action", "result"})
		PriceResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_resolutions_total",
			Help:      "Count of price resolutions by precedence level and result.",
		}, []string{"level", "result"})
		InvariantViolationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_invariant_violations_total",
			Help:      "Number of registry invariant violations detected.",
		})
		CatalogLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookups_total",
			Help:      "Count of SKU category lookups by source and result.",
		}, []string{"source", "result"})
		FraudChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_checks_total",
			Help:      "Count of fraud classifier calls by result.",
		}, []string{"result"})
		EventPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Count of domain event publish attempts by publisher and result.",
		}, []string{"publisher", "result"})

		mustRegisterCollector(reg, RuleTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RuleTransitionsTotal = v
			}
		})
		mustRegisterCollector(reg, PriceResolutionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceResolutionsTotal = v
			}
		})
		mustRegisterCollector(reg, InvariantViolationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				InvariantViolationsTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogLookupsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CatalogLookupsTotal = v
			}
		})
		mustRegisterCollector(reg, FraudChecksTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FraudChecksTotal = v
			}
		})
		mustRegisterCollector(reg, EventPublishTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				EventPublishTotal = v
			}
		})
	})
}

// The helpers below are no-ops until MustRegisterDomainMetrics has run.

// ObserveRuleTransition records one workflow operation.
func ObserveRuleTransition(action, result string) {
	if RuleTransitionsTotal != nil {
		RuleTransitionsTotal.WithLabelValues(action, result).Inc()
	}
}

// ObservePriceResolution records one price lookup.
func ObservePriceResolution(level, result string) {
	if PriceResolutionsTotal != nil {
		PriceResolutionsTotal.WithLabelValues(level, result).Inc()
	}
}

// ObserveInvariantViolation bumps the invariant violation counter.
func ObserveInvariantViolation() {
	if InvariantViolationsTotal != nil {
		InvariantViolationsTotal.Inc()
	}
}

// ObserveCatalogLookup records one catalog lookup.
func ObserveCatalogLookup(source, result string) {
	if CatalogLookupsTotal != nil {
		CatalogLookupsTotal.WithLabelValues(source, result).Inc()
	}
}

// ObserveFraudCheck records one classifier call.
func ObserveFraudCheck(result string) {
	if FraudChecksTotal != nil {
		FraudChecksTotal.WithLabelValues(result).Inc()
	}
}

// ObserveEventPublish records one publish attempt.
func ObserveEventPublish(publisher, result string) {
	if EventPublishTotal != nil {
		EventPublishTotal.WithLabelValues(publisher, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
