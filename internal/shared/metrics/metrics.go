package metrics

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	scansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skinscan",
		Subsystem: "pipeline",
		Name:      "scans_total",
		Help:      "Skin scan requests by outcome (completed, cached, coalesced, quota_denied, quota_unavailable, invalid).",
	}, []string{"outcome"})

	tierTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skinscan",
		Subsystem: "pipeline",
		Name:      "fusion_tier_total",
		Help:      "Fused results by the ladder tier that produced the score.",
	}, []string{"tier"})

	scanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skinscan",
		Subsystem: "pipeline",
		Name:      "scan_duration_seconds",
		Help:      "End-to-end pipeline time per scan.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"outcome"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skinscan",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Scan cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	quotaDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skinscan",
		Subsystem: "quota",
		Name:      "decisions_total",
		Help:      "Quota reservations by decision (allowed, overage, denied, error).",
	}, []string{"decision"})

	modelCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skinscan",
		Subsystem: "vision",
		Name:      "model_calls_total",
		Help:      "External vision model calls by model and result.",
	}, []string{"model", "result"})

	modelLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skinscan",
		Subsystem: "vision",
		Name:      "model_call_duration_seconds",
		Help:      "External vision model call latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
	}, []string{"model"})
)

// Register adds the collectors to the service registry. Safe to call more than once.
func Register() {
	once.Do(func() {
		registry.MustRegister(
			scansTotal,
			tierTotal,
			scanDuration,
			cacheLookups,
			quotaDecisions,
			modelCalls,
			modelLatency,
		)
	})
}

// IncScan counts one scan outcome and records its duration.
func IncScan(outcome string, d time.Duration) {
	scansTotal.WithLabelValues(outcome).Inc()
	scanDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncTier counts a fused result for the given tier.
func IncTier(tier string) {
	tierTotal.WithLabelValues(tier).Inc()
}

// IncCacheLookup counts a cache lookup result.
func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// IncQuotaDecision counts a quota reservation decision.
func IncQuotaDecision(decision string) {
	quotaDecisions.WithLabelValues(decision).Inc()
}

// ObserveModelCall records one external model call.
func ObserveModelCall(model string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	modelCalls.WithLabelValues(model, result).Inc()
	modelLatency.WithLabelValues(model).Observe(d.Seconds())
}

// Gatherer exposes the registry for tests and embedding.
func Gatherer() prometheus.Gatherer {
	return registry
}

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	Register()
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
