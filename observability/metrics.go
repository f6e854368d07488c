package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once
	registry    *prometheus.Registry

	actionTotal     *prometheus.CounterVec
	actionErrors    *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	matchedVolume   *prometheus.CounterVec
	scaledDeltaSize *prometheus.GaugeVec
	idleSupplySize  *prometheus.GaugeVec
)

func initMetrics() {
	registry = prometheus.NewRegistry()

	actionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerlend",
		Name:      "actions_total",
		Help:      "Accounting operations processed, by action and outcome.",
	}, []string{"action", "outcome"})
	actionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerlend",
		Name:      "action_errors_total",
		Help:      "Failed accounting operations, by action and error kind.",
	}, []string{"action", "kind"})
	actionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peerlend",
		Name:      "action_duration_seconds",
		Help:      "Accounting operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})
	matchedVolume = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerlend",
		Name:      "matched_volume_total",
		Help:      "Underlying volume routed to peers versus the pool.",
	}, []string{"action", "route"})
	scaledDeltaSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "peerlend",
		Name:      "scaled_delta",
		Help:      "Scaled delta per market side.",
	}, []string{"asset", "side"})
	idleSupplySize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "peerlend",
		Name:      "idle_supply",
		Help:      "Idle supply per market, underlying units.",
	}, []string{"asset"})

	registry.MustRegister(actionTotal, actionErrors, actionDuration, matchedVolume, scaledDeltaSize, idleSupplySize)
}

// Registry returns the process-wide metrics registry, initialising it on first
// use.
func Registry() *prometheus.Registry {
	metricsOnce.Do(initMetrics)
	return registry
}

// ObserveAction records one completed operation.
func ObserveAction(action, outcome string, seconds float64) {
	metricsOnce.Do(initMetrics)
	actionTotal.WithLabelValues(action, outcome).Inc()
	actionDuration.WithLabelValues(action).Observe(seconds)
}

// ObserveActionError records a failed operation by error kind.
func ObserveActionError(action, kind string) {
	metricsOnce.Do(initMetrics)
	actionErrors.WithLabelValues(action, kind).Inc()
}

// ObserveRouting records how an operation's amount split between peers and the
// pool, in underlying units scaled to float.
func ObserveRouting(action string, toPeer, toPool float64) {
	metricsOnce.Do(initMetrics)
	matchedVolume.WithLabelValues(action, "peer").Add(toPeer)
	matchedVolume.WithLabelValues(action, "pool").Add(toPool)
}

// SetScaledDelta publishes the current scaled delta for one market side.
func SetScaledDelta(asset, side string, value float64) {
	metricsOnce.Do(initMetrics)
	scaledDeltaSize.WithLabelValues(asset, side).Set(value)
}

// SetIdleSupply publishes the current idle supply for a market.
func SetIdleSupply(asset string, value float64) {
	metricsOnce.Do(initMetrics)
	idleSupplySize.WithLabelValues(asset).Set(value)
}
