package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		providerCallsLatencyMs,
		providerPollAttempts,
		providerErrorsTotal,
		providerThrottledTotal,
	)
}

var (
	providerCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_calls_latency_ms",
			Help:    "Provider generate call latency distribution in milliseconds.",
			Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 20000, 40000, 80000, 160000},
		},
		[]string{"provider", "success"},
	)

	providerPollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_poll_attempts_total",
			Help: "Status polls issued against async providers, labeled by outcome.",
		},
		[]string{"provider", "outcome"}, // pending, done, failed, transient
	)

	providerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Provider failures by error kind (provider, timeout, normalization, internal).",
		},
		[]string{"provider", "kind"},
	)

	providerThrottledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_throttled_total",
			Help: "Calls that waited on the per-provider limiter.",
		},
		[]string{"provider"},
	)
)

func ObserveProviderCall(provider string, latencyMs int64, success bool) {
	providerCallsLatencyMs.WithLabelValues(norm(provider), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncPollAttempt(provider, outcome string) {
	providerPollAttempts.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func IncProviderError(provider, kind string) {
	providerErrorsTotal.WithLabelValues(norm(provider), norm(kind)).Inc()
}

func IncThrottled(provider string) {
	providerThrottledTotal.WithLabelValues(norm(provider)).Inc()
}
