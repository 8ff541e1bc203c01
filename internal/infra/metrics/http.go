package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestsTotal, submitRejectedTotal) }

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "API requests by route pattern and status code.",
		},
		[]string{"route", "code"},
	)

	submitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_submit_rejected_total",
			Help: "Submissions rejected synchronously, by reason.",
		},
		[]string{"reason"}, // validation, configuration, rate_limited
	)
)

func IncHTTPRequest(route string, code int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func IncSubmitRejected(reason string) {
	submitRejectedTotal.WithLabelValues(norm(reason)).Inc()
}
