package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "meteretl_gateway"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served.",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	grpcUpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "grpc_upstream_requests_total",
			Help:      "Total number of upstream gRPC calls made by the HTTP gateway.",
		},
		[]string{"method", "code"},
	)
	grpcUpstreamDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "grpc_upstream_duration_seconds",
			Help:      "Upstream gRPC call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func observeHTTPRequest(r *http.Request, status int, dur time.Duration) {
	route := routeLabel(r.URL.Path)
	method := r.Method

	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route, method).Observe(dur.Seconds())
}

func observeUpstreamGRPC(method, code string, dur time.Duration) {
	grpcUpstreamRequestsTotal.WithLabelValues(method, code).Inc()
	grpcUpstreamDurationSeconds.WithLabelValues(method).Observe(dur.Seconds())
}

func routeLabel(path string) string {
	switch path {
	case "/":
		return "index"
	case "/api/active-agreements":
		return "api_active_agreements"
	case "/api/halfhourly":
		return "api_halfhourly"
	case "/api/daily-product":
		return "api_daily_product"
	case "/healthz":
		return "healthz"
	case "/metrics":
		return "metrics"
	}
	if rest, ok := strings.CutPrefix(path, "/api/meterpoints/"); ok {
		if id, ok := strings.CutSuffix(rest, "/agreements"); ok && id != "" && !strings.Contains(id, "/") {
			return "api_meterpoint_agreements"
		}
	}
	return "other"
}
