package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "console"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	ProxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "proxy_requests_total", Help: "Proxied requests by route and relayed status."},
		[]string{"route", "status"},
	)
	ProxyUpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "proxy_upstream_duration_seconds", Help: "Time spent waiting on the backend.", Buckets: prometheus.DefBuckets},
		[]string{"route"},
	)
	SessionRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "session_refresh_total", Help: "Token renewal attempts by trigger and result."},
		[]string{"path", "result"},
	)
	GuardRedirects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "guard_redirects_total", Help: "Redirects to login by cause."},
		[]string{"cause"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ProxyRequests)
	reg.MustRegister(ProxyUpstreamDuration)
	reg.MustRegister(SessionRefreshTotal)
	reg.MustRegister(GuardRedirects)
}
