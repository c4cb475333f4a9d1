package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmgateway_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "farmgateway_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmgateway_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"domain"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmgateway_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"domain"},
	)

	KeyPoolErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmgateway_keypool_errors_total",
			Help: "Total number of credential throttling errors recorded",
		},
	)

	KeyPoolDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmgateway_keypool_degraded_total",
			Help: "Times all credentials were in cooldown and one was force-reused",
		},
	)

	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmgateway_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmgateway_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmgateway_upstream_errors_total",
			Help: "Total number of upstream provider errors",
		},
		[]string{"error_type"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "farmgateway_active_streams",
			Help: "Number of active chat streaming connections",
		},
	)

	TelegramMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmgateway_telegram_messages_total",
			Help: "Total number of Telegram messages handled",
		},
		[]string{"kind"},
	)
)

func RecordRequest(endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(durationSec)
}

func RecordCacheHit(domain string)  { CacheHits.WithLabelValues(domain).Inc() }
func RecordCacheMiss(domain string) { CacheMisses.WithLabelValues(domain).Inc() }

func RecordTool(tool, status string) {
	ToolExecutions.WithLabelValues(tool, status).Inc()
}
