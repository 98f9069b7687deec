package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lastday_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CacheLookups counts cache-aside lookups by key group and result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lastday_cache_lookups_total",
		Help: "Cache-aside lookups by key group and result",
	}, []string{"group", "result"})

	// CommunityTransactions counts coordinator transactions by operation and outcome.
	CommunityTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lastday_community_transactions_total",
		Help: "Community write transactions by operation and outcome",
	}, []string{"operation", "outcome"})

	// CommunityTransactionLatency records coordinator transaction latency.
	CommunityTransactionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lastday_community_transaction_latency_seconds",
		Help:    "Community write transaction latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// UpstreamLatency records recommend proxy upstream latency by upstream and status class.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lastday_upstream_latency_seconds",
		Help:    "Latency of outbound calls to recommendation and tourism APIs",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"upstream", "status"})

	// MaintenanceItems counts records handled by maintenance jobs.
	MaintenanceItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lastday_maintenance_items_total",
		Help: "Records processed by maintenance jobs by job and outcome",
	}, []string{"job", "outcome"})

	// MailMessages counts mail outbox publications by template and outcome.
	MailMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lastday_mail_messages_total",
		Help: "Mail outbox messages by template and outcome",
	}, []string{"template", "outcome"})
)

// TrackTransaction returns a func that records latency and outcome for a coordinator operation.
// Call it with the operation error once the transaction finished.
func TrackTransaction(operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		CommunityTransactionLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		outcome := "committed"
		if err != nil {
			outcome = "failed"
		}
		CommunityTransactions.WithLabelValues(operation, outcome).Inc()
	}
}

// ObserveUpstream records the latency of an outbound call.
func ObserveUpstream(upstream string, status int, start time.Time) {
	UpstreamLatency.WithLabelValues(upstream, statusClass(status)).Observe(time.Since(start).Seconds())
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
