package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	MilestoneTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_transition_count",
			Help: "Total number of committed milestone transitions",
		},
		[]string{"command"}, // command: create, edit, complete, approve, reject, cancel
	)

	PaymentReleaseCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_release_count",
			Help: "Total number of payment release attempts",
		},
		[]string{"outcome"}, // outcome: released, not_ready, processor_error
	)

	PaymentProcessorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_processor_latency_ms",
			Help:    "External payment processor call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"endpoint", "status"},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "document_reconcile_duration_seconds",
			Help:    "Document reconciliation pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	NotificationDeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_count",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel", "status"}, // status: sent, failed, skipped
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func IncrementMilestoneTransition(command string) {
	MilestoneTransitionCount.WithLabelValues(command).Inc()
}

func IncrementPaymentRelease(outcome string) {
	PaymentReleaseCount.WithLabelValues(outcome).Inc()
}

func RecordPaymentProcessorLatency(endpoint, status string, duration time.Duration) {
	PaymentProcessorLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

func RecordReconcileDuration(duration time.Duration) {
	ReconcileDuration.Observe(duration.Seconds())
}

func IncrementNotificationDelivery(channel, status string) {
	NotificationDeliveryCount.WithLabelValues(channel, status).Inc()
}
