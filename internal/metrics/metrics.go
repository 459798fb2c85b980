package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vender_webhook_deliveries_total",
			Help: "Stripe webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	scans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vender_scans_total",
			Help: "Ticket scans by resulting status",
		},
		[]string{"status"},
	)

	lookupRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vender_lookup_requests_total",
			Help: "Ticket lookup queries served",
		},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vender_notifications_total",
			Help: "Ticket notifications by delivery result",
		},
		[]string{"result"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vender_store_operation_seconds",
			Help:    "Latency of ticket store operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)
)

// TrackWebhook counts a webhook delivery. Outcomes are the issuance outcomes plus
// "invalid" and "error".
func TrackWebhook(outcome string) {
	webhookDeliveries.WithLabelValues(outcome).Inc()
}

func TrackScan(status string) {
	scans.WithLabelValues(status).Inc()
}

func TrackLookup() {
	lookupRequests.Inc()
}

// TrackNotification counts a notification hand-off or delivery ("queued", "sent", "failed", "dropped").
func TrackNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

// ObserveStore records the time since start for a store operation. Use with defer.
func ObserveStore(operation string, start time.Time) {
	storeOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
