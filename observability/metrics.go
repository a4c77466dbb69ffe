// Package observability exposes Prometheus metrics for feeds and stores.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_messages_sent_total",
			Help: "Messages acknowledged by the store",
		},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_send_failures_total",
			Help: "Sends that did not reach the store, by reason",
		},
		[]string{"reason"},
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_send_duration_seconds",
			Help:    "Time until the store acknowledged a send",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_messages_delivered_total",
			Help: "Messages delivered to feed subscribers",
		},
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_active_subscriptions",
			Help: "Feed subscriptions currently delivering",
		},
	)

	Resubscriptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_resubscriptions_total",
			Help: "Automatic re-subscriptions after a lost store stream",
		},
	)

	StoreAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_appends_total",
			Help: "Records appended, by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	StoreStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_open_streams",
			Help: "Store subscriptions currently open, by backend",
		},
		[]string{"backend"},
	)

	ProcessRSS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_server_rss_bytes",
			Help: "Resident memory of the server process",
		},
	)

	ProcessCPU = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_server_cpu_percent",
			Help: "CPU usage of the server process",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
