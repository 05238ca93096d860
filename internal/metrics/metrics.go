// Package metrics exposes Prometheus metrics for the queue and delivery
// engine, served by the api package at /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// Metrics holds all Prometheus metrics for mailroom.
type Metrics struct {
	// Delivery outcomes
	MessagesDelivered   prometheus.Counter
	MessagesFailed      prometheus.Counter
	MessagesBlacklisted prometheus.Counter
	MessagesDiscarded   prometheus.Counter
	DeliverySkips       prometheus.Counter
	DeliveryDuration    prometheus.Histogram

	// Queueing
	MessagesEnqueued  prometheus.Counter
	MessagesRetried   prometheus.Counter
	TriggerFailures   prometheus.Counter
	QueueDepth        *prometheus.GaugeVec
	MessagesPurged    prometheus.Counter
}

// Get returns the singleton metrics instance.
func Get() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_messages_delivered_total",
			Help: "Total number of messages accepted by the transport",
		}),
		MessagesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_messages_failed_total",
			Help: "Total number of messages that failed in transport",
		}),
		MessagesBlacklisted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_messages_blacklisted_total",
			Help: "Total number of messages skipped because a recipient was blacklisted",
		}),
		MessagesDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_messages_discarded_total",
			Help: "Total number of messages discarded while sending was paused",
		}),
		DeliverySkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_delivery_skips_total",
			Help: "Total number of deliver calls skipped because the message was not queued",
		}),
		DeliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailroom_delivery_duration_seconds",
			Help:    "Duration of delivery attempts including the transport call",
			Buckets: prometheus.DefBuckets,
		}),
		MessagesEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_messages_enqueued_total",
			Help: "Total number of successful enqueue transitions",
		}),
		MessagesRetried: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_messages_retried_total",
			Help: "Total number of messages re-enqueued by the retry coordinator",
		}),
		TriggerFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_trigger_failures_total",
			Help: "Total number of dispatch trigger submissions that failed",
		}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailroom_queue_depth",
			Help: "Number of messages per status",
		}, []string{"status"}),
		MessagesPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_messages_purged_total",
			Help: "Total number of messages removed by the retention purge",
		}),
	}
}
