package metric

import "github.com/prometheus/client_golang/prometheus"

const namespace = "telemetrygate"

// Metrics contains the core gateway metrics shared across components.
type Metrics struct {
	// Intake
	UplinksReceived    prometheus.Counter
	UplinksFailed      *prometheus.CounterVec
	UplinkBytes        prometheus.Counter
	DownlinksSent      prometheus.Counter
	ProcessingDuration prometheus.Histogram

	// Persistence
	PersistOperations *prometheus.CounterVec
	PersistDuration   *prometheus.HistogramVec

	// Live channel
	Subscribers     prometheus.Gauge
	EventsDelivered prometheus.Counter
	EventsDropped   *prometheus.CounterVec

	// NATS mirror
	MirrorPublished prometheus.Counter
	MirrorFailed    prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all core gateway metrics
func NewMetrics() *Metrics {
	return &Metrics{
		UplinksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "uplinks_received_total",
			Help:      "Total uplink messages accepted from the transport",
		}),

		UplinksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "uplinks_failed_total",
			Help:      "Total uplink messages that failed processing",
		}, []string{"reason"}),

		UplinkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "uplink_bytes_total",
			Help:      "Total uplink payload bytes received",
		}),

		DownlinksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "downlinks_sent_total",
			Help:      "Total downlink configuration replies returned to devices",
		}),

		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "processing_duration_seconds",
			Help:      "End-to-end uplink processing time (decode to response)",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0},
		}),

		PersistOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "operations_total",
			Help:      "Backend write operations by kind and outcome",
		}, []string{"kind", "status"}),

		PersistDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "operation_duration_seconds",
			Help:      "Backend write operation latency by kind",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"kind"}),

		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "subscribers",
			Help:      "Currently connected live subscribers across all devices",
		}),

		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "events_delivered_total",
			Help:      "Live events enqueued to subscriber connections",
		}),

		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "events_dropped_total",
			Help:      "Live events not delivered, by drop reason",
		}, []string{"reason"}),

		MirrorPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "events_published_total",
			Help:      "Live events mirrored to NATS",
		}),

		MirrorFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "publish_failures_total",
			Help:      "Failed NATS mirror publishes",
		}),
	}
}
