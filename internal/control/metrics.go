package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus surface registered on the default registry
// that pkg/metrics/prom.go serves: processed-event counts, per-kind
// error counts and replication lag gauges.
type Metrics struct {
	ProcessedEvents *prometheus.CounterVec
	ErrorsByKind    *prometheus.CounterVec
	OffsetLag       prometheus.Gauge
	LSNLag          prometheus.Gauge
}

func NewMetrics(process string) *Metrics {
	return &Metrics{
		ProcessedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgcdc",
			Name:      "processed_events_total",
			Help:      "Replication events processed by this process.",
		}, []string{"process", "message_type"}),
		ErrorsByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgcdc",
			Name:      "errors_total",
			Help:      "Errors encountered, labeled by error kind.",
		}, []string{"process", "kind"}),
		OffsetLag: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pgcdc",
			Name:        "sink_offset_lag",
			Help:        "Difference between the stream's last offset and the sink's persisted resume offset.",
			ConstLabels: prometheus.Labels{"process": process},
		}),
		LSNLag: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pgcdc",
			Name:        "source_lsn_lag_bytes",
			Help:        "Difference between Postgres's current WAL position and the source's acknowledged LSN.",
			ConstLabels: prometheus.Labels{"process": process},
		}),
	}
}
