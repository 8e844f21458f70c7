package objstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("dbgen.objstore")

var (
	// regenerationsTotal counts object regenerations by result
	regenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbgen_regenerations_total",
		Help: "Total data object regenerations by result",
	}, []string{"result"})

	// regenerationDuration tracks regeneration latency
	regenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dbgen_regeneration_duration_seconds",
		Help:    "Data object regeneration duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	// regeneratedBytesTotal counts bytes produced by regeneration
	regeneratedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dbgen_regenerated_bytes_total",
		Help: "Total bytes produced by data object regeneration",
	})
)
