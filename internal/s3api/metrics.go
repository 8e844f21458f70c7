package s3api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts requests by resolved operation and HTTP status
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbgen_s3_requests_total",
		Help: "Total S3 requests by operation and status",
	}, []string{"operation", "status"})

	// requestDuration tracks request latency by operation
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dbgen_s3_request_duration_seconds",
		Help:    "S3 request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
