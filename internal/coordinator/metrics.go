package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qcsched_records_validated_total",
		Help: "Records validated, by datatype and aggregate outcome",
	}, []string{"datatype", "outcome"})

	validationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qcsched_validation_duration_seconds",
		Help:    "Time spent in the validation engine per record",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"datatype"})
)
