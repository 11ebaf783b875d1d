package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qcsched_job_polls_total",
		Help: "Downstream job state polls, by observed state",
	}, []string{"state"})

	retriesFollowed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qcsched_job_retries_followed_total",
		Help: "Platform job retries followed by the poller",
	})
)
