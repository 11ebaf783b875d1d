package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	participantsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qcsched_participants_active",
		Help: "Participants currently being drained by a worker",
	})

	unclassifiable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qcsched_unclassifiable_total",
		Help: "Records excluded from queues because no single tier rule matched",
	})
)
