package cascade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cascadeRequests counts emitted follow-up requests by kind
	// ("dependent" or "longitudinal").
	cascadeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qcsched_cascade_requests_total",
		Help: "Follow-up validation requests emitted by cascades, by kind",
	}, []string{"kind"})

	// cascadeInconsistent counts skipped pairs with several same-date records.
	cascadeInconsistent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qcsched_cascade_inconsistent_total",
		Help: "Cascade pairs skipped because several same-date dependent records exist",
	})
)
