package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	ticketsAdmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codegw",
			Subsystem: "gateway",
			Name:      "tickets_admitted_total",
			Help:      "Tickets admitted onto a model queue",
		},
		[]string{"kind"},
	)

	framesStreamedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codegw",
			Subsystem: "gateway",
			Name:      "frames_streamed_total",
			Help:      "Event-stream frames emitted to clients",
		},
		[]string{"kind"},
	)

	streamTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codegw",
			Subsystem: "gateway",
			Name:      "stream_timeouts_total",
			Help:      "Streaming loops ended by the iteration timeout",
		},
	)

	cancellationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codegw",
			Subsystem: "gateway",
			Name:      "cancellations_total",
			Help:      "Tickets cancelled before reaching a terminal status",
		},
	)

	// The producer is expected to extend the previously seen text; when
	// it does not we skip the delta and count it here rather than fail
	// the request. Watch this counter: a non-zero rate means a backend
	// is violating the cumulative-text contract.
	prefixAnomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codegw",
			Subsystem: "gateway",
			Name:      "prefix_anomalies_total",
			Help:      "Backend messages whose cumulative text did not extend the seen prefix",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ticketsAdmittedTotal,
		framesStreamedTotal,
		streamTimeoutsTotal,
		cancellationsTotal,
		prefixAnomaliesTotal,
	)
}
