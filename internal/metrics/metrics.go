package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccmadm_outbox_published_total",
			Help: "Outbox events by publish outcome",
		},
		[]string{"outcome", "topic"}, // published|retried|failed
	)

	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccmadm_events_consumed_total",
			Help: "Consumed events by outcome and type",
		},
		[]string{"outcome", "type"}, // applied|duplicate|malformed|dead_lettered
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccmadm_commands_total",
			Help: "Dispatched admin commands by outcome and target service",
		},
		[]string{"outcome", "service"}, // succeeded|failed|stubbed
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		OutboxPublishedTotal,
		EventsConsumedTotal,
		CommandsTotal,
	)
}
