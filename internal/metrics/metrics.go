package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_snapshots_delivered_total",
		Help: "Full replacement snapshots delivered to the portal state, by feed.",
	}, []string{"feed"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_commands_total",
		Help: "Mutation commands by name and result.",
	}, []string{"command", "result"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_store_errors_total",
		Help: "Document store failures by operation.",
	}, []string{"op"})

	SubscriberDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_subscriber_dropped_total",
		Help: "Change notifications dropped because a subscriber lagged.",
	})

	StoreUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portal_store_up",
		Help: "Whether the last health probe of a store backend succeeded.",
	}, []string{"backend"})
)
