// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_connections",
		Help: "Number of currently open websocket connections.",
	})

	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_persisted_total",
		Help: "Messages durably written to the store.",
	})

	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_events_delivered_total",
		Help: "Events handed to recipient connections.",
	})

	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_deliveries_dropped_total",
		Help: "Events dropped because a recipient's send buffer was full.",
	})
)
