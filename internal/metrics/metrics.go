// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived counts events delivered by the connection, by type.
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chattobot_events_received_total",
		Help: "Events received from the subscription connection",
	}, []string{"type"})

	// EventsDispatched counts events that went through dispatch, by outcome
	// (handled, short_circuit, duplicate).
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chattobot_events_dispatched_total",
		Help: "Events processed by the dispatch engine",
	}, []string{"type", "outcome"})

	// DispatchDuration tracks the time spent dispatching one event.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chattobot_dispatch_duration_seconds",
		Help:    "Time spent dispatching a single event",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// HandlerErrors counts caught handler failures, by group and trigger.
	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chattobot_handler_errors_total",
		Help: "Errors and panics caught from command and listener handlers",
	}, []string{"group", "trigger"})

	// CommandsInvoked counts command invocations, by command and result
	// (ok, argument_error, error, denied, unknown).
	CommandsInvoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chattobot_commands_total",
		Help: "Command invocations",
	}, []string{"command", "result"})

	// InboxDepth is the number of items waiting in the dispatch inbox.
	InboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chattobot_inbox_depth",
		Help: "Items queued for dispatch",
	})

	// ReplayedEvents counts events dispatched from backfill.
	ReplayedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chattobot_replayed_events_total",
		Help: "Events dispatched from history backfill",
	})

	// ReplayErrors counts failed history fetches.
	ReplayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chattobot_replay_errors_total",
		Help: "History fetches that failed during backfill",
	})

	// ConnectionState is 1 for the current connection state, 0 otherwise.
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chattobot_connection_state",
		Help: "Current subscription connection state (1 = active)",
	}, []string{"state"})

	// Reconnects counts transitions into the reconnecting state.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chattobot_reconnects_total",
		Help: "Times the subscription connection was lost and retried",
	})

	// LoadedGroups is the number of handler groups currently loaded.
	LoadedGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chattobot_loaded_groups",
		Help: "Handler groups currently loaded",
	})

	// OutboundRequests counts REST calls to the chat service, by operation
	// and status (ok, error, rate_limited).
	OutboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chattobot_outbound_requests_total",
		Help: "GraphQL requests sent to the chat service",
	}, []string{"operation", "status"})

	// CheckpointsWritten counts cursor checkpoints, by destination and status.
	CheckpointsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chattobot_checkpoints_total",
		Help: "Cursor checkpoints written",
	}, []string{"destination", "status"})
)

// SetConnectionState marks state as the single active connection state.
func SetConnectionState(states []string, active string) {
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}
