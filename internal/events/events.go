// Package events publishes bot lifecycle events to an event bus and receives
// operator control requests from it.
package events

import (
	"context"
	"time"
)

// Lifecycle topics published by the bot.
const (
	TopicConnectionState = "chatto.bot.connection.state"
	TopicReplayCompleted = "chatto.bot.replay.completed"
	TopicHandlerFailed   = "chatto.bot.handler.failed"
	TopicGroupLoaded     = "chatto.bot.group.loaded"
	TopicGroupUnloaded   = "chatto.bot.group.unloaded"
	TopicGroupReloaded   = "chatto.bot.group.reloaded"
	TopicShutdown        = "chatto.bot.shutdown"
)

// Control topics consumed by the bot.
const (
	TopicControlReload   = "chatto.control.reload"
	TopicControlShutdown = "chatto.control.shutdown"
	TopicControlAll      = "chatto.control.>"
)

// ConnectionStateChanged is published on every connection state transition.
type ConnectionStateChanged struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
}

// ReplayCompleted is published after each backfill.
type ReplayCompleted struct {
	Spaces   []string `json:"spaces"`
	Replayed int      `json:"replayed"`
	Error    string   `json:"error,omitempty"`
}

// HandlerFailed is published when a command or listener returns an error or
// panics.
type HandlerFailed struct {
	DispatchID string `json:"dispatch_id"`
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	Group      string `json:"group"`
	Trigger    string `json:"trigger"`
	Error      string `json:"error"`
}

// GroupChanged is published when a handler group is loaded, unloaded or
// reloaded.
type GroupChanged struct {
	Group  string `json:"group"`
	Source string `json:"source,omitempty"`
}

// ShuttingDown is published once when shutdown starts.
type ShuttingDown struct {
	Reason string `json:"reason"`
}

// ControlRequest is the payload of a control topic message. Group is only
// meaningful for reload; empty means every loaded group.
type ControlRequest struct {
	Group  string `json:"group,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Message is a raw message received from a subscription.
type Message struct {
	Topic string
	Data  []byte
}
