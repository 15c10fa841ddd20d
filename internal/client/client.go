// Package client provides the outbound side of the chat service: a GraphQL
// over HTTP client authenticated with the session cookie.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// ChattoClient is what the runtime needs from the chat service besides the
// subscription connection. It is implemented by HTTPClient.
type ChattoClient interface {
	// Messages and reactions
	PostMessage(ctx context.Context, spaceID, roomID, body, inReplyTo string) error
	AddReaction(ctx context.Context, spaceID, roomID, messageEventID, emoji string) error
	RemoveReaction(ctx context.Context, spaceID, roomID, messageEventID, emoji string) error

	// Lookups
	Me(ctx context.Context) (*User, error)
	Rooms(ctx context.Context, spaceID string) ([]Room, error)
	RoomEvents(ctx context.Context, spaceID, roomID string, limit int) ([]model.Event, error)

	// History for replay
	FetchHistory(ctx context.Context, spaceID string, since time.Time) ([]model.Event, error)

	// Presence
	UpdatePresence(ctx context.Context, status string) error

	// Lifecycle
	Close() error
}

// User is the authenticated account as returned by the me query.
type User struct {
	ID             string `json:"id"`
	Login          string `json:"login"`
	DisplayName    string `json:"displayName"`
	PresenceStatus string `json:"presenceStatus"`
}

// Room is a room of a space the bot is a member of.
type Room struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// Presence statuses accepted by UpdatePresence.
const (
	PresenceOnline  = "ONLINE"
	PresenceAway    = "AWAY"
	PresenceOffline = "OFFLINE"
)

// DefaultHistoryLimit is the number of events requested per room when
// fetching history.
const DefaultHistoryLimit = 50
