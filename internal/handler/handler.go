// Package handler defines what a command or listener sees while one event is
// being dispatched: the event itself, its bound arguments, and a way to answer
// in the room the event came from.
package handler

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/model"
)

// CommandFunc handles a prefixed command. Returning an *args.ArgumentError
// makes the dispatcher reply with the reason.
type CommandFunc func(ctx context.Context, hc *Context, vals args.Values) error

// ListenerFunc handles one event of the type it was registered for.
type ListenerFunc func(ctx context.Context, hc *Context) error

// Responder is the outbound side of the chat service used by handlers.
type Responder interface {
	PostMessage(ctx context.Context, spaceID, roomID, body, inReplyTo string) error
	AddReaction(ctx context.Context, spaceID, roomID, messageEventID, emoji string) error
	RemoveReaction(ctx context.Context, spaceID, roomID, messageEventID, emoji string) error
}

// Context is built once per dispatched event and shared by every middleware
// and handler that event reaches.
type Context struct {
	DispatchID string
	Event      model.Event
	Logger     *slog.Logger

	// Command and Args are set once the body resolved to a command.
	Command string
	Args    string

	responder Responder
	values    map[string]any
}

// New returns a Context for ev that answers through r.
func New(dispatchID string, ev model.Event, r Responder, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		DispatchID: dispatchID,
		Event:      ev,
		Logger:     logger.With("dispatch_id", dispatchID, "event_id", ev.ID, "type", ev.Type),
		responder:  r,
	}
}

// Actor returns the event's author, or nil for events without one.
func (c *Context) Actor() *model.Actor { return c.Event.Actor }

// IsDM reports whether the event came from a direct message.
func (c *Context) IsDM() bool { return c.Event.SpaceID == model.DMSpace }

// Reply posts body as a top-level message in the event's room.
func (c *Context) Reply(ctx context.Context, body string) error {
	return c.responder.PostMessage(ctx, c.Event.SpaceID, c.Event.RoomID, body, "")
}

// ReplyInThread posts body into the event's thread, starting one on the
// event when it is not already threaded.
func (c *Context) ReplyInThread(ctx context.Context, body string) error {
	root := c.Event.ID
	if c.Event.InThread != "" {
		root = c.Event.InThread
	}
	return c.responder.PostMessage(ctx, c.Event.SpaceID, c.Event.RoomID, body, root)
}

// React adds emoji to the triggering message.
func (c *Context) React(ctx context.Context, emoji string) error {
	return c.responder.AddReaction(ctx, c.Event.SpaceID, c.Event.RoomID, c.Event.ID, emoji)
}

// Unreact removes emoji from the triggering message.
func (c *Context) Unreact(ctx context.Context, emoji string) error {
	return c.responder.RemoveReaction(ctx, c.Event.SpaceID, c.Event.RoomID, c.Event.ID, emoji)
}

// Set stores a value for later middleware or handlers of the same dispatch.
func (c *Context) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = v
}

// Get returns a value stored with Set.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}
