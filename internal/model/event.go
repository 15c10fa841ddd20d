package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type names, as exposed to listeners.
const (
	EventMessagePosted   = "message_posted"
	EventMessageUpdated  = "message_updated"
	EventMessageDeleted  = "message_deleted"
	EventUserJoinedRoom  = "user_joined_room"
	EventUserLeftRoom    = "user_left_room"
	EventReactionAdded   = "reaction_added"
	EventReactionRemoved = "reaction_removed"
	EventUserTyping      = "user_typing"
	EventPresenceChanged = "presence_changed"

	// EventConnectionReady is synthesized by the runtime each time the
	// subscription connection reaches the subscribed state. It never comes
	// from the remote service and never moves a replay cursor.
	EventConnectionReady = "connection_ready"
)

// DMSpace is the pseudo space id under which direct messages are delivered.
const DMSpace = "DM"

// typenames maps the GraphQL __typename of the inner event union to the
// event type name.
var typenames = map[string]string{
	"MessagePostedEvent":   EventMessagePosted,
	"MessageUpdatedEvent":  EventMessageUpdated,
	"MessageDeletedEvent":  EventMessageDeleted,
	"UserJoinedRoomEvent":  EventUserJoinedRoom,
	"UserLeftRoomEvent":    EventUserLeftRoom,
	"ReactionAddedEvent":   EventReactionAdded,
	"ReactionRemovedEvent": EventReactionRemoved,
	"UserTypingEvent":      EventUserTyping,
	"PresenceChangedEvent": EventPresenceChanged,
}

// EventTypes lists the event types delivered by the service, in a stable
// order. It excludes the synthetic connection_ready.
var EventTypes = []string{
	EventMessagePosted,
	EventMessageUpdated,
	EventMessageDeleted,
	EventUserJoinedRoom,
	EventUserLeftRoom,
	EventReactionAdded,
	EventReactionRemoved,
	EventUserTyping,
	EventPresenceChanged,
}

// KnownEventType reports whether name is an event type listeners may subscribe to.
func KnownEventType(name string) bool {
	if name == EventConnectionReady {
		return true
	}
	for _, v := range typenames {
		if v == name {
			return true
		}
	}
	return false
}

// Actor identifies the user that caused an event.
type Actor struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"displayName"`
}

// Event is a single space event received from the service. Events are
// immutable once decoded.
type Event struct {
	ID         string    `json:"id"`
	SequenceID string    `json:"sequence_id,omitempty"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	SpaceID    string    `json:"space_id"`
	RoomID     string    `json:"room_id,omitempty"`
	Actor      *Actor    `json:"actor,omitempty"`
	Body       string    `json:"body,omitempty"`

	MessageBodyID  string `json:"message_body_id,omitempty"`
	InThread       string `json:"in_thread,omitempty"`
	MessageEventID string `json:"message_event_id,omitempty"`
	Emoji          string `json:"emoji,omitempty"`
	Status         string `json:"status,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// After reports whether e sorts strictly after the cursor position, ordering
// by timestamp and then by id.
func (e Event) After(c Cursor) bool {
	if c.IsZero() {
		return true
	}
	if !e.Timestamp.Equal(c.LastTimestamp) {
		return e.Timestamp.After(c.LastTimestamp)
	}
	return e.ID > c.LastEventID
}

// Less orders events by timestamp, then id.
func (e Event) Less(o Event) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.ID < o.ID
}

// ActorID returns the actor id or "" when the event has no actor.
func (e Event) ActorID() string {
	if e.Actor == nil {
		return ""
	}
	return e.Actor.ID
}

// spaceEventJSON mirrors the GraphQL SpaceEvent shape.
type spaceEventJSON struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"createdAt"`
	ActorID    string `json:"actorId"`
	SequenceID string `json:"sequenceId"`
	Actor      *Actor `json:"actor"`
	Event      struct {
		Typename       string  `json:"__typename"`
		SpaceID        string  `json:"spaceId"`
		RoomID         string  `json:"roomId"`
		Body           *string `json:"body"`
		MessageBodyID  string  `json:"messageBodyId"`
		InThread       *string `json:"inThread"`
		MessageEventID string  `json:"messageEventId"`
		Emoji          string  `json:"emoji"`
		Status         string  `json:"status"`
	} `json:"event"`
}

// ParseSpaceEvent decodes a GraphQL SpaceEvent payload. spaceID is used for
// events whose inner payload carries no space (presence changes).
func ParseSpaceEvent(raw json.RawMessage, spaceID string) (Event, error) {
	var se spaceEventJSON
	if err := json.Unmarshal(raw, &se); err != nil {
		return Event{}, fmt.Errorf("decode space event: %w", err)
	}
	if se.ID == "" {
		return Event{}, fmt.Errorf("decode space event: missing id")
	}
	typ, ok := typenames[se.Event.Typename]
	if !ok {
		return Event{}, fmt.Errorf("decode space event %s: unknown event type %q", se.ID, se.Event.Typename)
	}
	ts, err := time.Parse(time.RFC3339Nano, se.CreatedAt)
	if err != nil {
		return Event{}, fmt.Errorf("decode space event %s: createdAt: %w", se.ID, err)
	}

	ev := Event{
		ID:             se.ID,
		SequenceID:     se.SequenceID,
		Type:           typ,
		Timestamp:      ts.UTC(),
		SpaceID:        se.Event.SpaceID,
		RoomID:         se.Event.RoomID,
		Actor:          se.Actor,
		MessageBodyID:  se.Event.MessageBodyID,
		MessageEventID: se.Event.MessageEventID,
		Emoji:          se.Event.Emoji,
		Status:         se.Event.Status,
		Raw:            raw,
	}
	if ev.SpaceID == "" {
		ev.SpaceID = spaceID
	}
	if ev.Actor == nil && se.ActorID != "" {
		ev.Actor = &Actor{ID: se.ActorID}
	}
	if se.Event.Body != nil {
		ev.Body = *se.Event.Body
	}
	if se.Event.InThread != nil {
		ev.InThread = *se.Event.InThread
	}
	return ev, nil
}
