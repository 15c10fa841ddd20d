package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEvent_After(t *testing.T) {
	t0 := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	cur := Cursor{LastEventID: "ev-5", LastTimestamp: t0}

	for _, tc := range []struct {
		name string
		ev   Event
		want bool
	}{
		{"later timestamp", Event{ID: "ev-1", Timestamp: t0.Add(time.Second)}, true},
		{"earlier timestamp", Event{ID: "ev-9", Timestamp: t0.Add(-time.Second)}, false},
		{"same event", Event{ID: "ev-5", Timestamp: t0}, false},
		{"tie, higher id", Event{ID: "ev-6", Timestamp: t0}, true},
		{"tie, lower id", Event{ID: "ev-4", Timestamp: t0}, false},
	} {
		if got := tc.ev.After(cur); got != tc.want {
			t.Errorf("%s: After() = %v, want %v", tc.name, got, tc.want)
		}
	}

	if !(Event{ID: "x", Timestamp: t0}).After(Cursor{}) {
		t.Error("every event should be after the zero cursor")
	}
}

func TestEvent_Less(t *testing.T) {
	t0 := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	a := Event{ID: "b", Timestamp: t0}
	b := Event{ID: "a", Timestamp: t0.Add(time.Millisecond)}
	c := Event{ID: "c", Timestamp: t0}
	if !a.Less(b) || b.Less(a) {
		t.Error("timestamp ordering broken")
	}
	if !a.Less(c) || c.Less(a) {
		t.Error("id tiebreak broken")
	}
}

func TestParseSpaceEvent_MessagePosted(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "ev-1",
		"createdAt": "2026-01-15T10:00:00.123456Z",
		"actorId": "u-1",
		"sequenceId": "42",
		"actor": {"id": "u-1", "login": "alice", "displayName": "Alice"},
		"event": {
			"__typename": "MessagePostedEvent",
			"spaceId": "sp-1",
			"roomId": "rm-1",
			"body": "!roll 20",
			"messageBodyId": "mb-1",
			"inThread": null
		}
	}`)

	ev, err := ParseSpaceEvent(raw, "fallback")
	if err != nil {
		t.Fatalf("ParseSpaceEvent: %v", err)
	}
	if ev.Type != EventMessagePosted {
		t.Errorf("Type = %q, want %q", ev.Type, EventMessagePosted)
	}
	if ev.SpaceID != "sp-1" || ev.RoomID != "rm-1" {
		t.Errorf("space/room = %q/%q", ev.SpaceID, ev.RoomID)
	}
	if ev.Body != "!roll 20" {
		t.Errorf("Body = %q", ev.Body)
	}
	if ev.Actor == nil || ev.Actor.Login != "alice" {
		t.Errorf("Actor = %+v", ev.Actor)
	}
	want := time.Date(2026, 1, 15, 10, 0, 0, 123456000, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, want)
	}
	if ev.InThread != "" {
		t.Errorf("InThread = %q, want empty", ev.InThread)
	}
}

func TestParseSpaceEvent_PresenceUsesFallbackSpace(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "ev-2",
		"createdAt": "2026-01-15T10:00:00Z",
		"actorId": "u-2",
		"sequenceId": "43",
		"event": {"__typename": "PresenceChangedEvent", "status": "ONLINE"}
	}`)
	ev, err := ParseSpaceEvent(raw, "DM")
	if err != nil {
		t.Fatalf("ParseSpaceEvent: %v", err)
	}
	if ev.SpaceID != "DM" {
		t.Errorf("SpaceID = %q, want DM", ev.SpaceID)
	}
	if ev.ActorID() != "u-2" {
		t.Errorf("ActorID() = %q, want u-2", ev.ActorID())
	}
	if ev.Status != "ONLINE" {
		t.Errorf("Status = %q", ev.Status)
	}
}

func TestParseSpaceEvent_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing id", `{"createdAt":"2026-01-15T10:00:00Z","event":{"__typename":"MessagePostedEvent"}}`},
		{"unknown type", `{"id":"x","createdAt":"2026-01-15T10:00:00Z","event":{"__typename":"Bogus"}}`},
		{"bad timestamp", `{"id":"x","createdAt":"yesterday","event":{"__typename":"MessagePostedEvent"}}`},
	} {
		if _, err := ParseSpaceEvent(json.RawMessage(tc.raw), ""); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestKnownEventType(t *testing.T) {
	for _, name := range []string{EventMessagePosted, EventReactionAdded, EventConnectionReady} {
		if !KnownEventType(name) {
			t.Errorf("KnownEventType(%q) = false", name)
		}
	}
	if KnownEventType("MessagePostedEvent") {
		t.Error("GraphQL typename should not be a known event type")
	}
}

func TestCursors_Clone(t *testing.T) {
	c := Cursors{"sp-1": {LastEventID: "a"}}
	cp := c.Clone()
	cp["sp-1"] = Cursor{LastEventID: "b"}
	if c["sp-1"].LastEventID != "a" {
		t.Error("Clone shares storage with the original")
	}
}
