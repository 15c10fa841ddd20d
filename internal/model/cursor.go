package model

import "time"

// Cursor is the replay position of one space: the last event that was fully
// dispatched.
type Cursor struct {
	LastEventID   string    `json:"last_event_id"`
	LastTimestamp time.Time `json:"last_timestamp"`
}

// CursorOf returns the cursor positioned at ev.
func CursorOf(ev Event) Cursor {
	return Cursor{LastEventID: ev.ID, LastTimestamp: ev.Timestamp}
}

// IsZero reports whether the cursor has never been advanced.
func (c Cursor) IsZero() bool {
	return c.LastEventID == "" && c.LastTimestamp.IsZero()
}

// Cursors maps space id to its replay cursor.
type Cursors map[string]Cursor

// Clone returns an independent copy.
func (c Cursors) Clone() Cursors {
	out := make(Cursors, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
