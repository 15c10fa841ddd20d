package replay

import (
	"sync"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// Tracker holds the per-space replay cursors. It is the dedupe authority: an
// event is admitted only if it sorts after its space's cursor.
type Tracker struct {
	mu      sync.Mutex
	cursors model.Cursors
}

// NewTracker returns a tracker seeded with initial, which may be nil.
func NewTracker(initial model.Cursors) *Tracker {
	t := &Tracker{cursors: model.Cursors{}}
	t.Restore(initial)
	return t
}

// Admit reports whether ev is newer than its space's cursor.
func (t *Tracker) Admit(ev model.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ev.After(t.cursors[ev.SpaceID])
}

// Advance moves the space's cursor to ev. Cursors never move backwards.
func (t *Tracker) Advance(ev model.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !ev.After(t.cursors[ev.SpaceID]) {
		return false
	}
	t.cursors[ev.SpaceID] = model.CursorOf(ev)
	return true
}

// Cursor returns the cursor of one space.
func (t *Tracker) Cursor(spaceID string) model.Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursors[spaceID]
}

// Snapshot returns a copy of every cursor.
func (t *Tracker) Snapshot() model.Cursors {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursors.Clone()
}

// Restore replaces all cursors with c.
func (t *Tracker) Restore(c model.Cursors) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursors = c.Clone()
}
