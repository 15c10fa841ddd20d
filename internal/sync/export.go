package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// SnapshotVersion is the format version written into every export.
const SnapshotVersion = 1

// Snapshot is the document written to backup destinations.
type Snapshot struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Spaces  []SpaceSnapshot `json:"spaces"`
}

// SpaceSnapshot is the cursor of one space.
type SpaceSnapshot struct {
	Space         string    `json:"space"`
	LastEventID   string    `json:"last_event_id"`
	LastTimestamp time.Time `json:"last_timestamp"`
}

// ExportJSON writes cursors as an indented JSON Snapshot. Spaces are sorted
// by id so identical cursors produce identical output.
func ExportJSON(cursors model.Cursors, savedAt time.Time, w io.Writer) error {
	snap := Snapshot{Version: SnapshotVersion, SavedAt: savedAt.UTC(), Spaces: make([]SpaceSnapshot, 0, len(cursors))}
	for space, c := range cursors {
		snap.Spaces = append(snap.Spaces, SpaceSnapshot{Space: space, LastEventID: c.LastEventID, LastTimestamp: c.LastTimestamp})
	}
	sort.Slice(snap.Spaces, func(i, j int) bool { return snap.Spaces[i].Space < snap.Spaces[j].Space })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// ImportJSON reads a Snapshot written by ExportJSON.
func ImportJSON(r io.Reader) (model.Cursors, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	out := make(model.Cursors, len(snap.Spaces))
	for _, s := range snap.Spaces {
		out[s.Space] = model.Cursor{LastEventID: s.LastEventID, LastTimestamp: s.LastTimestamp}
	}
	return out, nil
}
