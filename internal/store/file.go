package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// DefaultStatePath is the state file used when no state_url is configured.
const DefaultStatePath = ".chatto-bot-state.toml"

// stateFile is the on-disk TOML layout. Timestamps are RFC 3339 strings with
// nanoseconds so they round-trip exactly.
type stateFile struct {
	Cursor map[string]cursorRecord `toml:"cursor"`
}

type cursorRecord struct {
	LastEventID   string `toml:"last_event_id"`
	LastTimestamp string `toml:"last_timestamp"`
}

// FileStore keeps cursors in a TOML file.
type FileStore struct {
	path string
}

var _ CursorStore = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultStatePath
	}
	return &FileStore{path: path}
}

// Path returns the state file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the state file. A missing file yields no cursors.
func (s *FileStore) Load(context.Context) (model.Cursors, error) {
	var st stateFile
	if _, err := toml.DecodeFile(s.path, &st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Cursors{}, nil
		}
		return nil, fmt.Errorf("reading state file %s: %w", s.path, err)
	}
	out := make(model.Cursors, len(st.Cursor))
	for space, rec := range st.Cursor {
		ts, err := time.Parse(time.RFC3339Nano, rec.LastTimestamp)
		if err != nil {
			return nil, fmt.Errorf("state file %s: cursor %q: %w", s.path, space, err)
		}
		out[space] = model.Cursor{LastEventID: rec.LastEventID, LastTimestamp: ts}
	}
	return out, nil
}

// Save writes cursors to a temporary file and renames it over the state
// file.
func (s *FileStore) Save(_ context.Context, cursors model.Cursors) error {
	st := stateFile{Cursor: make(map[string]cursorRecord, len(cursors))}
	for space, c := range cursors {
		st.Cursor[space] = cursorRecord{
			LastEventID:   c.LastEventID,
			LastTimestamp: c.LastTimestamp.Format(time.RFC3339Nano),
		}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".chatto-state-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(st); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
