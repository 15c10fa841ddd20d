package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	s := NewFileStore(path)

	want := model.Cursors{
		"sp-1": {LastEventID: "ev-9", LastTimestamp: time.Date(2026, 1, 15, 10, 0, 0, 123456789, time.UTC)},
		"DM":   {LastEventID: "ev-2", LastTimestamp: time.Date(2026, 1, 14, 8, 30, 0, 0, time.UTC)},
	}
	if err := s.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Load returned %d cursors, want %d", len(got), len(want))
	}
	for space, c := range want {
		g := got[space]
		if g.LastEventID != c.LastEventID || !g.LastTimestamp.Equal(c.LastTimestamp) {
			t.Errorf("cursor %s = %+v, want %+v", space, g, c)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `last_timestamp = "2026-01-15T10:00:00.123456789Z"`) {
		t.Errorf("state file does not keep nanosecond timestamps:\n%s", data)
	}
}

func TestFileStore_MissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope.toml"))
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load = %v, want empty", got)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	if err := os.WriteFile(path, []byte("[cursor.sp]\nlast_timestamp = \"yesterday\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Error("Load of an unparsable timestamp should fail")
	}
}

func TestFileStore_SaveReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	s := NewFileStore(path)
	ctx := context.Background()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.Save(ctx, model.Cursors{"a": {LastEventID: "1", LastTimestamp: ts}, "b": {LastEventID: "2", LastTimestamp: ts}})
	if err := s.Save(ctx, model.Cursors{"a": {LastEventID: "3", LastTimestamp: ts}}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Load(ctx)
	if len(got) != 1 || got["a"].LastEventID != "3" {
		t.Errorf("Load = %v, want only a=3", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	c := model.Cursors{"sp": {LastEventID: "ev-1"}}
	_ = m.Save(ctx, c)
	c["sp"] = model.Cursor{LastEventID: "mutated"}

	got, _ := m.Load(ctx)
	if got["sp"].LastEventID != "ev-1" || m.Saves() != 1 {
		t.Errorf("Load = %v, saves = %d", got, m.Saves())
	}
}
