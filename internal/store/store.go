// Package store persists replay cursors between runs.
package store

import (
	"context"
	"sync"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// CursorStore defines the persistence interface for replay cursors. Save
// replaces the whole persisted set.
type CursorStore interface {
	Load(ctx context.Context) (model.Cursors, error)
	Save(ctx context.Context, cursors model.Cursors) error
	Close() error
}

// Memory is an in-process CursorStore. Nothing survives the process.
type Memory struct {
	mu      sync.Mutex
	cursors model.Cursors
	saves   int
}

var _ CursorStore = (*Memory)(nil)

// NewMemory returns a Memory store seeded with initial.
func NewMemory(initial model.Cursors) *Memory {
	return &Memory{cursors: initial.Clone()}
}

func (m *Memory) Load(context.Context) (model.Cursors, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors.Clone(), nil
}

func (m *Memory) Save(_ context.Context, cursors model.Cursors) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors = cursors.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) Close() error { return nil }
