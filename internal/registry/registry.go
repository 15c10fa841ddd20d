// Package registry holds the loaded handler groups.
//
// The registry publishes an immutable Snapshot through an atomic pointer.
// Load, unload and reload build a complete new snapshot and swap it in one
// store, so a dispatch that grabbed a snapshot sees either every entry of a
// group or none of them, never a mix of an old and a new version.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Snapshot is an immutable view of every loaded group.
type Snapshot struct {
	groups    []*Group
	commands  map[string]*Entry
	listeners map[string][]*Entry
}

var empty = &Snapshot{commands: map[string]*Entry{}, listeners: map[string][]*Entry{}}

// Command resolves a command name or alias (case-insensitive) to its
// canonical entry.
func (s *Snapshot) Command(name string) (*Entry, bool) {
	e, ok := s.commands[strings.ToLower(name)]
	return e, ok
}

// Listeners returns the listeners registered for eventType, in load order.
func (s *Snapshot) Listeners(eventType string) []*Entry {
	return s.listeners[eventType]
}

// Commands returns every command entry once, sorted by trigger.
func (s *Snapshot) Commands() []*Entry {
	seen := make(map[*Entry]bool, len(s.commands))
	out := make([]*Entry, 0, len(s.commands))
	for _, e := range s.commands {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trigger < out[j].Trigger })
	return out
}

// Groups returns the names of the loaded groups in load order.
func (s *Snapshot) Groups() []string {
	names := make([]string, len(s.groups))
	for i, g := range s.groups {
		names[i] = g.Name
	}
	return names
}

// Group returns the loaded group with the given name.
func (s *Snapshot) Group(name string) (*Group, bool) {
	for _, g := range s.groups {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// build indexes groups into a new snapshot, rejecting trigger collisions.
func build(groups []*Group) (*Snapshot, error) {
	s := &Snapshot{
		groups:    groups,
		commands:  make(map[string]*Entry),
		listeners: make(map[string][]*Entry),
	}
	for _, g := range groups {
		for i := range g.Entries {
			e := &g.Entries[i]
			switch e.Kind {
			case Command:
				for _, name := range append([]string{e.Trigger}, e.Aliases...) {
					key := strings.ToLower(name)
					if prev, ok := s.commands[key]; ok {
						return nil, &DuplicateTriggerError{Trigger: key, Group: g.Name, Existing: prev.Group}
					}
					s.commands[key] = e
				}
			case Listener:
				s.listeners[e.Trigger] = append(s.listeners[e.Trigger], e)
			}
		}
	}
	return s, nil
}

// prepare validates g and returns a private copy owned by the registry.
func prepare(g Group) (*Group, error) {
	if g.Name == "" {
		return nil, fmt.Errorf("group has no name")
	}
	cp := g
	cp.Entries = make([]Entry, len(g.Entries))
	for i, e := range g.Entries {
		e.Group = g.Name
		if e.Kind == Command {
			e.Trigger = strings.ToLower(e.Trigger)
		}
		e.Aliases = append([]string(nil), e.Aliases...)
		e.Params = append(e.Params[:0:0], e.Params...)
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
		cp.Entries[i] = e
	}
	return &cp, nil
}

// Registry is the set of loaded groups. Reads are lock-free; writers are
// serialized.
type Registry struct {
	mu     sync.Mutex
	cur    atomic.Pointer[Snapshot]
	logger *slog.Logger
}

// New returns an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	r.cur.Store(empty)
	return r
}

// Snapshot returns the current immutable view. Dispatch takes one snapshot
// per event.
func (r *Registry) Snapshot() *Snapshot {
	return r.cur.Load()
}

// Commands lists every loaded command once.
func (r *Registry) Commands() []*Entry { return r.Snapshot().Commands() }

// Groups lists loaded group names in load order.
func (r *Registry) Groups() []string { return r.Snapshot().Groups() }

// LoadGroup validates g, runs its OnLoad hook and publishes it. On any
// failure nothing is published.
func (r *Registry) LoadGroup(ctx context.Context, g Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.cur.Load()
	if _, ok := cur.Group(g.Name); ok {
		return &DuplicateGroupError{Group: g.Name}
	}
	ng, err := prepare(g)
	if err != nil {
		return err
	}
	next, err := build(append(append([]*Group(nil), cur.groups...), ng))
	if err != nil {
		return err
	}
	if ng.OnLoad != nil {
		if err := ng.OnLoad(ctx); err != nil {
			return fmt.Errorf("loading group %q: %w", g.Name, err)
		}
	}
	r.cur.Store(next)
	r.logger.Info("registry: group loaded", "group", g.Name, "entries", len(ng.Entries))
	return nil
}

// UnloadGroup removes every entry owned by the named group in one swap, then
// runs its OnUnload hook.
func (r *Registry) UnloadGroup(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.cur.Load()
	old, ok := cur.Group(name)
	if !ok {
		return fmt.Errorf("unloading group %q: %w", name, ErrGroupNotLoaded)
	}
	rest := make([]*Group, 0, len(cur.groups)-1)
	for _, g := range cur.groups {
		if g != old {
			rest = append(rest, g)
		}
	}
	next, err := build(rest)
	if err != nil {
		return err
	}
	r.cur.Store(next)
	r.runUnload(ctx, old)
	r.logger.Info("registry: group unloaded", "group", name)
	return nil
}

// ReloadGroup replaces the loaded group of the same name with g in one swap.
// The new group's OnLoad runs first and may veto the reload, in which case
// the old group stays in place untouched.
func (r *Registry) ReloadGroup(ctx context.Context, g Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.cur.Load()
	old, ok := cur.Group(g.Name)
	if !ok {
		return fmt.Errorf("reloading group %q: %w", g.Name, ErrGroupNotLoaded)
	}
	ng, err := prepare(g)
	if err != nil {
		return err
	}
	groups := make([]*Group, len(cur.groups))
	for i, cg := range cur.groups {
		if cg == old {
			groups[i] = ng
		} else {
			groups[i] = cg
		}
	}
	next, err := build(groups)
	if err != nil {
		return err
	}
	if ng.OnLoad != nil {
		if err := ng.OnLoad(ctx); err != nil {
			return fmt.Errorf("reloading group %q: %w", g.Name, err)
		}
	}
	r.cur.Store(next)
	r.runUnload(ctx, old)
	r.logger.Info("registry: group reloaded", "group", g.Name, "entries", len(ng.Entries))
	return nil
}

func (r *Registry) runUnload(ctx context.Context, g *Group) {
	if g.OnUnload == nil {
		return
	}
	if err := g.OnUnload(ctx); err != nil {
		r.logger.Warn("registry: unload hook failed", "group", g.Name, "err", err)
	}
}
