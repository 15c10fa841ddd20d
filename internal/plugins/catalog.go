// Package plugins provides the built-in handler groups and the catalog that
// loads them into a registry by name.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/client"
	"github.com/alfredjeanlab/chattobot/internal/events"
	"github.com/alfredjeanlab/chattobot/internal/metrics"
	"github.com/alfredjeanlab/chattobot/internal/presence"
	"github.com/alfredjeanlab/chattobot/internal/registry"
)

// ErrUnknownGroup is returned for a group name the catalog has no factory for.
var ErrUnknownGroup = errors.New("unknown group")

// RoomLister lists the rooms of a space.
type RoomLister interface {
	Rooms(ctx context.Context, spaceID string) ([]client.Room, error)
}

// Deps are the collaborators a group factory may close over.
type Deps struct {
	Prefix    string
	Spaces    []string
	Registry  *registry.Registry
	Rooms     RoomLister
	Presence  *presence.Tracker
	Publisher events.Publisher
	Poster    Poster
	Reminders *Reminders
	Logger    *slog.Logger

	// Rand and Now are replaceable in tests.
	Rand    *rand.Rand
	Now     func() time.Time
	Started time.Time

	// Catalog is filled in by NewCatalog.
	Catalog *Catalog
}

// Factory builds a fresh group value. It is called on every load and reload.
type Factory func(d *Deps) registry.Group

// Builtins maps the names of the built-in groups to their factories.
var Builtins = map[string]Factory{
	"ping":   Ping,
	"help":   Help,
	"dice":   Dice,
	"fun":    Fun,
	"admin":  Admin,
	"seen":   Seen,
	"remind": Remind,
}

// Catalog knows every group that can be loaded and loads them into the
// registry on request.
type Catalog struct {
	mu        sync.Mutex
	factories map[string]Factory
	deps      *Deps
}

// NewCatalog returns a catalog holding the built-in groups.
func NewCatalog(d *Deps) *Catalog {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Publisher == nil {
		d.Publisher = &events.NoopPublisher{}
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Started.IsZero() {
		d.Started = d.Now()
	}
	if d.Presence == nil {
		d.Presence = presence.New(d.Logger)
	}
	if d.Reminders == nil {
		d.Reminders, _ = NewReminders("", d.Logger)
	}
	c := &Catalog{factories: make(map[string]Factory, len(Builtins)), deps: d}
	for name, f := range Builtins {
		c.factories[name] = f
	}
	d.Catalog = c
	return c
}

// Register adds or replaces a factory.
func (c *Catalog) Register(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

// Names returns every group name the catalog can build, sorted.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns a fresh group value for name.
func (c *Catalog) Build(name string) (registry.Group, error) {
	c.mu.Lock()
	f, ok := c.factories[name]
	c.mu.Unlock()
	if !ok {
		return registry.Group{}, fmt.Errorf("%w %q", ErrUnknownGroup, name)
	}
	g := f(c.deps)
	g.Name = name
	return g, nil
}

// Load builds and loads the named groups in order, stopping at the first
// failure.
func (c *Catalog) Load(ctx context.Context, source string, names ...string) error {
	for _, name := range names {
		g, err := c.Build(name)
		if err != nil {
			return err
		}
		if err := c.deps.Registry.LoadGroup(ctx, g); err != nil {
			return err
		}
		c.changed(ctx, events.TopicGroupLoaded, name, source)
	}
	return nil
}

// Unload removes a loaded group.
func (c *Catalog) Unload(ctx context.Context, source, name string) error {
	if err := c.deps.Registry.UnloadGroup(ctx, name); err != nil {
		return err
	}
	c.changed(ctx, events.TopicGroupUnloaded, name, source)
	return nil
}

// Reload swaps a loaded group for a freshly built one.
func (c *Catalog) Reload(ctx context.Context, source, name string) error {
	g, err := c.Build(name)
	if err != nil {
		return err
	}
	if err := c.deps.Registry.ReloadGroup(ctx, g); err != nil {
		return err
	}
	c.changed(ctx, events.TopicGroupReloaded, name, source)
	return nil
}

// ReloadAll reloads every loaded group the catalog knows. Groups loaded from
// elsewhere are left alone. Every failure is reported.
func (c *Catalog) ReloadAll(ctx context.Context, source string) error {
	known := c.Names()
	var errs []error
	for _, name := range c.deps.Registry.Groups() {
		if !slices.Contains(known, name) {
			continue
		}
		if err := c.Reload(ctx, source, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Catalog) changed(ctx context.Context, topic, name, source string) {
	metrics.LoadedGroups.Set(float64(len(c.deps.Registry.Groups())))
	if err := c.deps.Publisher.Publish(ctx, topic, events.GroupChanged{Group: name, Source: source}); err != nil {
		c.deps.Logger.Warn("plugins: publish group change failed", "topic", topic, "group", name, "err", err)
	}
}
