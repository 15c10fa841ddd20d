// Package presence tracks recent activity of chat users.
//
// The Tracker keeps an in-memory roster keyed by actor id, fed from the
// events the bot dispatches. A background reaper marks users idle past a
// threshold as away, and forgets them some time later so the roster does not
// grow without bound.
package presence

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// Entry is a snapshot of one user's activity.
type Entry struct {
	ActorID     string    `json:"actor_id"`
	Login       string    `json:"login"`
	DisplayName string    `json:"display_name,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
	FirstSeen   time.Time `json:"first_seen"`
	LastEvent   string    `json:"last_event"` // event type name
	SpaceID     string    `json:"space_id,omitempty"`
	RoomID      string    `json:"room_id,omitempty"`
	Status      string    `json:"status,omitempty"` // last presence status reported by the service
	IdleSecs    float64   `json:"idle_secs"`
	EventCount  int64     `json:"event_count"`
	Away        bool      `json:"away,omitempty"`
	AwayAt      time.Time `json:"away_at,omitempty"`
}

// Name returns the best human-readable name for the entry.
func (e Entry) Name() string {
	switch {
	case e.DisplayName != "":
		return e.DisplayName
	case e.Login != "":
		return e.Login
	default:
		return e.ActorID
	}
}

// ReaperConfig configures the background away reaper.
type ReaperConfig struct {
	// AwayThreshold is how long a user must be idle before being marked away.
	// Default: 15 minutes.
	AwayThreshold time.Duration

	// EvictAfter is how long after being marked away before a user is
	// removed from the roster. Default: 24 hours.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans the roster.
	// Default: 60 seconds.
	SweepInterval time.Duration

	// OnAway is called for each user newly marked away, outside the lock.
	OnAway func(actorID string)
}

// Tracker maintains an in-memory roster of active users.
type Tracker struct {
	mu     sync.RWMutex
	actors map[string]*actorState
	now    func() time.Time
	logger *slog.Logger

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type actorState struct {
	login       string
	displayName string
	firstSeen   time.Time
	lastSeen    time.Time
	lastEvent   string
	spaceID     string
	roomID      string
	status      string
	eventCount  int64
	away        bool
	awayAt      time.Time
}

// New creates a new presence tracker.
func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		actors: make(map[string]*actorState),
		now:    time.Now,
		logger: logger,
	}
}

// Record updates the roster from a dispatched event. Events without an actor
// are ignored. Activity time is the event's timestamp, so replayed events
// never move a user's last-seen time backwards.
func (t *Tracker) Record(ev model.Event) {
	if ev.Actor == nil || ev.Actor.ID == "" {
		return
	}
	seen := ev.Timestamp
	if seen.IsZero() {
		seen = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.actors[ev.Actor.ID]
	if !ok {
		state = &actorState{firstSeen: seen}
		t.actors[ev.Actor.ID] = state
	}
	if ev.Actor.Login != "" {
		state.login = ev.Actor.Login
	}
	if ev.Actor.DisplayName != "" {
		state.displayName = ev.Actor.DisplayName
	}
	state.eventCount++
	if ev.Type == model.EventPresenceChanged && ev.Status != "" {
		state.status = ev.Status
	}
	if seen.Before(state.lastSeen) {
		return
	}

	if state.away {
		t.logger.Debug("presence: user back", "actor", ev.Actor.ID)
		state.away = false
		state.awayAt = time.Time{}
	}
	state.lastSeen = seen
	state.lastEvent = ev.Type
	state.spaceID = ev.SpaceID
	if ev.RoomID != "" {
		state.roomID = ev.RoomID
	}
}

// Roster returns a snapshot of all tracked users, most recently active first.
// staleThreshold excludes users idle longer than it; 0 includes everyone.
func (t *Tracker) Roster(staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.actors))
	for id, state := range t.actors {
		idle := now.Sub(state.lastSeen)
		if staleThreshold > 0 && idle > staleThreshold {
			continue
		}
		entries = append(entries, state.entry(id, idle))
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// Lookup finds a user by actor id, login or display name (case-insensitive).
func (t *Tracker) Lookup(name string) (Entry, bool) {
	name = strings.TrimPrefix(name, "@")
	t.mu.RLock()
	defer t.mu.RUnlock()

	if state, ok := t.actors[name]; ok {
		return state.entry(name, t.now().Sub(state.lastSeen)), true
	}
	for id, state := range t.actors {
		if strings.EqualFold(state.login, name) || strings.EqualFold(state.displayName, name) {
			return state.entry(id, t.now().Sub(state.lastSeen)), true
		}
	}
	return Entry{}, false
}

// Len returns the number of tracked users.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.actors)
}

func (s *actorState) entry(id string, idle time.Duration) Entry {
	return Entry{
		ActorID:     id,
		Login:       s.login,
		DisplayName: s.displayName,
		LastSeen:    s.lastSeen,
		FirstSeen:   s.firstSeen,
		LastEvent:   s.lastEvent,
		SpaceID:     s.spaceID,
		RoomID:      s.roomID,
		Status:      s.status,
		IdleSecs:    idle.Seconds(),
		EventCount:  s.eventCount,
		Away:        s.away,
		AwayAt:      s.awayAt,
	}
}

// StartReaper launches a background goroutine that periodically marks idle
// users as away. Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.AwayThreshold == 0 {
		cfg.AwayThreshold = 15 * time.Minute
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.mu.Lock()
	if t.reaperStop != nil {
		t.mu.Unlock()
		return
	}
	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})
	stop, done := t.reaperStop, t.reaperDone
	t.mu.Unlock()

	go t.reapLoop(cfg, stop, done)
	t.logger.Info("presence: reaper started",
		"away_threshold", cfg.AwayThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stop, done := t.reaperStop, t.reaperDone
	t.reaperStop, t.reaperDone = nil, nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := t.now()
	var newlyAway []string

	t.mu.Lock()
	for id, state := range t.actors {
		if state.away {
			// Users seen only a handful of times are forgotten sooner.
			evictThreshold := cfg.EvictAfter
			if state.eventCount < 10 && evictThreshold > time.Hour {
				evictThreshold = time.Hour
			}
			if !state.awayAt.IsZero() && now.Sub(state.awayAt) > evictThreshold {
				delete(t.actors, id)
			}
			continue
		}
		if now.Sub(state.lastSeen) > cfg.AwayThreshold {
			state.away = true
			state.awayAt = now
			newlyAway = append(newlyAway, id)
		}
	}
	t.mu.Unlock()

	for _, id := range newlyAway {
		t.logger.Debug("presence: user marked away", "actor", id, "threshold", cfg.AwayThreshold)
		if cfg.OnAway != nil {
			cfg.OnAway(id)
		}
	}
}
