package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultRemindersPath is the reminders file used when none is configured.
const DefaultRemindersPath = ".chatto-bot-reminders.toml"

// reminderCheckInterval is how often the checker looks for due reminders.
const reminderCheckInterval = 30 * time.Second

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrNotYourReminder  = errors.New("reminder belongs to someone else")
)

// Poster posts a top-level message into a room.
type Poster interface {
	PostMessage(ctx context.Context, spaceID, roomID, body, inReplyTo string) error
}

// Reminder is one pending reminder.
type Reminder struct {
	ID          string    `toml:"id"`
	CreatorID   string    `toml:"creator_id"`
	TargetID    string    `toml:"target_id"`
	TargetName  string    `toml:"target_name"`
	TargetLogin string    `toml:"target_login"`
	SpaceID     string    `toml:"space_id"`
	RoomID      string    `toml:"room_id"`
	DueAt       time.Time `toml:"due_at"`
	Message     string    `toml:"message"`
	CreatedAt   time.Time `toml:"created_at"`
}

type remindersFile struct {
	Reminder []Reminder `toml:"reminder"`
}

// Reminders holds pending reminders and delivers them when due. With a path
// every change is written through to a TOML file.
type Reminders struct {
	mu     sync.Mutex
	path   string
	items  []Reminder
	logger *slog.Logger

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewReminders loads the reminders file at path ("" keeps reminders in
// memory only). On a read error the returned store is still usable, empty,
// and will overwrite the file on the next change.
func NewReminders(path string, logger *slog.Logger) (*Reminders, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reminders{path: path, logger: logger}
	if path == "" {
		return r, nil
	}
	var f remindersFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return r, fmt.Errorf("reading reminders file %s: %w", path, err)
	}
	r.items = f.Reminder
	return r, nil
}

// Add stores a new reminder.
func (r *Reminders) Add(rem Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, rem)
	return r.saveLocked()
}

// Cancel removes the reminder with the given id on behalf of actorID, who
// must be its creator or its target.
func (r *Reminders) Cancel(id, actorID string) (Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rem := range r.items {
		if rem.ID != id {
			continue
		}
		if rem.CreatorID != actorID && rem.TargetID != actorID {
			return Reminder{}, ErrNotYourReminder
		}
		r.items = append(r.items[:i:i], r.items[i+1:]...)
		return rem, r.saveLocked()
	}
	return Reminder{}, ErrReminderNotFound
}

// For returns the reminders actorID created or is the target of, soonest
// first.
func (r *Reminders) For(actorID string) []Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Reminder
	for _, rem := range r.items {
		if rem.CreatorID == actorID || rem.TargetID == actorID {
			out = append(out, rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

// Len returns the number of pending reminders.
func (r *Reminders) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// takeDue removes and returns every reminder due at or before now.
func (r *Reminders) takeDue(now time.Time) ([]Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due, rest []Reminder
	for _, rem := range r.items {
		if !rem.DueAt.After(now) {
			due = append(due, rem)
		} else {
			rest = append(rest, rem)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	r.items = rest
	return due, r.saveLocked()
}

// deliver posts every due reminder. A failed post is logged and the
// reminder dropped.
func (r *Reminders) deliver(ctx context.Context, p Poster, now time.Time) {
	due, err := r.takeDue(now)
	if err != nil {
		r.logger.Warn("plugins: saving reminders failed", "err", err)
	}
	for _, rem := range due {
		login := rem.TargetLogin
		if login == "" {
			login = rem.TargetName
		}
		body := fmt.Sprintf("⏰ @%s reminder: %s", login, rem.Message)
		if err := p.PostMessage(ctx, rem.SpaceID, rem.RoomID, body, ""); err != nil {
			r.logger.Error("plugins: delivering reminder failed", "id", rem.ID, "space", rem.SpaceID, "room", rem.RoomID, "err", err)
		}
	}
}

// StartChecker delivers due reminders every interval until Stop. It is a
// no-op when the checker is already running.
func (r *Reminders) StartChecker(p Poster, interval time.Duration, now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	if interval <= 0 {
		interval = reminderCheckInterval
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				r.deliver(ctx, p, now())
				cancel()
			}
		}
	}()
}

// Stop halts the checker and waits for it. Safe to call more than once.
func (r *Reminders) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stop, done := r.stop, r.done
	r.mu.Unlock()

	close(stop)
	<-done
}

func (r *Reminders) saveLocked() error {
	if r.path == "" {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".chatto-reminders-*")
	if err != nil {
		return fmt.Errorf("creating temp reminders file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(remindersFile{Reminder: r.items}); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding reminders: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing temp reminders file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replacing reminders file: %w", err)
	}
	return nil
}
