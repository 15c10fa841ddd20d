// Package replay tracks how far each space has been dispatched and, after a
// (re)connect, backfills the events that were missed while disconnected.
//
// Backfill is bounded below by max(cursor, now - horizon) so that a long
// outage costs at most one horizon of history per space.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// DefaultHorizon is the maximum lookback of a backfill.
const DefaultHorizon = time.Hour

// HistoryFetcher returns the events of a space at or after since, in any
// order.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, spaceID string, since time.Time) ([]model.Event, error)
}

// ReplayError reports a failed history query. Replay is best effort: the
// engine logs it and carries on with live events.
type ReplayError struct {
	Space string
	Err   error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay %s: %v", e.Space, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// Window is the time range backfilled for one space: [Since, Until).
type Window struct {
	Space string
	Since time.Time
	Until time.Time
}

// Buffer plans backfills from the tracker's cursors.
type Buffer struct {
	tracker *Tracker
	fetcher HistoryFetcher
	spaces  []string
	horizon time.Duration
	logger  *slog.Logger
}

// NewBuffer returns a Buffer for the given spaces. A zero horizon means
// DefaultHorizon.
func NewBuffer(tracker *Tracker, fetcher HistoryFetcher, spaces []string, horizon time.Duration, logger *slog.Logger) *Buffer {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		tracker: tracker,
		fetcher: fetcher,
		spaces:  append([]string(nil), spaces...),
		horizon: horizon,
		logger:  logger,
	}
}

// Window computes the backfill range of one space at now.
func (b *Buffer) Window(space string, now time.Time) Window {
	since := now.Add(-b.horizon)
	if c := b.tracker.Cursor(space); c.LastTimestamp.After(since) {
		since = c.LastTimestamp
	}
	return Window{Space: space, Since: since, Until: now}
}

// OnSubscribed returns the backfill to run after the connection reached the
// subscribed state at now. Nothing is fetched until Next is called.
func (b *Buffer) OnSubscribed(now time.Time) *Backfill {
	bf := &Backfill{buffer: b}
	for _, s := range b.spaces {
		bf.windows = append(bf.windows, b.Window(s, now))
	}
	return bf
}

// Backfill is a lazy, finite, non-restartable sequence of missed events,
// oldest first within each space.
type Backfill struct {
	buffer  *Buffer
	windows []Window
	pending []model.Event
	err     error
	done    bool
	count   int
}

// Windows returns the ranges this backfill covers.
func (bf *Backfill) Windows() []Window {
	return append([]Window(nil), bf.windows...)
}

// Next returns the next missed event, fetching the next space's history when
// the current one is exhausted. It returns false once every space has been
// fetched or ctx is done.
func (bf *Backfill) Next(ctx context.Context) (model.Event, bool) {
	for {
		if bf.done {
			return model.Event{}, false
		}
		for len(bf.pending) > 0 {
			ev := bf.pending[0]
			bf.pending = bf.pending[1:]
			if bf.buffer.tracker.Admit(ev) {
				bf.count++
				return ev, true
			}
		}
		if len(bf.windows) == 0 {
			bf.done = true
			return model.Event{}, false
		}
		if err := ctx.Err(); err != nil {
			bf.fail(&ReplayError{Space: bf.windows[0].Space, Err: err})
			bf.done = true
			return model.Event{}, false
		}
		w := bf.windows[0]
		bf.windows = bf.windows[1:]
		bf.pending = bf.fetch(ctx, w)
	}
}

func (bf *Backfill) fetch(ctx context.Context, w Window) []model.Event {
	logger := bf.buffer.logger
	evs, err := bf.buffer.fetcher.FetchHistory(ctx, w.Space, w.Since)
	if err != nil {
		rerr := &ReplayError{Space: w.Space, Err: err}
		bf.fail(rerr)
		logger.Warn("replay: history fetch failed, continuing live-only for space", "space", w.Space, "err", err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			bf.done = true
		}
		return nil
	}
	kept := evs[:0:0]
	for _, ev := range evs {
		if ev.SpaceID == "" {
			ev.SpaceID = w.Space
		}
		if ev.SpaceID != w.Space || ev.Timestamp.Before(w.Since) || !ev.Timestamp.Before(w.Until) {
			continue
		}
		kept = append(kept, ev)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Less(kept[j]) })
	logger.Debug("replay: fetched history", "space", w.Space, "since", w.Since, "fetched", len(evs), "in_window", len(kept))
	return kept
}

func (bf *Backfill) fail(err error) {
	if bf.err == nil {
		bf.err = err
	}
}

// Err returns the first *ReplayError encountered, or nil.
func (bf *Backfill) Err() error { return bf.err }

// Count returns how many events Next has yielded.
func (bf *Backfill) Count() int { return bf.count }
