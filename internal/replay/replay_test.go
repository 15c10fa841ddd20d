package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// fakeFetcher serves canned history per space and records the since bound
// of every call.
type fakeFetcher struct {
	history map[string][]model.Event
	errs    map[string]error
	calls   []string
	since   map[string]time.Time
}

func (f *fakeFetcher) FetchHistory(_ context.Context, space string, since time.Time) ([]model.Event, error) {
	f.calls = append(f.calls, space)
	if f.since == nil {
		f.since = map[string]time.Time{}
	}
	f.since[space] = since
	if err := f.errs[space]; err != nil {
		return nil, err
	}
	return f.history[space], nil
}

func ev(id, space string, ts time.Time) model.Event {
	return model.Event{ID: id, SpaceID: space, Type: model.EventMessagePosted, Timestamp: ts}
}

func collect(t *testing.T, bf *Backfill) []string {
	t.Helper()
	var ids []string
	for {
		e, ok := bf.Next(context.Background())
		if !ok {
			return ids
		}
		ids = append(ids, e.ID)
	}
}

func TestBackfill_MissedDuringOutage(t *testing.T) {
	T := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	tracker := NewTracker(model.Cursors{"sp": model.CursorOf(ev("ev-0", "sp", T))})

	// newest first, as the service returns it, including already-seen and
	// pre-cursor events
	f := &fakeFetcher{history: map[string][]model.Event{"sp": {
		ev("ev-3", "sp", T.Add(70*time.Second)),
		ev("ev-2", "sp", T.Add(40*time.Second)),
		ev("ev-1", "sp", T.Add(10*time.Second)),
		ev("ev-0", "sp", T),
		ev("ev-old", "sp", T.Add(-30*time.Second)),
	}}}
	buf := NewBuffer(tracker, f, []string{"sp"}, time.Hour, nil)

	bf := buf.OnSubscribed(T.Add(90 * time.Second))
	got := collect(t, bf)
	want := []string{"ev-1", "ev-2", "ev-3"}
	if len(got) != len(want) {
		t.Fatalf("replayed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("replayed %v, want %v", got, want)
		}
	}
	if !f.since["sp"].Equal(T) {
		t.Errorf("since = %v, want cursor timestamp %v", f.since["sp"], T)
	}
	if bf.Err() != nil {
		t.Errorf("Err() = %v", bf.Err())
	}
	if bf.Count() != 3 {
		t.Errorf("Count() = %d, want 3", bf.Count())
	}
	if _, ok := bf.Next(context.Background()); ok {
		t.Error("exhausted backfill yielded again")
	}
}

func TestBuffer_WindowCappedByHorizon(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(model.Cursors{
		"stale": {LastEventID: "x", LastTimestamp: now.Add(-5 * time.Hour)},
		"fresh": {LastEventID: "y", LastTimestamp: now.Add(-10 * time.Minute)},
	})
	buf := NewBuffer(tracker, &fakeFetcher{}, nil, time.Hour, nil)

	for _, tc := range []struct {
		space string
		want  time.Time
	}{
		{"stale", now.Add(-time.Hour)},
		{"fresh", now.Add(-10 * time.Minute)},
		{"never-seen", now.Add(-time.Hour)},
	} {
		w := buf.Window(tc.space, now)
		if !w.Since.Equal(tc.want) {
			t.Errorf("%s: Since = %v, want %v", tc.space, w.Since, tc.want)
		}
		if !w.Until.Equal(now) {
			t.Errorf("%s: Until = %v, want now", tc.space, w.Until)
		}
	}
}

func TestBackfill_ExcludesOutsideWindow(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{history: map[string][]model.Event{"sp": {
		ev("too-old", "sp", now.Add(-2*time.Hour)),
		ev("edge", "sp", now.Add(-time.Hour)),
		ev("ok", "sp", now.Add(-time.Minute)),
		ev("live", "sp", now),
		ev("other-space", "elsewhere", now.Add(-time.Minute)),
	}}}
	bf := NewBuffer(NewTracker(nil), f, []string{"sp"}, time.Hour, nil).OnSubscribed(now)
	got := collect(t, bf)
	if len(got) != 2 || got[0] != "edge" || got[1] != "ok" {
		t.Errorf("replayed %v, want [edge ok]", got)
	}
}

func TestBackfill_LazyPerSpace(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{history: map[string][]model.Event{
		"a": {ev("a1", "a", now.Add(-time.Minute))},
		"b": {ev("b1", "b", now.Add(-time.Minute))},
	}}
	bf := NewBuffer(NewTracker(nil), f, []string{"a", "b"}, 0, nil).OnSubscribed(now)
	if len(f.calls) != 0 {
		t.Fatalf("OnSubscribed fetched eagerly: %v", f.calls)
	}
	if e, ok := bf.Next(context.Background()); !ok || e.ID != "a1" {
		t.Fatalf("first = %v %v", e.ID, ok)
	}
	if len(f.calls) != 1 {
		t.Errorf("calls after first event = %v, want only a", f.calls)
	}
	if e, ok := bf.Next(context.Background()); !ok || e.ID != "b1" {
		t.Fatalf("second = %v %v", e.ID, ok)
	}
}

func TestBackfill_FailureSkipsSpace(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	boom := errors.New("history unavailable")
	f := &fakeFetcher{
		history: map[string][]model.Event{"b": {ev("b1", "b", now.Add(-time.Minute))}},
		errs:    map[string]error{"a": boom},
	}
	bf := NewBuffer(NewTracker(nil), f, []string{"a", "b"}, time.Hour, nil).OnSubscribed(now)
	got := collect(t, bf)
	if len(got) != 1 || got[0] != "b1" {
		t.Errorf("replayed %v, want [b1]", got)
	}
	var rerr *ReplayError
	if !errors.As(bf.Err(), &rerr) || rerr.Space != "a" || !errors.Is(bf.Err(), boom) {
		t.Errorf("Err() = %v, want ReplayError for a wrapping boom", bf.Err())
	}
}

func TestBackfill_SkipsEventsDispatchedMeanwhile(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(nil)
	f := &fakeFetcher{history: map[string][]model.Event{"sp": {
		ev("e1", "sp", now.Add(-3*time.Minute)),
		ev("e2", "sp", now.Add(-2*time.Minute)),
		ev("e3", "sp", now.Add(-time.Minute)),
	}}}
	bf := NewBuffer(tracker, f, []string{"sp"}, time.Hour, nil).OnSubscribed(now)
	e, _ := bf.Next(context.Background())
	tracker.Advance(e)
	tracker.Advance(ev("e2", "sp", now.Add(-2*time.Minute)))
	if e, ok := bf.Next(context.Background()); !ok || e.ID != "e3" {
		t.Errorf("next = %v %v, want e3", e.ID, ok)
	}
}

func TestBackfill_CancelledContext(t *testing.T) {
	f := &fakeFetcher{}
	bf := NewBuffer(NewTracker(nil), f, []string{"a"}, time.Hour, nil).OnSubscribed(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := bf.Next(ctx); ok {
		t.Fatal("Next on cancelled context yielded")
	}
	if len(f.calls) != 0 {
		t.Error("fetched despite cancelled context")
	}
	if !errors.Is(bf.Err(), context.Canceled) {
		t.Errorf("Err() = %v", bf.Err())
	}
}

func TestTracker_AdmitAdvance(t *testing.T) {
	T := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	tr := NewTracker(nil)
	e1 := ev("a", "sp", T)
	e2 := ev("b", "sp", T)
	if !tr.Admit(e1) {
		t.Fatal("fresh tracker rejected event")
	}
	if !tr.Advance(e2) {
		t.Fatal("Advance(e2) = false")
	}
	if tr.Admit(e1) || tr.Admit(e2) {
		t.Error("events at or before cursor admitted")
	}
	if tr.Advance(e1) {
		t.Error("cursor moved backwards")
	}
	if got := tr.Cursor("sp"); got.LastEventID != "b" {
		t.Errorf("cursor = %+v", got)
	}
	if !tr.Admit(ev("a", "other", T)) {
		t.Error("cursor leaked across spaces")
	}

	snap := tr.Snapshot()
	tr.Restore(model.Cursors{})
	if !tr.Admit(e2) {
		t.Error("Restore did not replace cursors")
	}
	if snap["sp"].LastEventID != "b" {
		t.Error("snapshot changed after Restore")
	}
}
