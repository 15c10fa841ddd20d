package plugins

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

func TestParseRemind(t *testing.T) {
	// t0 is 2026-03-01 12:00 UTC
	tests := []struct {
		in      string
		target  string
		due     time.Time
		msg     string
		wantErr bool
	}{
		{in: "me in 5m to check the build", target: "me", due: t0.Add(5 * time.Minute), msg: "check the build"},
		{in: "me in 2 hours to stretch", target: "me", due: t0.Add(2 * time.Hour), msg: "stretch"},
		{in: "@bob in 1d to review PR", target: "bob", due: t0.Add(24 * time.Hour), msg: "review PR"},
		{in: "me on 2026-03-05 at 14:30 to submit report", target: "me", due: time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC), msg: "submit report"},
		{in: "me on 2026-03-05 to pay rent", target: "me", due: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), msg: "pay rent"},
		{in: "me at 18:00 to go home", target: "me", due: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), msg: "go home"},
		{in: "me at 08:00 to wake up", target: "me", due: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), msg: "wake up"},
		{in: "me evening to call mum", target: "me", due: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), msg: "call mum"},
		{in: "me to water plants", target: "me", due: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), msg: "water plants"},
		{in: "ME IN 10M TO shout", target: "me", due: t0.Add(10 * time.Minute), msg: "shout"},
		{in: "me in 5m to keep   inner   spacing", target: "me", due: t0.Add(5 * time.Minute), msg: "keep   inner   spacing"},
		{in: "bob in 5m to x", wantErr: true},
		{in: "me sometime", wantErr: true},
		{in: "me at 25:00 to x", wantErr: true},
		{in: "me on 2026-02-01 to x", wantErr: true},
		{in: "me in 0m to x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			target, due, msg, err := parseRemind(tt.in, t0)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseRemind(%q) = %q %v %q, want error", tt.in, target, due, msg)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRemind(%q): %v", tt.in, err)
			}
			if target != tt.target || !due.Equal(tt.due) || msg != tt.msg {
				t.Errorf("parseRemind(%q) = (%q, %v, %q), want (%q, %v, %q)", tt.in, target, due, msg, tt.target, tt.due, tt.msg)
			}
		})
	}
}

var reminderID = regexp.MustCompile("id: `([a-z0-9]+)`")

func TestRemind_SetListCancel(t *testing.T) {
	f := newFixture(t, "remind")

	if err := f.run(t, "remind"); err != nil {
		t.Fatal(err)
	}
	if got := f.responder.last(t); !strings.HasPrefix(got, "Usage: `!remind me in 5m") {
		t.Errorf("usage = %q", got)
	}

	if err := f.run(t, "remind me in 5m to check the build"); err != nil {
		t.Fatal(err)
	}
	got := f.responder.last(t)
	if !strings.HasPrefix(got, "Reminder set for you at 2026-03-01 12:05 UTC: check the build (id: `") {
		t.Fatalf("reply = %q", got)
	}
	if len(f.responder.reactions) != 1 || f.responder.reactions[0] != "⏰" {
		t.Errorf("reactions = %v", f.responder.reactions)
	}
	id := reminderID.FindStringSubmatch(got)[1]

	if err := f.run(t, "reminders"); err != nil {
		t.Fatal(err)
	}
	want := "**Your pending reminders:**\n- `" + id + "` 2026-03-01 12:05 UTC → you: check the build"
	if got := f.responder.last(t); got != want {
		t.Errorf("reminders = %q, want %q", got, want)
	}

	if err := f.runAs(t, "remind cancel "+id, "mallory"); err != nil {
		t.Fatal(err)
	}
	if got := f.responder.last(t); got != "You can only cancel your own reminders." {
		t.Errorf("foreign cancel = %q", got)
	}
	if err := f.run(t, "rm cancel "+id); err != nil {
		t.Fatal(err)
	}
	if got := f.responder.last(t); got != "Cancelled reminder `"+id+"`: check the build" {
		t.Errorf("cancel = %q", got)
	}
	if err := f.run(t, "remind cancel "+id); err != nil {
		t.Fatal(err)
	}
	if got := f.responder.last(t); got != "No reminder found with id `"+id+"`." {
		t.Errorf("second cancel = %q", got)
	}
	if err := f.run(t, "reminders"); err != nil {
		t.Fatal(err)
	}
	if got := f.responder.last(t); got != "You have no pending reminders." {
		t.Errorf("reminders after cancel = %q", got)
	}
}

func TestRemind_OtherUser(t *testing.T) {
	f := newFixture(t, "remind")

	if err := f.run(t, "remind @bob in 1h to review PR"); err != nil {
		t.Fatal(err)
	}
	if got := f.responder.last(t); got != "Could not find user `bob`." {
		t.Errorf("unknown user = %q", got)
	}

	f.deps.Presence.Record(model.Event{
		ID: "ev-b", Type: model.EventMessagePosted, Timestamp: t0, SpaceID: "sp", RoomID: "r1",
		Actor: &model.Actor{ID: "u-bob", Login: "bob", DisplayName: "Bob"},
	})
	if err := f.run(t, "remind @bob in 1h to review PR"); err != nil {
		t.Fatal(err)
	}
	if got := f.responder.last(t); !strings.HasPrefix(got, "Reminder set for **Bob** at 2026-03-01 13:00 UTC: review PR") {
		t.Errorf("reply = %q", got)
	}
	// the target sees it too
	if got := f.deps.Reminders.For("u-bob"); len(got) != 1 || got[0].TargetLogin != "bob" {
		t.Errorf("For(u-bob) = %+v", got)
	}
}

func TestReminders_DeliverDue(t *testing.T) {
	r, err := NewReminders("", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, rem := range []Reminder{
		{ID: "a", TargetLogin: "alice", SpaceID: "sp", RoomID: "r1", DueAt: t0, Message: "now"},
		{ID: "b", TargetName: "Bob", SpaceID: "sp", RoomID: "r2", DueAt: t0.Add(-time.Minute), Message: "late"},
		{ID: "c", TargetLogin: "carol", SpaceID: "sp", RoomID: "r1", DueAt: t0.Add(time.Minute), Message: "later"},
	} {
		if err := r.Add(rem); err != nil {
			t.Fatal(err)
		}
	}

	p := &fakeResponder{}
	r.deliver(context.Background(), p, t0)
	if len(p.posts) != 2 {
		t.Fatalf("posts = %v", p.posts)
	}
	if p.posts[0] != "⏰ @alice reminder: now" || p.posts[1] != "⏰ @Bob reminder: late" {
		t.Errorf("posts = %q", p.posts)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestReminders_PersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.toml")
	r, err := NewReminders(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	rem := Reminder{ID: "abc123", CreatorID: "u-1", TargetID: "u-1", SpaceID: "sp", RoomID: "r1",
		DueAt: t0.Add(time.Hour), Message: "persist me", CreatedAt: t0}
	if err := r.Add(rem); err != nil {
		t.Fatal(err)
	}

	again, err := NewReminders(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := again.For("u-1")
	if len(got) != 1 || got[0].Message != "persist me" || !got[0].DueAt.Equal(rem.DueAt) {
		t.Errorf("reloaded = %+v", got)
	}

	if err := os.WriteFile(path, []byte("not = [toml"), 0o600); err != nil {
		t.Fatal(err)
	}
	broken, err := NewReminders(path, nil)
	if err == nil {
		t.Error("expected an error for a corrupt file")
	}
	if broken == nil || broken.Len() != 0 {
		t.Error("a corrupt file should still yield an empty, usable store")
	}
}

func TestRemind_LoadNeedsPoster(t *testing.T) {
	f := newFixture(t)
	f.deps.Poster = nil
	if err := f.catalog.Load(context.Background(), "test", "remind"); err == nil {
		t.Fatal("loading remind without a poster should fail")
	}
}

func TestRemind_ReloadKeepsCheckerAndReminders(t *testing.T) {
	f := newFixture(t, "remind")
	if err := f.run(t, "remind me in 5m to survive"); err != nil {
		t.Fatal(err)
	}
	if err := f.catalog.Reload(context.Background(), "test", "remind"); err != nil {
		t.Fatal(err)
	}
	if f.deps.Reminders.Len() != 1 {
		t.Error("reload dropped reminders")
	}
	if !f.deps.Reminders.running {
		t.Error("reload stopped the checker")
	}
	if err := f.catalog.Unload(context.Background(), "test", "remind"); err != nil {
		t.Fatal(err)
	}
	if f.deps.Reminders.running {
		t.Error("unload left the checker running")
	}
}
