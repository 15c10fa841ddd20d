package handler

import (
	"context"
	"testing"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

type post struct {
	space, room, body, inReplyTo string
}

type reaction struct {
	add                       bool
	space, room, event, emoji string
}

type recorder struct {
	posts     []post
	reactions []reaction
}

func (r *recorder) PostMessage(_ context.Context, spaceID, roomID, body, inReplyTo string) error {
	r.posts = append(r.posts, post{spaceID, roomID, body, inReplyTo})
	return nil
}

func (r *recorder) AddReaction(_ context.Context, spaceID, roomID, eventID, emoji string) error {
	r.reactions = append(r.reactions, reaction{true, spaceID, roomID, eventID, emoji})
	return nil
}

func (r *recorder) RemoveReaction(_ context.Context, spaceID, roomID, eventID, emoji string) error {
	r.reactions = append(r.reactions, reaction{false, spaceID, roomID, eventID, emoji})
	return nil
}

func TestContext_Reply(t *testing.T) {
	rec := &recorder{}
	hc := New("dsp-1", model.Event{ID: "ev-1", SpaceID: "sp", RoomID: "rm"}, rec, nil)
	if err := hc.Reply(context.Background(), "hi"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(rec.posts) != 1 || rec.posts[0] != (post{"sp", "rm", "hi", ""}) {
		t.Errorf("posts = %+v", rec.posts)
	}
}

func TestContext_ReplyInThread(t *testing.T) {
	rec := &recorder{}
	ctx := context.Background()

	top := New("dsp-1", model.Event{ID: "ev-1", SpaceID: "sp", RoomID: "rm"}, rec, nil)
	_ = top.ReplyInThread(ctx, "a")
	threaded := New("dsp-2", model.Event{ID: "ev-2", SpaceID: "sp", RoomID: "rm", InThread: "ev-root"}, rec, nil)
	_ = threaded.ReplyInThread(ctx, "b")

	if got := rec.posts[0].inReplyTo; got != "ev-1" {
		t.Errorf("unthreaded reply root = %q, want ev-1", got)
	}
	if got := rec.posts[1].inReplyTo; got != "ev-root" {
		t.Errorf("threaded reply root = %q, want ev-root", got)
	}
}

func TestContext_ReactUnreact(t *testing.T) {
	rec := &recorder{}
	hc := New("dsp-1", model.Event{ID: "ev-1", SpaceID: "sp", RoomID: "rm"}, rec, nil)
	ctx := context.Background()
	_ = hc.React(ctx, "👍")
	_ = hc.Unreact(ctx, "👍")
	want := []reaction{{true, "sp", "rm", "ev-1", "👍"}, {false, "sp", "rm", "ev-1", "👍"}}
	if len(rec.reactions) != 2 || rec.reactions[0] != want[0] || rec.reactions[1] != want[1] {
		t.Errorf("reactions = %+v, want %+v", rec.reactions, want)
	}
}

func TestContext_Values(t *testing.T) {
	hc := New("dsp-1", model.Event{ID: "ev-1"}, &recorder{}, nil)
	if _, ok := hc.Get("k"); ok {
		t.Error("Get on empty context returned ok")
	}
	hc.Set("k", 3)
	if v, ok := hc.Get("k"); !ok || v.(int) != 3 {
		t.Errorf("Get(k) = %v, %v", v, ok)
	}
}

func TestContext_IsDM(t *testing.T) {
	if !New("d", model.Event{SpaceID: model.DMSpace}, &recorder{}, nil).IsDM() {
		t.Error("IsDM() = false for DM space")
	}
}
