package middleware

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/model"
)

func newContext(ev model.Event) *handler.Context {
	return handler.New("dsp-test", ev, nil, nil)
}

func record(calls *[]string, name string) Func {
	return func(ctx context.Context, hc *handler.Context, next Next) error {
		*calls = append(*calls, name)
		return next(ctx)
	}
}

func TestChain_RunsInRegistrationOrder(t *testing.T) {
	var calls []string
	var c Chain
	c.Use(record(&calls, "a"))
	c.Use(record(&calls, "b"))
	c.Use(record(&calls, "c"))

	reached, err := c.Run(context.Background(), newContext(model.Event{ID: "ev"}), func(context.Context) error {
		calls = append(calls, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reached {
		t.Error("reached = false, want true")
	}
	if want := []string{"a", "b", "c", "handler"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestChain_ShortCircuit(t *testing.T) {
	var calls []string
	var c Chain
	c.Use(record(&calls, "a"))
	c.Use(func(ctx context.Context, hc *handler.Context, next Next) error {
		calls = append(calls, "stop")
		return nil
	})
	c.Use(record(&calls, "never"))

	reached, err := c.Run(context.Background(), newContext(model.Event{ID: "ev"}), func(context.Context) error {
		calls = append(calls, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reached {
		t.Error("reached = true after short-circuit")
	}
	if want := []string{"a", "stop"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestChain_Empty(t *testing.T) {
	var c Chain
	ran := false
	reached, err := c.Run(context.Background(), newContext(model.Event{}), func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !reached || !ran {
		t.Errorf("Run on empty chain: reached=%v ran=%v err=%v", reached, ran, err)
	}
}

func TestChain_PropagatesFinalError(t *testing.T) {
	var c Chain
	c.Use(Logging())
	boom := errors.New("boom")
	_, err := c.Run(context.Background(), newContext(model.Event{}), func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRecover(t *testing.T) {
	var c Chain
	c.Use(Recover())
	_, err := c.Run(context.Background(), newContext(model.Event{}), func(context.Context) error {
		panic("kaboom")
	})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PanicError", err)
	}
	if pe.Value != "kaboom" {
		t.Errorf("Value = %v", pe.Value)
	}
}

func TestIgnoreActor(t *testing.T) {
	var c Chain
	c.Use(IgnoreActor("bot-id"))

	for _, tc := range []struct {
		name  string
		actor *model.Actor
		want  bool
	}{
		{"own message", &model.Actor{ID: "bot-id"}, false},
		{"other user", &model.Actor{ID: "u-1"}, true},
		{"no actor", nil, true},
	} {
		reached, err := c.Run(context.Background(), newContext(model.Event{Actor: tc.actor}), func(context.Context) error { return nil })
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if reached != tc.want {
			t.Errorf("%s: reached = %v, want %v", tc.name, reached, tc.want)
		}
	}
}

func TestAllowRooms(t *testing.T) {
	var c Chain
	c.Use(AllowRooms("rm-1"))

	for _, tc := range []struct {
		room string
		want bool
	}{
		{"rm-1", true},
		{"rm-2", false},
		{"", true},
	} {
		reached, _ := c.Run(context.Background(), newContext(model.Event{RoomID: tc.room}), func(context.Context) error { return nil })
		if reached != tc.want {
			t.Errorf("room %q: reached = %v, want %v", tc.room, reached, tc.want)
		}
	}

	var open Chain
	open.Use(AllowRooms())
	if reached, _ := open.Run(context.Background(), newContext(model.Event{RoomID: "any"}), func(context.Context) error { return nil }); !reached {
		t.Error("empty allowlist should allow every room")
	}
}
