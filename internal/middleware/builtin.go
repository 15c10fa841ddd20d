package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/handler"
)

// PanicError is returned by Recover when a downstream middleware or handler
// panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover turns a panic further down the chain into a *PanicError.
func Recover() Func {
	return func(ctx context.Context, hc *handler.Context, next Next) (err error) {
		defer func() {
			if r := recover(); r != nil {
				hc.Logger.Error("middleware: panic recovered",
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return next(ctx)
	}
}

// Logging logs the duration and outcome of every dispatch at debug level,
// and failures at warn.
func Logging() Func {
	return func(ctx context.Context, hc *handler.Context, next Next) error {
		start := time.Now()
		err := next(ctx)
		duration := time.Since(start)
		if err != nil {
			hc.Logger.Warn("dispatch completed", "duration", duration, "err", err)
		} else {
			hc.Logger.Debug("dispatch completed", "duration", duration)
		}
		return err
	}
}

// IgnoreActor drops events authored by any of the given actor ids, typically
// the bot's own user so it never answers itself.
func IgnoreActor(ids ...string) Func {
	skip := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			skip[id] = true
		}
	}
	return func(ctx context.Context, hc *handler.Context, next Next) error {
		if skip[hc.Event.ActorID()] {
			return nil
		}
		return next(ctx)
	}
}

// AllowRooms drops events from rooms outside the allowlist. Events without a
// room (presence, typing in DMs) always pass. An empty allowlist allows all.
func AllowRooms(rooms ...string) Func {
	allow := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		allow[r] = true
	}
	return func(ctx context.Context, hc *handler.Context, next Next) error {
		if len(allow) > 0 && hc.Event.RoomID != "" && !allow[hc.Event.RoomID] {
			return nil
		}
		return next(ctx)
	}
}
