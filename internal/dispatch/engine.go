// Package dispatch routes events from the connection to handlers.
//
// The Engine is the connection's sink. Inbound items go to an unbounded inbox
// consumed by a single goroutine (Run), so dispatch is strictly sequential in
// receipt order. Each event is deduplicated against the replay cursors, run
// through the middleware chain, routed to at most one command and every
// matching listener, and then moves its space's cursor forward.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/events"
	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/idgen"
	"github.com/alfredjeanlab/chattobot/internal/metrics"
	"github.com/alfredjeanlab/chattobot/internal/middleware"
	"github.com/alfredjeanlab/chattobot/internal/model"
	"github.com/alfredjeanlab/chattobot/internal/registry"
	"github.com/alfredjeanlab/chattobot/internal/replay"
	"github.com/alfredjeanlab/chattobot/internal/telemetry"
)

// Options configures an Engine. Registry, Chain, Tracker and Responder are
// required.
type Options struct {
	Prefix    string
	Admins    []string
	Registry  *registry.Registry
	Chain     *middleware.Chain
	Tracker   *replay.Tracker
	Responder handler.Responder

	// Replay plans the backfill run on every Ready. Nil disables backfill.
	Replay *replay.Buffer

	Publisher events.Publisher
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Now       func() time.Time
}

// Engine is the dispatch engine.
type Engine struct {
	opts   Options
	admins map[string]bool
	logger *slog.Logger
	tracer trace.Tracer

	inbox    *inbox
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool

	// hctx is handed to handlers; it is cancelled only when a drain is
	// abandoned.
	hctx    context.Context
	hcancel context.CancelFunc
}

// New returns an Engine. Call Run to start consuming.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer("dispatch")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	admins := make(map[string]bool, len(opts.Admins))
	for _, a := range opts.Admins {
		admins[a] = true
	}
	hctx, hcancel := context.WithCancel(context.Background())
	return &Engine{
		opts:    opts,
		admins:  admins,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		inbox:   newInbox(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		hctx:    hctx,
		hcancel: hcancel,
	}
}

// Ready queues a connection-ready marker. It implements conn.Sink.
func (e *Engine) Ready() {
	e.inbox.push(item{ready: true})
}

// Event queues a live event. It implements conn.Sink.
func (e *Engine) Event(ev model.Event) {
	metrics.EventsReceived.WithLabelValues(ev.Type).Inc()
	e.inbox.push(item{event: ev})
}

// Pending returns the number of queued items.
func (e *Engine) Pending() int { return e.inbox.len() }

func (e *Engine) stopping() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

// Run consumes the inbox until Stop is called or ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("dispatch: Run called twice")
	}
	defer close(e.done)

	for {
		if e.stopping() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		it, ok := e.inbox.pop()
		if !ok {
			select {
			case <-e.inbox.notify:
				continue
			case <-e.stop:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if it.ready {
			e.onReady()
		} else {
			e.Dispatch(e.hctx, it.event)
		}
	}
}

// Stop stops taking new items and waits up to timeout for the in-flight
// dispatch to finish. Queued items are dropped; they are after the persisted
// cursor and are replayed on the next start. If the drain times out, the
// handler context is cancelled and ErrDrainTimeout is returned.
func (e *Engine) Stop(timeout time.Duration) error {
	e.stopOnce.Do(func() { close(e.stop) })
	if n := e.inbox.close(); n > 0 {
		e.logger.Info("dispatch: dropping queued items on stop", "count", n)
	}
	if !e.started.Load() {
		e.hcancel()
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.done:
		e.hcancel()
		return nil
	case <-timer.C:
		e.hcancel()
		e.logger.Error("dispatch: in-flight dispatch abandoned after drain timeout", "timeout", timeout)
		return ErrDrainTimeout
	}
}

// onReady dispatches the synthetic connection_ready event, then the backfill,
// before any live event queued behind the marker.
func (e *Engine) onReady() {
	now := e.opts.Now()
	e.Dispatch(e.hctx, model.Event{
		ID:        idgen.Dispatch(),
		Type:      model.EventConnectionReady,
		Timestamp: now,
	})
	if e.opts.Replay == nil {
		return
	}

	bf := e.opts.Replay.OnSubscribed(now)
	for !e.stopping() {
		ev, ok := bf.Next(e.hctx)
		if !ok {
			break
		}
		metrics.ReplayedEvents.Inc()
		e.Dispatch(e.hctx, ev)
	}

	spaces := make([]string, 0, len(bf.Windows()))
	for _, w := range bf.Windows() {
		spaces = append(spaces, w.Space)
	}
	done := events.ReplayCompleted{Spaces: spaces, Replayed: bf.Count()}
	if err := bf.Err(); err != nil {
		metrics.ReplayErrors.Inc()
		done.Error = err.Error()
		e.logger.Warn("dispatch: replay incomplete, continuing with live events", "err", err, "replayed", bf.Count())
	} else {
		e.logger.Info("dispatch: replay complete", "replayed", bf.Count())
	}
	e.publish(events.TopicReplayCompleted, done)
}

// Dispatch processes one event synchronously. Events at or before their
// space's cursor are dropped without invoking anything.
func (e *Engine) Dispatch(ctx context.Context, ev model.Event) {
	synthetic := ev.Type == model.EventConnectionReady
	if !synthetic && !e.opts.Tracker.Admit(ev) {
		metrics.EventsDispatched.WithLabelValues(ev.Type, "duplicate").Inc()
		e.logger.Debug("dispatch: dropping already-dispatched event", "event_id", ev.ID, "space", ev.SpaceID)
		return
	}

	start := time.Now()
	id := idgen.Dispatch()
	ctx, span := e.tracer.Start(ctx, "dispatch "+ev.Type, trace.WithAttributes(
		attribute.String("chatto.dispatch_id", id),
		attribute.String("chatto.event.id", ev.ID),
		attribute.String("chatto.event.type", ev.Type),
		attribute.String("chatto.space.id", ev.SpaceID),
		attribute.String("chatto.room.id", ev.RoomID),
	))
	defer span.End()

	hc := handler.New(id, ev, e.opts.Responder, e.logger)
	snap := e.opts.Registry.Snapshot()

	reached, err := e.opts.Chain.Run(ctx, hc, func(ctx context.Context) error {
		e.route(ctx, hc, snap)
		return nil
	})
	if err != nil {
		hc.Logger.Error("dispatch: middleware failed", "err", err)
		metrics.HandlerErrors.WithLabelValues("middleware", "").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	outcome := "handled"
	if !reached {
		outcome = "short_circuit"
		span.SetAttributes(attribute.Bool("chatto.short_circuit", true))
	}
	if !synthetic {
		e.opts.Tracker.Advance(ev)
	}
	metrics.EventsDispatched.WithLabelValues(ev.Type, outcome).Inc()
	metrics.DispatchDuration.WithLabelValues(ev.Type).Observe(time.Since(start).Seconds())
}

// route runs the command (if any) and then every matching listener.
func (e *Engine) route(ctx context.Context, hc *handler.Context, snap *registry.Snapshot) {
	ev := hc.Event
	if ev.Type == model.EventMessagePosted && e.opts.Prefix != "" && strings.HasPrefix(ev.Body, e.opts.Prefix) {
		e.runCommand(ctx, hc, snap)
	}
	for _, l := range snap.Listeners(ev.Type) {
		if !l.Filter.Matches(ev) {
			continue
		}
		if err := invoke(func() error { return l.Listener(ctx, hc) }); err != nil {
			e.handlerFailed(ctx, hc, l, err)
		}
	}
}

func (e *Engine) runCommand(ctx context.Context, hc *handler.Context, snap *registry.Snapshot) {
	name, rest := splitCommand(hc.Event.Body[len(e.opts.Prefix):])
	if name == "" {
		return
	}
	entry, ok := snap.Command(name)
	if !ok {
		metrics.CommandsInvoked.WithLabelValues("", "unknown").Inc()
		hc.Logger.Debug("dispatch: unknown command", "command", name)
		return
	}
	if entry.AdminOnly && !e.isAdmin(hc.Actor()) {
		metrics.CommandsInvoked.WithLabelValues(entry.Trigger, "denied").Inc()
		hc.Logger.Info("dispatch: admin command denied", "command", entry.Trigger, "actor", hc.Event.ActorID())
		return
	}
	hc.Command, hc.Args = entry.Trigger, rest

	vals, err := args.Coerce(entry.Params, rest)
	if err == nil {
		err = invoke(func() error { return entry.Command(ctx, hc, vals) })
	}

	var argErr *args.ArgumentError
	switch {
	case err == nil:
		metrics.CommandsInvoked.WithLabelValues(entry.Trigger, "ok").Inc()
	case errors.As(err, &argErr):
		metrics.CommandsInvoked.WithLabelValues(entry.Trigger, "argument_error").Inc()
		if rerr := hc.Reply(ctx, "Error: "+argErr.Error()); rerr != nil {
			hc.Logger.Warn("dispatch: replying with argument error failed", "err", rerr)
		}
	default:
		metrics.CommandsInvoked.WithLabelValues(entry.Trigger, "error").Inc()
		e.handlerFailed(ctx, hc, entry, err)
	}
}

func (e *Engine) isAdmin(a *model.Actor) bool {
	return a != nil && a.Login != "" && e.admins[a.Login]
}

func (e *Engine) handlerFailed(ctx context.Context, hc *handler.Context, entry *registry.Entry, err error) {
	herr := &HandlerError{Group: entry.Group, Trigger: entry.Trigger, EventID: hc.Event.ID, Err: err}
	hc.Logger.Error("dispatch: handler failed", "group", entry.Group, "trigger", entry.Trigger, "kind", entry.Kind, "err", err)
	metrics.HandlerErrors.WithLabelValues(entry.Group, entry.Trigger).Inc()

	span := trace.SpanFromContext(ctx)
	span.RecordError(herr)
	span.SetStatus(codes.Error, herr.Error())

	e.publish(events.TopicHandlerFailed, events.HandlerFailed{
		DispatchID: hc.DispatchID,
		EventID:    hc.Event.ID,
		EventType:  hc.Event.Type,
		Group:      entry.Group,
		Trigger:    entry.Trigger,
		Error:      err.Error(),
	})
}

func (e *Engine) publish(topic string, event any) {
	if err := e.opts.Publisher.Publish(context.Background(), topic, event); err != nil {
		e.logger.Warn("dispatch: publishing event failed", "topic", topic, "err", err)
	}
}

// invoke calls fn, converting a panic into a *middleware.PanicError.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &middleware.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// splitCommand splits "roll 20 d" into "roll" and "20 d". Whitespace between
// the prefix and the name is ignored.
func splitCommand(content string) (name, rest string) {
	content = strings.TrimLeftFunc(content, unicode.IsSpace)
	i := strings.IndexFunc(content, unicode.IsSpace)
	if i < 0 {
		return content, ""
	}
	return content[:i], strings.TrimLeftFunc(content[i:], unicode.IsSpace)
}
