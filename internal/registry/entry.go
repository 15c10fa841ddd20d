package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/model"
)

// Kind distinguishes prefixed commands from event listeners.
type Kind int

const (
	Command Kind = iota
	Listener
)

func (k Kind) String() string {
	if k == Listener {
		return "listener"
	}
	return "command"
}

// Filter narrows a listener to one space, room or actor. Empty fields match
// anything.
type Filter struct {
	Space string
	Room  string
	Actor string
}

// Matches reports whether ev passes every non-empty field of the filter.
func (f Filter) Matches(ev model.Event) bool {
	if f.Space != "" && ev.SpaceID != f.Space {
		return false
	}
	if f.Room != "" && ev.RoomID != f.Room {
		return false
	}
	if f.Actor != "" && ev.Actor != nil && ev.Actor.ID != f.Actor {
		return false
	}
	return true
}

// Entry is a single registered handler. For commands, Trigger is the command
// name; for listeners it is the event type name.
type Entry struct {
	Trigger     string
	Kind        Kind
	Aliases     []string
	Params      []args.Param
	Description string
	Hidden      bool
	AdminOnly   bool
	Filter      Filter

	// Group is filled in by the registry with the owning group's name.
	Group string

	Command  handler.CommandFunc
	Listener handler.ListenerFunc
}

// Usage renders the entry as it would be typed, e.g. "roll [sides=6]".
func (e *Entry) Usage() string {
	sig := args.Signature(e.Params)
	if sig == "" {
		return e.Trigger
	}
	return e.Trigger + " " + sig
}

func (e *Entry) validate() error {
	switch e.Kind {
	case Command:
		if e.Command == nil {
			return fmt.Errorf("command %q has no handler", e.Trigger)
		}
		for _, name := range append([]string{e.Trigger}, e.Aliases...) {
			if name == "" || strings.ContainsFunc(name, isSpace) {
				return fmt.Errorf("invalid command name %q", name)
			}
		}
		if err := args.Validate(e.Params); err != nil {
			return fmt.Errorf("command %q: %w", e.Trigger, err)
		}
	case Listener:
		if e.Listener == nil {
			return fmt.Errorf("listener for %q has no handler", e.Trigger)
		}
		if !model.KnownEventType(e.Trigger) {
			return fmt.Errorf("listener for unknown event type %q", e.Trigger)
		}
		if len(e.Aliases) > 0 || len(e.Params) > 0 {
			return fmt.Errorf("listener for %q cannot declare aliases or parameters", e.Trigger)
		}
	default:
		return fmt.Errorf("entry %q has unknown kind %d", e.Trigger, e.Kind)
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Group is a named bundle of entries loaded and unloaded as a unit.
// OnLoad runs before the group becomes visible to dispatch and may veto the
// load; OnUnload runs after it stops being visible.
type Group struct {
	Name        string
	Description string
	Entries     []Entry
	OnLoad      func(ctx context.Context) error
	OnUnload    func(ctx context.Context) error
}

// CommandEntry is a convenience constructor for a command entry.
func CommandEntry(trigger, description string, params []args.Param, fn handler.CommandFunc, aliases ...string) Entry {
	return Entry{
		Trigger:     trigger,
		Kind:        Command,
		Aliases:     aliases,
		Params:      params,
		Description: description,
		Command:     fn,
	}
}

// ListenerEntry is a convenience constructor for an event listener entry.
func ListenerEntry(eventType string, filter Filter, fn handler.ListenerFunc) Entry {
	return Entry{
		Trigger:  eventType,
		Kind:     Listener,
		Filter:   filter,
		Listener: fn,
	}
}
