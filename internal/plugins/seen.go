package plugins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/model"
	"github.com/alfredjeanlab/chattobot/internal/presence"
	"github.com/alfredjeanlab/chattobot/internal/registry"
)

// maxActiveListed caps the active command's reply.
const maxActiveListed = 20

// Seen records who was active and answers "when did I last see X".
// The presence tracker outlives the group so a reload keeps its history.
func Seen(d *Deps) registry.Group {
	track := func(_ context.Context, hc *handler.Context) error {
		d.Presence.Record(hc.Event)
		return nil
	}

	seen := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		name := vals.String("user")
		e, ok := d.Presence.Lookup(name)
		if !ok {
			return hc.Reply(ctx, fmt.Sprintf("I haven't seen `%s`.", name))
		}
		msg := fmt.Sprintf("%s was last seen %s (%s", e.Name(),
			humanize.RelTime(e.LastSeen, d.Now(), "ago", "from now"), strings.ReplaceAll(e.LastEvent, "_", " "))
		if e.RoomID != "" {
			msg += " in " + e.RoomID
		}
		msg += ")."
		if e.Away {
			msg += " Probably away."
		}
		return hc.Reply(ctx, msg)
	}

	active := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		window := time.Duration(vals.Int("minutes")) * time.Minute
		if window <= 0 {
			return &args.ArgumentError{Param: "minutes", Reason: "must be positive"}
		}
		roster := d.Presence.Roster(window)
		if len(roster) == 0 {
			return hc.Reply(ctx, fmt.Sprintf("Nobody was active in the last %d minutes.", vals.Int("minutes")))
		}
		var b strings.Builder
		fmt.Fprintf(&b, "**Active in the last %d minutes:**", vals.Int("minutes"))
		for i, e := range roster {
			if i == maxActiveListed {
				fmt.Fprintf(&b, "\n...and %d more", len(roster)-i)
				break
			}
			fmt.Fprintf(&b, "\n- %s (%s)", e.Name(), humanize.RelTime(e.LastSeen, d.Now(), "ago", "from now"))
		}
		return hc.Reply(ctx, b.String())
	}

	entries := []registry.Entry{
		registry.CommandEntry("seen", "Show when a user was last active",
			[]args.Param{{Name: "user", Kind: args.String}}, seen),
		registry.CommandEntry("active", "List recently active users",
			[]args.Param{{Name: "minutes", Kind: args.Int, Default: 15}}, active),
	}
	for _, typ := range model.EventTypes {
		entries = append(entries, registry.ListenerEntry(typ, registry.Filter{}, track))
	}

	return registry.Group{
		Name:        "seen",
		Description: "User activity",
		Entries:     entries,
		OnLoad: func(context.Context) error {
			d.Presence.StartReaper(&presence.ReaperConfig{
				OnAway: func(actorID string) {
					d.Logger.Debug("plugins: user went away", "actor", actorID)
				},
			})
			return nil
		},
		OnUnload: func(context.Context) error {
			// A reload has already published the replacement group, whose
			// OnLoad found the reaper running.
			if _, ok := d.Registry.Snapshot().Group("seen"); !ok {
				d.Presence.Stop()
			}
			return nil
		},
	}
}
