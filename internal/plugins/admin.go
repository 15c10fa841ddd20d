package plugins

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/registry"
)

// Admin lets configured admins manage groups and inspect subscriptions from
// chat. Every command is admin-only.
func Admin(d *Deps) registry.Group {
	groupParam := []args.Param{{Name: "group", Kind: args.String}}
	source := func(hc *handler.Context) string {
		if a := hc.Actor(); a != nil && a.Login != "" {
			return "chat:" + a.Login
		}
		return "chat"
	}

	groups := func(ctx context.Context, hc *handler.Context, _ args.Values) error {
		loaded := d.Registry.Groups()
		var available []string
		for _, name := range d.Catalog.Names() {
			if !slices.Contains(loaded, name) {
				available = append(available, name)
			}
		}
		msg := "Loaded groups: " + joinOrNone(loaded)
		if len(available) > 0 {
			msg += "\nAvailable: " + strings.Join(available, ", ")
		}
		return hc.Reply(ctx, msg)
	}
	load := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		name := vals.String("group")
		if err := d.Catalog.Load(ctx, source(hc), name); err != nil {
			return hc.Reply(ctx, fmt.Sprintf("Could not load `%s`: %v", name, err))
		}
		return hc.Reply(ctx, fmt.Sprintf("Loaded `%s`.", name))
	}
	unload := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		name := vals.String("group")
		if name == "admin" {
			return hc.Reply(ctx, "Refusing to unload the admin group.")
		}
		if err := d.Catalog.Unload(ctx, source(hc), name); err != nil {
			return hc.Reply(ctx, fmt.Sprintf("Could not unload `%s`: %v", name, err))
		}
		return hc.Reply(ctx, fmt.Sprintf("Unloaded `%s`.", name))
	}
	reload := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		name := vals.String("group")
		if err := hc.React(ctx, "⏳"); err != nil {
			hc.Logger.Debug("admin: marking reload in progress", "err", err)
		}
		defer func() {
			if err := hc.Unreact(ctx, "⏳"); err != nil {
				hc.Logger.Debug("admin: clearing reload marker", "err", err)
			}
		}()
		var err error
		if name == "all" {
			err = d.Catalog.ReloadAll(ctx, source(hc))
		} else {
			err = d.Catalog.Reload(ctx, source(hc), name)
		}
		if err != nil {
			return hc.Reply(ctx, fmt.Sprintf("Could not reload `%s`: %v", name, err))
		}
		return hc.Reply(ctx, fmt.Sprintf("Reloaded `%s`.", name))
	}
	spaces := func(ctx context.Context, hc *handler.Context, _ args.Values) error {
		return hc.Reply(ctx, "Subscribed spaces: "+joinOrNone(d.Spaces))
	}
	rooms := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		space := hc.Event.SpaceID
		if vals.Has("space") {
			space = vals.String("space")
		}
		if d.Rooms == nil {
			return hc.Reply(ctx, "Room listing is not available.")
		}
		list, err := d.Rooms.Rooms(ctx, space)
		if err != nil {
			return fmt.Errorf("listing rooms of %s: %w", space, err)
		}
		names := make([]string, 0, len(list))
		for _, r := range list {
			names = append(names, fmt.Sprintf("%s (%s)", r.Name, r.ID))
		}
		return hc.Reply(ctx, fmt.Sprintf("Rooms in %s: %s", space, joinOrNone(names)))
	}

	entries := []registry.Entry{
		registry.CommandEntry("groups", "List loaded and available groups", nil, groups),
		registry.CommandEntry("load", "Load a group", groupParam, load),
		registry.CommandEntry("unload", "Unload a group", groupParam, unload),
		registry.CommandEntry("reload", "Reload a group, or all", groupParam, reload),
		registry.CommandEntry("spaces", "List subscribed spaces", nil, spaces),
		registry.CommandEntry("rooms", "List the rooms of a space",
			[]args.Param{{Name: "space", Kind: args.String, Optional: true}}, rooms),
	}
	for i := range entries {
		entries[i].AdminOnly = true
	}
	return registry.Group{Name: "admin", Description: "Group management", Entries: entries}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
