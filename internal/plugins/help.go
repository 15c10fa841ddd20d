package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/registry"
)

// Help lists the visible commands of the current registry snapshot, or
// describes one of them.
func Help(d *Deps) registry.Group {
	params := []args.Param{{Name: "command", Kind: args.String, Optional: true}}
	help := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		snap := d.Registry.Snapshot()
		if !vals.Has("command") {
			list := commandList(d.Prefix, snap.Commands())
			if hc.IsDM() {
				return hc.Reply(ctx, list)
			}
			// The full listing is long; keep it out of the room's main flow.
			return hc.ReplyInThread(ctx, list)
		}
		name := strings.TrimPrefix(vals.String("command"), d.Prefix)
		e, ok := snap.Command(name)
		if !ok || e.Hidden {
			return hc.Reply(ctx, fmt.Sprintf("Unknown command: `%s`", name))
		}
		return hc.Reply(ctx, commandDetail(d.Prefix, e))
	}
	return registry.Group{
		Name:        "help",
		Description: "Command listing",
		Entries: []registry.Entry{
			registry.CommandEntry("help", "Show available commands", params, help),
		},
	}
}

func commandList(prefix string, cmds []*registry.Entry) string {
	var b strings.Builder
	b.WriteString("**Available commands:**")
	for _, e := range cmds {
		if e.Hidden {
			continue
		}
		desc := e.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "\n- `%s%s` - %s", prefix, e.Trigger, desc)
	}
	fmt.Fprintf(&b, "\n\nUse `%shelp <command>` for details.", prefix)
	return b.String()
}

func commandDetail(prefix string, e *registry.Entry) string {
	lines := []string{"**" + e.Trigger + "**"}
	if e.Description != "" {
		lines = append(lines, e.Description)
	}
	lines = append(lines, fmt.Sprintf("Usage: `%s%s`", prefix, e.Usage()))
	if len(e.Aliases) > 0 {
		lines = append(lines, "Aliases: "+strings.Join(e.Aliases, ", "))
	}
	if e.AdminOnly {
		lines = append(lines, "Admins only.")
	}
	return strings.Join(lines, "\n")
}
