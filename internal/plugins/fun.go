package plugins

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/model"
	"github.com/alfredjeanlab/chattobot/internal/registry"
)

var (
	praise    = []string{"good bot", "nice bot", "thanks bot", "thank you bot"}
	scolding  = []string{"bad bot", "boo", "booo", "boooo"}
	thanksFor = []string{"❤️", "👍"}
)

// Fun holds small toy commands and a listener reacting to praise.
func Fun(d *Deps) registry.Group {
	echo := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		if !vals.Has("message") {
			return hc.Reply(ctx, fmt.Sprintf("Usage: %secho <message>", d.Prefix))
		}
		return hc.Reply(ctx, vals.String("message"))
	}
	flip := func(ctx context.Context, hc *handler.Context, _ args.Values) error {
		side := "Heads"
		if d.Rand.IntN(2) == 1 {
			side = "Tails"
		}
		return hc.Reply(ctx, "**"+side+"!**")
	}
	choose := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		var options []string
		for _, o := range strings.Split(vals.String("choices"), ",") {
			if o = strings.TrimSpace(o); o != "" {
				options = append(options, o)
			}
		}
		if len(options) < 2 {
			return &args.ArgumentError{Param: "choices", Reason: "give at least 2 choices separated by commas"}
		}
		return hc.Reply(ctx, "I choose: **"+options[d.Rand.IntN(len(options))]+"**")
	}
	uptime := func(ctx context.Context, hc *handler.Context, _ args.Values) error {
		return hc.Reply(ctx, "Uptime: "+formatUptime(d.Now().Sub(d.Started)))
	}
	react := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		return hc.React(ctx, vals.String("emoji"))
	}
	sentiment := func(ctx context.Context, hc *handler.Context) error {
		body := strings.TrimRight(strings.ToLower(strings.TrimSpace(hc.Event.Body)), "!.")
		switch {
		case slices.Contains(praise, body):
			return hc.React(ctx, thanksFor[d.Rand.IntN(len(thanksFor))])
		case slices.Contains(scolding, body):
			return hc.React(ctx, "😢")
		}
		return nil
	}

	return registry.Group{
		Name:        "fun",
		Description: "Toy commands",
		Entries: []registry.Entry{
			registry.CommandEntry("echo", "Echo back your message",
				[]args.Param{{Name: "message", Kind: args.String, Optional: true}}, echo),
			registry.CommandEntry("flip", "Flip a coin", nil, flip, "coin"),
			registry.CommandEntry("choose", "Pick from comma-separated choices",
				[]args.Param{{Name: "choices", Kind: args.String}}, choose),
			registry.CommandEntry("uptime", "Show bot uptime", nil, uptime),
			registry.CommandEntry("react", "React to the triggering message",
				[]args.Param{{Name: "emoji", Kind: args.String}}, react),
			registry.ListenerEntry(model.EventMessagePosted, registry.Filter{}, sentiment),
		},
	}
}

// formatUptime renders d as "1h 2m 3s", omitting leading zero units.
func formatUptime(d time.Duration) string {
	secs := int(d.Seconds())
	h, m, s := secs/3600, secs%3600/60, secs%60
	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	parts = append(parts, fmt.Sprintf("%ds", s))
	return strings.Join(parts, " ")
}
