package plugins

import (
	"context"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/registry"
)

// Ping answers "Pong!" so operators can check the bot is alive.
func Ping(*Deps) registry.Group {
	return registry.Group{
		Name:        "ping",
		Description: "Liveness check",
		Entries: []registry.Entry{
			registry.CommandEntry("ping", "Check if the bot is alive", nil,
				func(ctx context.Context, hc *handler.Context, _ args.Values) error {
					return hc.Reply(ctx, "Pong!")
				}),
		},
	}
}
