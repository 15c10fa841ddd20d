package plugins

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/chattobot/internal/args"
	"github.com/alfredjeanlab/chattobot/internal/handler"
	"github.com/alfredjeanlab/chattobot/internal/registry"
)

// MaxSides bounds the die size accepted by roll.
const MaxSides = 10000

// Dice rolls a single die.
func Dice(d *Deps) registry.Group {
	params := []args.Param{{Name: "sides", Kind: args.Int, Default: 6}}
	roll := func(ctx context.Context, hc *handler.Context, vals args.Values) error {
		sides := vals.Int("sides")
		if sides < 1 || sides > MaxSides {
			return &args.ArgumentError{Param: "sides", Reason: fmt.Sprintf("must be between 1 and %d", MaxSides)}
		}
		n := d.Rand.IntN(sides) + 1
		return hc.Reply(ctx, fmt.Sprintf("Rolled **%d** (d%d)", n, sides))
	}
	return registry.Group{
		Name:        "dice",
		Description: "Dice rolling",
		Entries: []registry.Entry{
			registry.CommandEntry("roll", "Roll a die", params, roll, "dice", "r"),
		},
	}
}
