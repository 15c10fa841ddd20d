package postgres

import (
	"sort"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

func sortedSpaces(c model.Cursors) []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
