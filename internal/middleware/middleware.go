// Package middleware runs an ordered chain of interceptors around the
// dispatch of a single event.
package middleware

import (
	"context"
	"sync"

	"github.com/alfredjeanlab/chattobot/internal/handler"
)

// Next continues the chain. A middleware that returns without calling Next
// ends the dispatch of the event: no later middleware and no handler runs.
type Next func(ctx context.Context) error

// Func is a single interceptor.
type Func func(ctx context.Context, hc *handler.Context, next Next) error

// Chain is an append-only list of middleware, run in registration order.
type Chain struct {
	mu    sync.RWMutex
	funcs []Func
}

// Use appends f to the chain.
func (c *Chain) Use(f Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, f)
}

// Len returns the number of registered middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.funcs)
}

// Run invokes the chain for hc, calling final if every middleware continues.
// It reports whether final ran, so callers can tell a short-circuit apart
// from a completed chain.
func (c *Chain) Run(ctx context.Context, hc *handler.Context, final Next) (bool, error) {
	c.mu.RLock()
	funcs := c.funcs[:len(c.funcs):len(c.funcs)]
	c.mu.RUnlock()

	reached := false
	var step func(i int) Next
	step = func(i int) Next {
		if i == len(funcs) {
			return func(ctx context.Context) error {
				reached = true
				return final(ctx)
			}
		}
		return func(ctx context.Context) error {
			return funcs[i](ctx, hc, step(i+1))
		}
	}
	err := step(0)(ctx)
	return reached, err
}
