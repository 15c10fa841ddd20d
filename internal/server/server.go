// Package server exposes the bot's status over HTTP: health, runtime status,
// the activity roster, Prometheus metrics, and a server-sent event stream of
// lifecycle events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/model"
	"github.com/alfredjeanlab/chattobot/internal/presence"
)

// Groups is the group management surface used by the reload endpoint.
type Groups interface {
	Names() []string
	Reload(ctx context.Context, source, name string) error
	ReloadAll(ctx context.Context, source string) error
}

// Options wires the server to the running bot. Every func field is optional.
type Options struct {
	// Token, when set, is required as a Bearer token on every route except
	// health and metrics.
	Token string

	State   func() string
	Attempt func() int
	Cursors func() model.Cursors
	Pending func() int
	Loaded  func() []string

	Groups   Groups
	Presence *presence.Tracker
	Started  time.Time
	Logger   *slog.Logger
}

// StatusServer serves the status routes. It also implements
// events.Publisher so lifecycle events reach SSE clients.
type StatusServer struct {
	opts   Options
	hub    *streamHub
	logger *slog.Logger
	now    func() time.Time
}

// New returns a StatusServer.
func New(opts Options) *StatusServer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}
	return &StatusServer{
		opts:   opts,
		hub:    newStreamHub(),
		logger: opts.Logger,
		now:    time.Now,
	}
}

// Publish broadcasts a lifecycle event to connected stream clients.
func (s *StatusServer) Publish(_ context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("server: marshal event for stream failed", "topic", topic, "err", err)
		return err
	}
	s.hub.broadcast(topic, payload)
	return nil
}

// Close is a no-op; open streams end when their requests do.
func (s *StatusServer) Close() error { return nil }

// Status is the body of GET /v1/status.
type Status struct {
	State      string                  `json:"state"`
	Attempt    int                     `json:"attempt"`
	Uptime     string                  `json:"uptime"`
	Pending    int                     `json:"pending"`
	Groups     []string                `json:"groups"`
	Cursors    map[string]model.Cursor `json:"cursors"`
	ActiveUser int                     `json:"active_users"`
}

func (s *StatusServer) status() Status {
	st := Status{
		Uptime:  s.now().Sub(s.opts.Started).Round(time.Second).String(),
		Groups:  []string{},
		Cursors: map[string]model.Cursor{},
	}
	if s.opts.State != nil {
		st.State = s.opts.State()
	}
	if s.opts.Attempt != nil {
		st.Attempt = s.opts.Attempt()
	}
	if s.opts.Pending != nil {
		st.Pending = s.opts.Pending()
	}
	if s.opts.Loaded != nil {
		st.Groups = s.opts.Loaded()
	}
	if s.opts.Cursors != nil {
		st.Cursors = s.opts.Cursors()
	}
	if s.opts.Presence != nil {
		st.ActiveUser = s.opts.Presence.Len()
	}
	return st
}
