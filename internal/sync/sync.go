// Package sync checkpoints replay cursors: periodically to the cursor store,
// and optionally as a JSON snapshot to backup destinations such as S3.
package sync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/metrics"
	"github.com/alfredjeanlab/chattobot/internal/model"
	"github.com/alfredjeanlab/chattobot/internal/store"
)

// Source supplies the cursors to checkpoint. replay.Tracker implements it.
type Source interface {
	Snapshot() model.Cursors
}

// Destination is the interface for a backup target (S3, etc.).
type Destination interface {
	// Write sends the JSON snapshot to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic checkpoints.
type Scheduler struct {
	source       Source
	store        store.CursorStore
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu   sync.Mutex
	last model.Cursors

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that saves the source's cursors to st and
// the given destinations at the specified interval.
func NewScheduler(src Source, st store.CursorStore, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       src,
		store:        st,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// MarkSaved records cursors as already persisted, so the first tick does not
// rewrite what was just loaded.
func (s *Scheduler) MarkSaved(c model.Cursors) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = c.Clone()
}

// Start begins periodic checkpoints on each tick. A non-positive interval
// disables the ticker; Flush still works.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current checkpoint (if any)
// to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.checkpoint(ctx, false); err != nil {
				s.logger.Error("sync: checkpoint failed", "err", err)
			}
		}
	}
}

// Flush saves the current cursors even if they have not changed since the
// last checkpoint. Destination failures are logged; only the store error is
// returned.
func (s *Scheduler) Flush(ctx context.Context) error {
	return s.checkpoint(ctx, true)
}

func (s *Scheduler) checkpoint(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.source.Snapshot()
	if !force && maps.Equal(cur, s.last) {
		return nil
	}

	if s.store != nil {
		if err := s.store.Save(ctx, cur); err != nil {
			metrics.CheckpointsWritten.WithLabelValues("store", "error").Inc()
			return fmt.Errorf("saving cursors: %w", err)
		}
		metrics.CheckpointsWritten.WithLabelValues("store", "ok").Inc()
	}
	s.last = cur

	if len(s.destinations) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := ExportJSON(cur, s.now(), &buf); err != nil {
		return err
	}
	data := buf.Bytes()
	for i, dest := range s.destinations {
		name := destinationName(dest, i)
		if err := dest.Write(ctx, data); err != nil {
			metrics.CheckpointsWritten.WithLabelValues(name, "error").Inc()
			s.logger.Error("sync: destination write failed", "destination", name, "err", err)
			continue
		}
		metrics.CheckpointsWritten.WithLabelValues(name, "ok").Inc()
	}

	s.logger.Debug("sync: checkpoint written", "spaces", len(cur), "destinations", len(s.destinations), "bytes", len(data))
	return nil
}

func destinationName(d Destination, i int) string {
	if n, ok := d.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%d", i)
}
