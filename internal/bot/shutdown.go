package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/events"
)

// closeTimeout bounds the final flush and the closing of collaborators.
const closeTimeout = 10 * time.Second

// Shutdown stops the bot: the connection stops reading, the in-flight
// dispatch gets up to drain_timeout to finish, cursors are persisted, and
// every collaborator is closed. It is safe to call from any goroutine and
// more than once; later calls wait for and return the first result, which
// wraps dispatch.ErrDrainTimeout when the drain was abandoned.
func (b *Bot) Shutdown(reason string) error {
	b.shutdownOnce.Do(func() {
		close(b.stopping)
		// let a Run that is mid-startup finish starting before tearing down
		b.startMu.Lock()
		b.startMu.Unlock()
		b.shutdownErr = b.shutdown(reason)
		close(b.done)
	})
	return b.shutdownErr
}

func (b *Bot) shutdown(reason string) error {
	start := time.Now()
	b.logger.Info("bot: shutting down", "reason", reason)

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := b.publisher.Publish(ctx, events.TopicShutdown, events.ShuttingDown{Reason: reason}); err != nil {
		b.logger.Warn("bot: publish shutdown failed", "err", err)
	}

	var errs []error
	b.conn.Close()
	if err := b.engine.Stop(b.cfg.DrainTimeout); err != nil {
		b.logger.Error("bot: drain timed out, in-flight dispatch abandoned", "timeout", b.cfg.DrainTimeout)
		errs = append(errs, err)
	}

	b.scheduler.Stop()
	if err := b.scheduler.Flush(ctx); err != nil {
		b.logger.Error("bot: persisting cursors failed", "err", err)
		errs = append(errs, fmt.Errorf("persisting cursors: %w", err))
	}

	b.conn.Finish()
	b.closeCollaborators(ctx)
	b.logger.Info("bot: shutdown complete", "duration", time.Since(start))
	return errors.Join(errs...)
}

// closeCollaborators releases everything New may have opened. Fields that
// were never set are skipped.
func (b *Bot) closeCollaborators(ctx context.Context) {
	if b.controlCancel != nil {
		b.controlCancel()
	}
	if b.httpServer != nil {
		sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := b.httpServer.Shutdown(sctx); err != nil {
			// open event streams never go idle
			_ = b.httpServer.Close()
		}
		cancel()
	}
	if b.presence != nil {
		b.presence.Stop()
	}
	if b.reminders != nil {
		b.reminders.Stop()
	}
	if b.subscriber != nil {
		if err := b.subscriber.Close(); err != nil {
			b.logger.Warn("bot: closing subscriber", "err", err)
		}
	}
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			b.logger.Warn("bot: closing publisher", "err", err)
		}
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			b.logger.Warn("bot: closing store", "err", err)
		}
	}
	if b.client != nil {
		_ = b.client.Close()
	}
	if b.telemetryShutdown != nil {
		if err := b.telemetryShutdown(ctx); err != nil {
			b.logger.Warn("bot: flushing traces", "err", err)
		}
	}
}
