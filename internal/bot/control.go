package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/chattobot/internal/events"
)

// runControl consumes operator requests from the event bus until ctx is
// cancelled. A shutdown request starts Shutdown and ends the loop.
func (b *Bot) runControl(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicControlAll)
	if err != nil {
		return fmt.Errorf("control: subscribe: %w", err)
	}
	defer cancel()

	b.logger.Info("bot: control subscriber started", "topic", events.TopicControlAll)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				b.logger.Info("bot: control subscription closed")
				return nil
			}
			var req events.ControlRequest
			if len(msg.Data) > 0 {
				if err := json.Unmarshal(msg.Data, &req); err != nil {
					b.logger.Warn("bot: bad control payload", "topic", msg.Topic, "err", err)
					continue
				}
			}
			switch msg.Topic {
			case events.TopicControlReload:
				if err := b.Reload(ctx, "nats", req.Group); err != nil {
					b.logger.Warn("bot: control reload failed", "group", req.Group, "err", err)
				}
			case events.TopicControlShutdown:
				reason := "control"
				if req.Reason != "" {
					reason += ": " + req.Reason
				}
				// Shutdown cancels ctx; it must not wait on this goroutine.
				go b.Shutdown(reason)
				return nil
			default:
				b.logger.Debug("bot: ignoring control topic", "topic", msg.Topic)
			}
		}
	}
}
