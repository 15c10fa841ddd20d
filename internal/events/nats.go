package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ClientName prefixes the names of the bot's NATS connections; the role
// ("events" or "control") is appended so the two show up apart in
// server monitoring.
const ClientName = "chattobot"

// subscriptionBuffer bounds the control messages waiting for the bot loop.
// Control traffic is a handful of operator requests, never a stream.
const subscriptionBuffer = 16

// dial opens a connection that reconnects forever: a bus outage must never
// stall the chat side of the bot.
func dial(url, role string, opts []nats.Option) (*nats.Conn, error) {
	base := []nats.Option{
		nats.Name(ClientName + "-" + role),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting %s bus at %s: %w", role, url, err)
	}
	return nc, nil
}

// LogConnection logs disconnects and reconnects of a bus connection.
func LogConnection(logger *slog.Logger) nats.Option {
	return func(o *nats.Options) error {
		o.DisconnectedErrCB = func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("events: bus disconnected", "conn", nc.Opts.Name, "err", err)
			}
		}
		o.ReconnectedCB = func(nc *nats.Conn) {
			logger.Info("events: bus reconnected", "conn", nc.Opts.Name, "url", nc.ConnectedUrl())
		}
		return nil
	}
}

// NATSPublisher sends lifecycle events as JSON, one subject per topic.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects the lifecycle publisher. Publishes made while
// the bus is down are buffered by the client and sent on reconnect.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := dial(url, "events", opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	if err := p.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Close sends whatever is still buffered, giving up after two seconds, and
// disconnects. A shutdown event published just before Close is not lost.
func (p *NATSPublisher) Close() error {
	defer p.conn.Close()
	if !p.conn.IsConnected() {
		return nil
	}
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		return fmt.Errorf("flushing lifecycle events: %w", err)
	}
	return nil
}

// NATSSubscriber receives operator control requests.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects the control subscriber.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := dial(url, "control", opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe delivers messages for topic, which may use NATS wildcards such as
// "chatto.control.>". When the bot loop falls behind, new messages are
// dropped rather than stalling the NATS client. cancel unsubscribes and
// closes the channel; it is safe to call more than once.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	q := &controlQueue{ch: make(chan Message, subscriptionBuffer)}

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		q.offer(Message{Topic: msg.Subject, Data: msg.Data})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The server must know the interest before we report success, or a
	// request published right after Subscribe returns would be lost.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("registering subscription to %s: %w", topic, err)
	}

	cancel := func() {
		q.once.Do(func() {
			_ = sub.Unsubscribe()
			q.close()
		})
	}
	return q.ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}

// controlQueue hands messages from the NATS callback goroutine to the
// reader. offer and close are serialized so a late callback never sends on
// a closed channel.
type controlQueue struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
	once   sync.Once
}

func (q *controlQueue) offer(m Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- m:
	default:
	}
}

// close discards undelivered messages: after cancel the reader only sees the
// channel closed.
func (q *controlQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for {
		select {
		case <-q.ch:
		default:
			close(q.ch)
			return
		}
	}
}
