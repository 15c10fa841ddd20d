package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestNoopPublisher_Publish(t *testing.T) {
	pub := &NoopPublisher{}
	err := pub.Publish(context.Background(), TopicShutdown, ShuttingDown{Reason: "signal"})
	if err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestPublishers_ImplementPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
	var _ Publisher = (*RecordingPublisher)(nil)
}

func TestRecordingPublisher(t *testing.T) {
	rec := &RecordingPublisher{}
	ctx := context.Background()
	_ = rec.Publish(ctx, TopicGroupLoaded, GroupChanged{Group: "dice"})
	_ = rec.Publish(ctx, TopicShutdown, ShuttingDown{Reason: "signal"})

	topics := rec.Topics()
	if len(topics) != 2 || topics[0] != TopicGroupLoaded || topics[1] != TopicShutdown {
		t.Errorf("Topics() = %v", topics)
	}
	if gc, ok := rec.Events()[0].Event.(GroupChanged); !ok || gc.Group != "dice" {
		t.Errorf("first event = %+v", rec.Events()[0])
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicHandlerFailed, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := HandlerFailed{DispatchID: "dsp-1", Group: "dice", Trigger: "roll", Error: "boom"}
	if err := pub.Publish(context.Background(), TopicHandlerFailed, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got HandlerFailed
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got != event {
			t.Errorf("got %+v, want %+v", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishMultipleTopics(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("chatto.bot.>", ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	for _, tc := range []struct {
		topic string
		event any
	}{
		{TopicConnectionState, ConnectionStateChanged{From: "connecting", To: "authenticating"}},
		{TopicReplayCompleted, ReplayCompleted{Spaces: []string{"sp"}, Replayed: 3}},
		{TopicGroupReloaded, GroupChanged{Group: "dice", Source: "signal"}},
		{TopicShutdown, ShuttingDown{Reason: "signal"}},
	} {
		if err := pub.Publish(context.Background(), tc.topic, tc.event); err != nil {
			t.Fatalf("Publish(%s): %v", tc.topic, err)
		}
	}
	pub.conn.Flush()

	for i := 0; i < 4; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Publishing after close should fail.
	err = pub.Publish(context.Background(), TopicShutdown, ShuttingDown{})
	if err == nil {
		t.Error("expected error publishing after close")
	}
}

type failingPublisher struct{ closed bool }

func (f *failingPublisher) Publish(context.Context, string, any) error { return errors.New("down") }
func (f *failingPublisher) Close() error { f.closed = true; return nil }

func TestFanout(t *testing.T) {
	rec := &RecordingPublisher{}
	bad := &failingPublisher{}
	f := Fanout{bad, rec}

	err := f.Publish(context.Background(), TopicShutdown, ShuttingDown{Reason: "signal"})
	if err == nil {
		t.Error("expected the failing publisher's error")
	}
	if got := rec.Topics(); len(got) != 1 || got[0] != TopicShutdown {
		t.Errorf("recorded topics = %v, want delivery past the failure", got)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !bad.closed {
		t.Error("Close should reach every publisher")
	}
}
