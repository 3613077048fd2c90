package eventbus

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_DeliversToUserOnly(t *testing.T) {
	h := NewHub(testLogger())
	a, cancelA := h.Subscribe("alice")
	defer cancelA()
	b, cancelB := h.Subscribe("bob")
	defer cancelB()

	h.Publish(context.Background(), Event{Type: TypeHabitDataChanged, UserID: "alice", Action: "add_habit"})

	if ev := receive(t, a); ev.Action != "add_habit" {
		t.Errorf("event = %+v", ev)
	}
	select {
	case ev := <-b:
		t.Errorf("bob got %+v", ev)
	default:
	}
}

func TestHub_CancelClosesOnce(t *testing.T) {
	h := NewHub(testLogger())
	ch, cancel := h.Subscribe("alice")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if n := h.Subscribers("alice"); n != 0 {
		t.Errorf("subscribers = %d", n)
	}
	h.Publish(context.Background(), Event{UserID: "alice"})
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(testLogger())
	_, cancel := h.Subscribe("alice")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish(context.Background(), Event{UserID: "alice"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := NewHub(testLogger())
	ch, cancel := h.Subscribe("alice")
	h.Close()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	cancel()
}

func TestRedisBus_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping integration test")
	}
	b, err := NewRedisBus(context.Background(), url, testLogger())
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	defer b.Close()

	ch, cancel := b.Subscribe("u-redis")
	defer cancel()
	if err := b.Publish(context.Background(), Event{Type: TypeHabitDataChanged, UserID: "u-redis", Action: "delete_habit"}); err != nil {
		t.Fatal(err)
	}
	if ev := receive(t, ch); ev.Action != "delete_habit" {
		t.Errorf("event = %+v", ev)
	}
}

func TestNATSBus_RoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	b, err := NewNATSBus(url, testLogger())
	if err != nil {
		t.Fatalf("NewNATSBus: %v", err)
	}
	defer b.Close()

	ch, cancel := b.Subscribe("u-nats")
	defer cancel()
	if err := b.Publish(context.Background(), Event{Type: TypeHabitDataChanged, UserID: "u-nats", Action: "edit_habit"}); err != nil {
		t.Fatal(err)
	}
	if ev := receive(t, ch); ev.Action != "edit_habit" {
		t.Errorf("event = %+v", ev)
	}
}
