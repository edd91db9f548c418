package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Publish(Event{Kind: "session.status_changed", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "session.status_changed" {
			t.Errorf("got kind %q, want session.status_changed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("rt.", 10)
	defer unsub()

	b.Emit("session.status_changed", nil)
	b.Emit("rt.message_sent", nil)

	select {
	case evt := <-ch:
		if evt.Kind != "rt.message_sent" {
			t.Errorf("got kind %q, want rt.message_sent", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The session event must not have been delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()

	b.Emit("session.status_changed", nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Emit("test.one", nil)
	// Buffer is full, this one is dropped.
	b.Emit("test.two", nil)

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestWaitForReceives(t *testing.T) {
	b := New()

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Emit("rt.message_sent", "payload")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	evt, ok := b.WaitFor(ctx, "rt.message_sent")
	if !ok {
		t.Fatal("WaitFor timed out")
	}
	if evt.Payload != "payload" {
		t.Errorf("payload = %v, want %q", evt.Payload, "payload")
	}
}

func TestWaitForTimeout(t *testing.T) {
	b := New()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, ok := b.WaitFor(ctx, "rt.message_sent"); ok {
		t.Error("WaitFor returned an event, want timeout")
	}

	// Events published after the wait expired go nowhere: the subscription
	// is gone, so a later publish cannot leak into a dead waiter.
	b.Emit("rt.message_sent", nil)
}
