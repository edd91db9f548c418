package status

import (
	"testing"
	"time"

	"github.com/nmanikumar5/swappio/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want %s", m.Current(), Booting)
	}
}

func TestValidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(AuthRequired); err != nil {
		t.Fatalf("Transition(AuthRequired) error = %v", err)
	}
	if m.Current() != AuthRequired {
		t.Errorf("state = %s, want %s", m.Current(), AuthRequired)
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(Booting -> Ready) succeeded, want error")
	}
	if m.Current() != Booting {
		t.Errorf("state changed on invalid transition: %s", m.Current())
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)

	ch, unsub := b.Subscribe("session.status_changed", 10)
	defer unsub()

	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Booting || change.To != Connecting {
			t.Errorf("change = %+v, want Booting -> Connecting", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}

func TestConnectionLossPath(t *testing.T) {
	m := NewMachine(nil)
	steps := []State{Connecting, Syncing, Ready, Reconnecting, Connecting, Syncing, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}
}
