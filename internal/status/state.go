package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nmanikumar5/swappio/internal/bus"
)

// State represents the client's runtime state.
type State string

const (
	Booting      State = "BOOTING"       // process starting, nothing connected
	AuthRequired State = "AUTH_REQUIRED" // no usable credentials
	Connecting   State = "CONNECTING"    // dialing the realtime socket
	Syncing      State = "SYNCING"       // socket up, loading conversations
	Ready        State = "READY"         // fully operational
	Reconnecting State = "RECONNECTING"  // socket dropped, retry pending
	Degraded     State = "DEGRADED"      // REST reachable, realtime down
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Syncing, AuthRequired, Reconnecting, Error},
	Syncing:      {Ready, Reconnecting, Degraded, Error},
	Ready:        {Reconnecting, Degraded, AuthRequired, Error},
	Reconnecting: {Connecting, Degraded, Error},
	Degraded:     {Connecting, Reconnecting, Ready, Error},
	Error:        {Booting},
}

// Machine tracks and enforces client runtime state transitions.
// Every accepted transition is published as session.status_changed.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Booting.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Booting, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed from the current state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.status_changed",
			Timestamp: time.Now(),
			Payload:   StatusChange{From: from, To: to},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
