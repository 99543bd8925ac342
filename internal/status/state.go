package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/leadchat/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting  State = "BOOTING"
	Syncing  State = "SYNCING"
	Ready    State = "READY"
	Degraded State = "DEGRADED"
	Error    State = "ERROR"
)

// DegradeAfter is the number of consecutive failed refreshes that moves a
// READY daemon to DEGRADED.
const DegradeAfter = 3

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Ready, Syncing, Error},
	Syncing:  {Ready, Degraded, Error},
	Ready:    {Syncing, Degraded, Error},
	Degraded: {Syncing, Ready, Error},
	Error:    {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu       sync.RWMutex
	current  State
	failures int
	lastErr  string
	bus      *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	if m == nil {
		return Ready
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LastError returns the error of the last failed refresh, empty after a success.
func (m *Machine) LastError() string {
	if m == nil {
		return ""
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.Event{
		Kind: bus.StatusChanged,
		Payload: StatusChange{
			From: from,
			To:   to,
		},
	})
	return nil
}

// BeginSync marks the start of a conversation's first fetch.
func (m *Machine) BeginSync() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == Ready {
		_ = m.transitionLocked(Syncing)
	}
}

// ReportRefresh folds the outcome of a refresh into the state. A success
// returns the daemon to READY; a failure during the first fetch, or
// DegradeAfter consecutive failures, moves it to DEGRADED.
func (m *Machine) ReportRefresh(err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.failures = 0
		m.lastErr = ""
		if m.current == Syncing || m.current == Degraded {
			_ = m.transitionLocked(Ready)
		}
		return
	}
	m.failures++
	m.lastErr = err.Error()
	switch m.current {
	case Syncing:
		_ = m.transitionLocked(Degraded)
	case Ready:
		if m.failures >= DegradeAfter {
			_ = m.transitionLocked(Degraded)
		}
	}
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
