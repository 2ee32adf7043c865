// Package applife carries the app foreground/background signal. The
// embedding app publishes platform lifecycle transitions into a
// Notifier; the lifecycle controller consumes them to trigger
// foreground token refreshes.
package applife

import "sync"

// State is the app's visibility position
type State string

const (
	// StateActive means the app is foregrounded and interactive
	StateActive State = "active"

	// StateInactive means the app is visible but not receiving input,
	// such as during an incoming call or the app switcher
	StateInactive State = "inactive"

	// StateBackground means the app is not visible
	StateBackground State = "background"
)

func (s State) valid() bool {
	return s == StateActive || s == StateInactive || s == StateBackground
}

// Notifier fans app lifecycle transitions out to one consumer.
// Events delivers edges only; repeated Sets of the current state are
// absorbed.
type Notifier struct {
	mu     sync.Mutex
	state  State
	events chan State
}

// NewNotifier creates a Notifier starting in the given state
func NewNotifier(initial State) *Notifier {
	if !initial.valid() {
		initial = StateActive
	}
	return &Notifier{
		state:  initial,
		events: make(chan State, 8),
	}
}

// State returns the last published state
func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Events returns the transition channel
func (n *Notifier) Events() <-chan State {
	return n.events
}

// Set publishes a transition. Invalid and repeated states are ignored.
// The send never blocks the platform callback; under a stalled
// consumer the oldest pending transition is dropped.
func (n *Notifier) Set(state State) {
	if !state.valid() {
		return
	}

	n.mu.Lock()
	if n.state == state {
		n.mu.Unlock()
		return
	}
	n.state = state
	n.mu.Unlock()

	select {
	case n.events <- state:
	default:
		select {
		case <-n.events:
		default:
		}
		n.events <- state
	}
}
