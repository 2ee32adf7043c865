// Package connectivity provides the network-status signal consumed by
// the lifecycle controller: a current online/offline reading plus a
// channel of edge transitions.
package connectivity

import (
	"sync"
)

// Monitor reports whether the device can reach the network.
// Events delivers edge transitions only: a value is sent when the
// online state changes, never for repeated readings of the same state.
type Monitor interface {
	Online() bool
	Events() <-chan bool
}

// Manual is a Monitor driven by explicit Set calls. The embedding app
// feeds it from the platform's reachability API; tests feed it
// directly.
type Manual struct {
	mu     sync.Mutex
	online bool
	events chan bool
}

// NewManual creates a Manual monitor with the given starting state
func NewManual(online bool) *Manual {
	return &Manual{
		online: online,
		events: make(chan bool, 8),
	}
}

// Online returns the last state published via Set
func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Events returns the transition channel
func (m *Manual) Events() <-chan bool {
	return m.events
}

// Set publishes a new state. Repeated values are absorbed; only edges
// reach the channel. The send is non-blocking so a stalled consumer
// never stalls the platform callback, at the cost of dropping the
// oldest pending edge.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.mu.Unlock()

	select {
	case m.events <- online:
	default:
		select {
		case <-m.events:
		default:
		}
		m.events <- online
	}
}
