// Package deeplink carries auth-callback URLs into the app: the URL
// the app was launched with plus URLs received while running. On
// mobile these arrive from the platform's link handler; the CLI uses
// a loopback HTTP listener instead.
package deeplink

import (
	"context"
	"sync"
)

// Source supplies deep-link URLs. Initial returns the URL the app was
// launched with, or empty when there was none; URLs delivers links
// received while running.
type Source interface {
	Initial(ctx context.Context) (string, error)
	URLs() <-chan string
}

// Manual is a Source driven by explicit Push calls, for embedding
// apps with their own platform link handler and for tests.
type Manual struct {
	mu      sync.Mutex
	initial string
	urls    chan string
}

// NewManual creates a Manual source. initial may be empty.
func NewManual(initial string) *Manual {
	return &Manual{
		initial: initial,
		urls:    make(chan string, 8),
	}
}

// Initial returns the launch URL, at most once. A second call returns
// empty so the same callback is never processed twice.
func (m *Manual) Initial(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := m.initial
	m.initial = ""
	return url, nil
}

// URLs returns the runtime link channel
func (m *Manual) URLs() <-chan string {
	return m.urls
}

// Push delivers a runtime URL. Blocks if the buffer is full and no
// consumer is draining; callers own that tradeoff.
func (m *Manual) Push(url string) {
	m.urls <- url
}
