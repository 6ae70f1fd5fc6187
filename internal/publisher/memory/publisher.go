// Package memory provides an in-process publisher used when no broker is
// configured. Crawl events are buffered in memory and can be drained for
// inspection, which also makes it the publisher of choice in tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher buffers crawl events instead of sending them to a broker.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// Event is one buffered publish call.
type Event struct {
	Topic   string
	Payload any
}

// New returns an empty in-process Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish buffers the event and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", len(p.events)), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Drain returns the buffered events and clears the buffer.
func (p *Publisher) Drain() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}
