package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

// SessionStatus is the latest observed state of one crawl session.
type SessionStatus struct {
	SessionID  string        `json:"session_id"`
	Phase      crawler.Phase `json:"phase"`
	PagesUsed  int           `json:"pages_used"`
	Budget     int           `json:"budget"`
	LastURL    string        `json:"last_url,omitempty"`
	FetchFails int           `json:"fetch_failures"`
	Done       bool          `json:"done"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// StatusSink keeps an in-memory snapshot per session for the status API.
type StatusSink struct {
	mu       sync.RWMutex
	sessions map[string]SessionStatus
}

// NewStatusSink builds an empty snapshot sink.
func NewStatusSink() *StatusSink {
	return &StatusSink{sessions: make(map[string]SessionStatus)}
}

// Consume folds the batch into the per-session snapshots.
func (s *StatusSink) Consume(_ context.Context, batch []crawler.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		st := s.sessions[evt.SessionID]
		st.SessionID = evt.SessionID
		st.Phase = evt.Phase
		st.PagesUsed = evt.PagesUsed
		st.Budget = evt.Budget
		st.UpdatedAt = evt.At
		switch evt.Type {
		case crawler.EventPageDone:
			st.LastURL = evt.URL
		case crawler.EventFetchError:
			st.FetchFails++
		case crawler.EventDone:
			st.Done = true
		}
		s.sessions[evt.SessionID] = st
	}
	return nil
}

// Sessions returns a copy of every known session snapshot.
func (s *StatusSink) Sessions() []SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionStatus, 0, len(s.sessions))
	for _, st := range s.sessions {
		out = append(out, st)
	}
	return out
}

// Session returns one session's snapshot.
func (s *StatusSink) Session(id string) (SessionStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	return st, ok
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
