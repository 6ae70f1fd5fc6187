package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

// PrometheusSink exports session-level progress metrics. It owns collectors
// for session lifecycle and per-phase page completions, complementing the
// process-wide collectors in the metrics package.
type PrometheusSink struct {
	eventsTotal     *prometheus.CounterVec
	sessionsRunning prometheus.Gauge
	pagesByPhase    *prometheus.CounterVec

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_progress_events_total",
			Help: "Progress events observed, partitioned by type.",
		}, []string{"type"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawl_sessions_running",
			Help: "Current number of running crawl sessions.",
		}),
		pagesByPhase: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_progress_pages_total",
			Help: "Page completions observed through the progress stream, by phase.",
		}, []string{"phase"}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{s.eventsTotal, s.sessionsRunning, s.pagesByPhase} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. It is safe for concurrent
// use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []crawler.ProgressEvent) error {
	for _, evt := range batch {
		s.eventsTotal.WithLabelValues(evt.Type).Inc()
		switch evt.Type {
		case crawler.EventPhaseChange:
			if s.tracker.start(evt.SessionID) {
				s.sessionsRunning.Inc()
			}
		case crawler.EventPageDone:
			s.pagesByPhase.WithLabelValues(string(evt.Phase)).Inc()
		case crawler.EventDone:
			if s.tracker.complete(evt.SessionID) {
				s.sessionsRunning.Dec()
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[string]struct{})}
}

func (t *sessionTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *sessionTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
