package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

type captureSink struct {
	mu     sync.Mutex
	events []crawler.ProgressEvent
	closed bool
	err    error
}

func (s *captureSink) Consume(_ context.Context, batch []crawler.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *captureSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestHubDeliversEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	for i := 0; i < 5; i++ {
		hub.Notify(crawler.ProgressEvent{SessionID: "s1", Type: crawler.EventPageDone})
	}

	require.Eventually(t, func() bool {
		return sink.count() == 5
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	assert.True(t, sink.isClosed())
}

func TestHubFlushesOnBatchSize(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	// A long wait makes any delivery within the test window batch-driven.
	hub := NewHub(Config{MaxBatchEvents: 3, MaxBatchWait: time.Hour}, sink)
	defer hub.Close(context.Background())

	for i := 0; i < 3; i++ {
		hub.Notify(crawler.ProgressEvent{Type: crawler.EventPageDone})
	}

	require.Eventually(t, func() bool {
		return sink.count() == 3
	}, time.Second, 5*time.Millisecond)
}

func TestHubCloseDrainsBuffer(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour}, sink)

	for i := 0; i < 10; i++ {
		hub.Notify(crawler.ProgressEvent{Type: crawler.EventPageDone})
	}
	require.NoError(t, hub.Close(context.Background()))

	assert.Equal(t, 10, sink.count())
	assert.True(t, sink.isClosed())
}

func TestHubNotifyNeverBlocks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{BufferSize: 1, MaxBatchWait: time.Hour}, sink)
	defer hub.Close(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Notify(crawler.ProgressEvent{Type: crawler.EventPageDone})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full buffer")
	}
}

func TestHubNotifyAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Notify(crawler.ProgressEvent{Type: crawler.EventPageDone})
	assert.Zero(t, sink.count())
}

func TestHubSinkErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	failing := &captureSink{err: errors.New("sink down")}
	healthy := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, failing, healthy)

	hub.Notify(crawler.ProgressEvent{Type: crawler.EventPageDone})

	require.Eventually(t, func() bool {
		return healthy.count() == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, &captureSink{})
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))

	var nilHub *Hub
	require.NoError(t, nilHub.Close(context.Background()))
	nilHub.Notify(crawler.ProgressEvent{})
}
