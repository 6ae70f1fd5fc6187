package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

func TestStatusSinkTracksSessions(t *testing.T) {
	t.Parallel()

	sink := NewStatusSink()
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Consume(context.Background(), []crawler.ProgressEvent{
		{SessionID: "s1", Type: crawler.EventPhaseChange, Phase: crawler.PhaseReconnaissance, Budget: 20, At: at},
		{SessionID: "s1", Type: crawler.EventPageDone, Phase: crawler.PhaseReconnaissance, URL: "https://a.test/", PagesUsed: 1, Budget: 20, At: at},
		{SessionID: "s1", Type: crawler.EventFetchError, Phase: crawler.PhaseReconnaissance, URL: "https://a.test/broken", PagesUsed: 2, Budget: 20, At: at},
		{SessionID: "s2", Type: crawler.EventPageDone, Phase: crawler.PhaseDeepCrawl, URL: "https://b.test/", PagesUsed: 7, Budget: 10, At: at},
	}))

	s1, ok := sink.Session("s1")
	require.True(t, ok)
	assert.Equal(t, crawler.PhaseReconnaissance, s1.Phase)
	assert.Equal(t, 2, s1.PagesUsed)
	assert.Equal(t, "https://a.test/", s1.LastURL)
	assert.Equal(t, 1, s1.FetchFails)
	assert.False(t, s1.Done)

	s2, ok := sink.Session("s2")
	require.True(t, ok)
	assert.Equal(t, "https://b.test/", s2.LastURL)

	assert.Len(t, sink.Sessions(), 2)
	_, ok = sink.Session("unknown")
	assert.False(t, ok)
}

func TestStatusSinkMarksDone(t *testing.T) {
	t.Parallel()

	sink := NewStatusSink()
	require.NoError(t, sink.Consume(context.Background(), []crawler.ProgressEvent{
		{SessionID: "s1", Type: crawler.EventPageDone, PagesUsed: 3},
		{SessionID: "s1", Type: crawler.EventDone, Phase: crawler.PhaseDone, PagesUsed: 3},
	}))

	s1, ok := sink.Session("s1")
	require.True(t, ok)
	assert.True(t, s1.Done)
	assert.Equal(t, crawler.PhaseDone, s1.Phase)

	require.NoError(t, sink.Close(context.Background()))
}
