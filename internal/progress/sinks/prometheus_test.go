package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

// TestPrometheusSinkRecordsMetrics ensures counters and gauges track the
// event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []crawler.ProgressEvent{
		{SessionID: "s1", Type: crawler.EventPhaseChange, Phase: crawler.PhaseReconnaissance, At: now},
		{SessionID: "s1", Type: crawler.EventPageDone, Phase: crawler.PhaseReconnaissance, At: now},
		{SessionID: "s1", Type: crawler.EventPageDone, Phase: crawler.PhaseDeepCrawl, At: now},
		{SessionID: "s1", Type: crawler.EventFetchError, Phase: crawler.PhaseDeepCrawl, At: now},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.eventsTotal.WithLabelValues(crawler.EventPageDone)))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesByPhase.WithLabelValues(string(crawler.PhaseReconnaissance))))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesByPhase.WithLabelValues(string(crawler.PhaseDeepCrawl))))

	// A second phase change for the same session does not double count it.
	require.NoError(t, sink.Consume(context.Background(), []crawler.ProgressEvent{
		{SessionID: "s1", Type: crawler.EventPhaseChange, Phase: crawler.PhaseDeepCrawl, At: now},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsRunning))

	require.NoError(t, sink.Consume(context.Background(), []crawler.ProgressEvent{
		{SessionID: "s1", Type: crawler.EventDone, Phase: crawler.PhaseDone, At: now},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sessionsRunning))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
