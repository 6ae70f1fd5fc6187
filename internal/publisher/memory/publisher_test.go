package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherBuffersEvents(t *testing.T) {
	t.Parallel()

	pub := New()

	id1, err := pub.Publish(context.Background(), "crawl-events", map[string]string{"url": "https://shop.test/"})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", id1)

	id2, err := pub.Publish(context.Background(), "crawl-events", "done")
	require.NoError(t, err)
	assert.Equal(t, "mem-2", id2)

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "crawl-events", events[0].Topic)
	assert.Equal(t, "done", events[1].Payload)

	events[0].Topic = "modified"
	assert.Equal(t, "crawl-events", pub.Events()[0].Topic, "Events must return a copy")
}

func TestPublisherDrain(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "crawl-events", 1)
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "crawl-events", 2)
	require.NoError(t, err)

	drained := pub.Drain()
	assert.Len(t, drained, 2)
	assert.Empty(t, pub.Events())

	// IDs restart once the buffer is cleared.
	id, err := pub.Publish(context.Background(), "crawl-events", 3)
	require.NoError(t, err)
	assert.Equal(t, "mem-1", id)
}
