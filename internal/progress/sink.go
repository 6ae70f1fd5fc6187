package progress

import (
	"context"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []crawler.ProgressEvent) error
	Close(ctx context.Context) error
}
