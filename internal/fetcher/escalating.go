package fetcher

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

// Detector decides whether a static fetch produced a page that needs a
// browser to render.
type Detector interface {
	NeedsRendering(result crawler.FetchResult) bool
}

// Escalating fetches with the static fetcher first and retries through the
// headless fetcher when the result looks script-dependent. A failed
// escalation falls back to the static result rather than failing the page.
type Escalating struct {
	static   crawler.Fetcher
	headless crawler.Fetcher
	detector Detector
	logger   *zap.Logger
}

// NewEscalating wires the two-tier fetcher. headless may be the noop
// implementation, in which case escalation quietly degrades to static.
func NewEscalating(static, headless crawler.Fetcher, detector Detector, logger *zap.Logger) *Escalating {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = NewHeuristicDetector(0, nil)
	}
	return &Escalating{static: static, headless: headless, detector: detector, logger: logger}
}

// Fetch retrieves one page, escalating to the browser when needed.
func (e *Escalating) Fetch(ctx context.Context, url string) (crawler.FetchResult, error) {
	result, err := e.static.Fetch(ctx, url)
	if err != nil {
		return crawler.FetchResult{}, err
	}
	if e.headless == nil || !e.detector.NeedsRendering(result) {
		return result, nil
	}

	rendered, err := e.headless.Fetch(ctx, url)
	if err != nil {
		e.logger.Warn("headless escalation failed, keeping static result",
			zap.String("url", url), zap.Error(err))
		return result, nil
	}
	return rendered, nil
}

// Default signals that a page body came back effectively empty.
const defaultMinTextChars = 200

var defaultRenderKeywords = []string{
	"enable javascript",
	"javascript is required",
	"javascript is disabled",
	"please turn on javascript",
}

// HeuristicDetector flags pages whose extracted text is suspiciously short
// or that carry an explicit no-script banner.
type HeuristicDetector struct {
	minTextChars int
	keywords     []string
}

// NewHeuristicDetector constructs a Detector with the configured thresholds.
// Zero minTextChars and nil keywords select the defaults.
func NewHeuristicDetector(minTextChars int, keywords []string) *HeuristicDetector {
	if minTextChars <= 0 {
		minTextChars = defaultMinTextChars
	}
	if keywords == nil {
		keywords = defaultRenderKeywords
	}
	lower := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lower = append(lower, kw)
		}
	}
	return &HeuristicDetector{minTextChars: minTextChars, keywords: lower}
}

// NeedsRendering inspects a static fetch for signals that JS rendering is
// required.
func (d *HeuristicDetector) NeedsRendering(result crawler.FetchResult) bool {
	if d == nil {
		return false
	}
	if result.Rendered {
		return false
	}
	if len(result.Text) < d.minTextChars && len(result.HTML) > 0 {
		return true
	}
	lowerBody := strings.ToLower(result.HTML)
	for _, kw := range d.keywords {
		if strings.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}
