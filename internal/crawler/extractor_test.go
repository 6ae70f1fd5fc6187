package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func extractFixture() FetchResult {
	html := `<html><body>
		<section id="specs"><h2>Specs</h2><p>` + sectionFiller + `</p></section>
		<section id="legal"><h2>Legal</h2><p>` + sectionFiller + `</p></section>
	</body></html>`
	return FetchResult{
		URL:        "https://shop.test/products/7",
		StatusCode: 200,
		HTML:       html,
		Title:      "Widget 7",
	}
}

func TestExtractScoresSections(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{respond: func(string) OracleResult {
		return parsedJSON(`{
			"page_type": "Product",
			"sections": [
				{"id": 0, "score": 9, "content": {"name": "Widget 7", "price": "19.99"}},
				{"id": 1, "score": 2, "content": {"note": "should be dropped"}}
			]
		}`)
	}}
	knowledge := NewKnowledge()
	clock := fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	extractor := NewExtractor(oracle, knowledge, BalancedThresholds(), clock, 0, zap.NewNop())

	record := extractor.Extract(context.Background(), extractFixture(), "find prices", testPlan(), PhaseDeepCrawl, 4)

	assert.Equal(t, "https://shop.test/products/7", record.URL)
	assert.Equal(t, "product", record.PageType)
	assert.Equal(t, 9, record.RelevanceScore)
	assert.False(t, record.Degraded)
	assert.Equal(t, PhaseDeepCrawl, record.Phase)
	assert.Equal(t, 4, record.LinksFound)
	assert.Equal(t, clock.now, record.FetchedAt)

	require.Len(t, record.Sections, 2)
	assert.Equal(t, 9, record.Sections[0].RelevanceScore)
	assert.JSONEq(t, `{"name": "Widget 7", "price": "19.99"}`, string(record.Sections[0].Extracted))
	// Content below the extraction threshold is dropped even when the
	// oracle returned some.
	assert.Equal(t, 2, record.Sections[1].RelevanceScore)
	assert.Nil(t, record.Sections[1].Extracted)

	stats, ok := knowledge.PatternStats("/products/*")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Visits)
	assert.Equal(t, 9, stats.RelevanceSum)
	avg, ok := knowledge.TypeAverage("product")
	require.True(t, ok)
	assert.InDelta(t, 9.0, avg, 1e-9)
}

func TestExtractUnmentionedSectionsScoreZero(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{respond: func(string) OracleResult {
		return parsedJSON(`{"page_type": "product", "sections": [{"id": 0, "score": 6}]}`)
	}}
	extractor := NewExtractor(oracle, NewKnowledge(), BalancedThresholds(), fakeClock{}, 0, zap.NewNop())

	record := extractor.Extract(context.Background(), extractFixture(), "find prices", testPlan(), PhaseReconnaissance, 0)

	require.Len(t, record.Sections, 2)
	assert.Equal(t, 6, record.Sections[0].RelevanceScore)
	assert.Equal(t, 0, record.Sections[1].RelevanceScore)
	assert.Equal(t, 6, record.RelevanceScore)
}

func TestExtractClampsOutOfRangeScores(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{respond: func(string) OracleResult {
		return parsedJSON(`{"sections": [{"id": 0, "score": 99}, {"id": 1, "score": -5}]}`)
	}}
	extractor := NewExtractor(oracle, NewKnowledge(), BalancedThresholds(), fakeClock{}, 0, zap.NewNop())

	record := extractor.Extract(context.Background(), extractFixture(), "find prices", testPlan(), PhaseReconnaissance, 0)

	assert.Equal(t, 10, record.Sections[0].RelevanceScore)
	assert.Equal(t, 0, record.Sections[1].RelevanceScore)
	assert.Equal(t, 10, record.RelevanceScore)
}

func TestExtractDegradedPage(t *testing.T) {
	t.Parallel()

	for name, result := range map[string]OracleResult{
		"malformed": Malformed("I cannot answer that"),
		"transport": TransportError(assert.AnError),
	} {
		t.Run(name, func(t *testing.T) {
			oracle := &fakeOracle{respond: func(string) OracleResult { return result }}
			knowledge := NewKnowledge()
			extractor := NewExtractor(oracle, knowledge, BalancedThresholds(), fakeClock{}, 0, zap.NewNop())

			record := extractor.Extract(context.Background(), extractFixture(), "find prices", testPlan(), PhaseReconnaissance, 0)

			assert.Equal(t, 0, record.RelevanceScore)
			assert.True(t, record.Degraded)
			assert.Equal(t, "unknown", record.PageType)
			require.Len(t, record.Sections, 2)
			for _, s := range record.Sections {
				assert.Equal(t, 0, s.RelevanceScore)
				assert.Nil(t, s.Extracted)
			}
			// Degraded pages never feed the statistics.
			_, ok := knowledge.PatternStats("/products/*")
			assert.False(t, ok)
		})
	}
}

func TestExtractEmptyPage(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{}
	extractor := NewExtractor(oracle, NewKnowledge(), BalancedThresholds(), fakeClock{}, 0, zap.NewNop())

	record := extractor.Extract(context.Background(), FetchResult{URL: "https://shop.test/blank"}, "find prices", testPlan(), PhaseReconnaissance, 0)

	assert.Empty(t, record.Sections)
	assert.Zero(t, record.RelevanceScore)
	// No sections means no oracle call at all.
	assert.Zero(t, oracle.calls())
}
