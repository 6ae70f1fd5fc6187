package crawler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func selectorCandidates(n int) []LinkCandidate {
	out := make([]LinkCandidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, LinkCandidate{
			URL:        fmt.Sprintf("https://s.test/page-%d", i),
			AnchorText: fmt.Sprintf("Page %d", i),
			Pattern:    fmt.Sprintf("/page-%d", i),
		})
	}
	return out
}

func newTestSelector(oracle Oracle) *NavigationSelector {
	knowledge := NewKnowledge()
	scorer := NewHeuristicScorer(BalancedThresholds(), knowledge)
	return NewNavigationSelector(oracle, scorer, knowledge, BalancedThresholds(), zap.NewNop())
}

func TestSelectNextReconnaissanceIsHeuristicOnly(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{}
	selector := newTestSelector(oracle)

	got := selector.SelectNext(context.Background(), selectorCandidates(8), ObjectivePlan{}, SelectionContext{
		Phase: PhaseReconnaissance,
	}, 20)

	assert.Len(t, got, 5)
	assert.Zero(t, oracle.calls())
	for _, c := range got {
		assert.False(t, c.OracleSelected)
	}
}

func TestSelectNextCappedByBudget(t *testing.T) {
	t.Parallel()

	selector := newTestSelector(&fakeOracle{})

	got := selector.SelectNext(context.Background(), selectorCandidates(8), ObjectivePlan{}, SelectionContext{
		Phase: PhaseReconnaissance,
	}, 2)
	assert.Len(t, got, 2)

	assert.Nil(t, selector.SelectNext(context.Background(), selectorCandidates(8), ObjectivePlan{}, SelectionContext{
		Phase: PhaseReconnaissance,
	}, 0))
	assert.Nil(t, selector.SelectNext(context.Background(), nil, ObjectivePlan{}, SelectionContext{
		Phase: PhaseReconnaissance,
	}, 5))
}

func TestSelectNextDeepCrawlUsesOracle(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{respond: func(string) OracleResult {
		// 99 is out of range for an 8-candidate shortlist; 2 repeats.
		return parsedJSON(`{"picks": [2, 5, 2, 99, 1]}`)
	}}
	selector := newTestSelector(oracle)

	got := selector.SelectNext(context.Background(), selectorCandidates(8), ObjectivePlan{}, SelectionContext{
		Phase:       PhaseDeepCrawl,
		Objective:   "find things",
		CurrentURL:  "https://s.test/",
		TotalBudget: 20,
	}, 20)

	require.Len(t, got, 3)
	assert.Equal(t, "https://s.test/page-1", got[0].URL)
	assert.Equal(t, "https://s.test/page-4", got[1].URL)
	assert.Equal(t, "https://s.test/page-0", got[2].URL)
	for _, c := range got {
		assert.True(t, c.OracleSelected)
	}
	assert.Equal(t, 1, oracle.calls())
}

func TestSelectNextDeepCrawlFallsBackOnOracleFailure(t *testing.T) {
	t.Parallel()

	for name, result := range map[string]OracleResult{
		"malformed": Malformed("pick the second one"),
		"transport": TransportError(assert.AnError),
	} {
		t.Run(name, func(t *testing.T) {
			oracle := &fakeOracle{respond: func(string) OracleResult { return result }}
			selector := newTestSelector(oracle)

			got := selector.SelectNext(context.Background(), selectorCandidates(8), ObjectivePlan{}, SelectionContext{
				Phase: PhaseDeepCrawl,
			}, 20)

			require.Len(t, got, 3)
			assert.Equal(t, "https://s.test/page-0", got[0].URL)
			for _, c := range got {
				assert.False(t, c.OracleSelected)
			}
		})
	}
}

func TestSelectNextFallbackWithOnlyPoorCandidates(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{} // every call fails
	selector := newTestSelector(oracle)
	plan := ObjectivePlan{AvoidPatterns: []string{"careers"}}

	candidates := []LinkCandidate{
		{URL: "https://s.test/careers/nyc", AnchorText: "Careers NYC", Pattern: "/careers/*"},
		{URL: "https://s.test/careers/sf", AnchorText: "Careers SF", Pattern: "/careers/*"},
	}
	got := selector.SelectNext(context.Background(), candidates, plan, SelectionContext{
		Phase: PhaseDeepCrawl,
	}, 20)

	// Every candidate scores under the admission floor, but the selection
	// must stay non-empty as long as candidates exist.
	require.Len(t, got, 2)
	for _, c := range got {
		assert.False(t, c.OracleSelected)
	}
}

func TestSelectNextDeepCrawlEmptyPicks(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{respond: func(string) OracleResult {
		return parsedJSON(`{"picks": []}`)
	}}
	selector := newTestSelector(oracle)

	got := selector.SelectNext(context.Background(), selectorCandidates(4), ObjectivePlan{}, SelectionContext{
		Phase: PhaseDeepCrawl,
	}, 20)
	assert.Empty(t, got)
}
