package crawler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() ObjectivePlan {
	return ObjectivePlan{
		DataTypes:     []string{"product catalog"},
		KeyFields:     []string{"name", "price"},
		SeekPatterns:  []string{"product"},
		AvoidPatterns: []string{"careers"},
	}
}

func TestHeuristicScore(t *testing.T) {
	t.Parallel()

	scorer := NewHeuristicScorer(BalancedThresholds(), NewKnowledge())
	plan := testPlan()

	tests := []struct {
		name      string
		candidate LinkCandidate
		want      float64
	}{
		{
			name:      "neutral candidate scores base",
			candidate: LinkCandidate{URL: "https://s.test/about", AnchorText: "About us"},
			want:      5,
		},
		{
			name:      "seek match in main content",
			candidate: LinkCandidate{URL: "https://s.test/p/1", AnchorText: "Product one", InMain: true},
			want:      9,
		},
		{
			name:      "header placement",
			candidate: LinkCandidate{URL: "https://s.test/about", AnchorText: "About", InHeader: true},
			want:      6.5,
		},
		{
			name:      "avoid pattern penalized",
			candidate: LinkCandidate{URL: "https://s.test/careers", AnchorText: "Join us"},
			want:      2,
		},
		{
			name:      "low-value keyword penalized",
			candidate: LinkCandidate{URL: "https://s.test/privacy", AnchorText: "Privacy"},
			want:      2,
		},
		{
			name:      "stacked penalties clamp at zero",
			candidate: LinkCandidate{URL: "https://s.test/privacy", AnchorText: "Careers privacy policy"},
			want:      0,
		},
		{
			name:      "seek match in url alone",
			candidate: LinkCandidate{URL: "https://s.test/products", AnchorText: "Browse"},
			want:      7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scorer.Score(tt.candidate, plan), 1e-9)
		})
	}
}

func TestHeuristicScorePatternAdjustment(t *testing.T) {
	t.Parallel()

	plan := ObjectivePlan{}
	candidate := LinkCandidate{URL: "https://s.test/items/9", AnchorText: "Item nine", Pattern: "/items/*"}

	t.Run("good pattern with full confidence", func(t *testing.T) {
		k := NewKnowledge()
		for i := 0; i < 3; i++ {
			k.Update("/items/*", "product", 8)
		}
		scorer := NewHeuristicScorer(BalancedThresholds(), k)
		assert.InDelta(t, 7, scorer.Score(candidate, plan), 1e-9)
	})

	t.Run("good pattern with one visit is scaled", func(t *testing.T) {
		k := NewKnowledge()
		k.Update("/items/*", "product", 8)
		scorer := NewHeuristicScorer(BalancedThresholds(), k)
		assert.InDelta(t, 5+2.0/3.0, scorer.Score(candidate, plan), 1e-9)
	})

	t.Run("poor pattern penalized", func(t *testing.T) {
		k := NewKnowledge()
		for i := 0; i < 3; i++ {
			k.Update("/items/*", "product", 1)
		}
		scorer := NewHeuristicScorer(BalancedThresholds(), k)
		assert.InDelta(t, 4, scorer.Score(candidate, plan), 1e-9)
	})

	t.Run("unknown pattern is neutral", func(t *testing.T) {
		scorer := NewHeuristicScorer(BalancedThresholds(), NewKnowledge())
		assert.InDelta(t, 5, scorer.Score(candidate, plan), 1e-9)
	})
}

func TestShortlist(t *testing.T) {
	t.Parallel()

	scorer := NewHeuristicScorer(BalancedThresholds(), NewKnowledge())
	plan := testPlan()

	t.Run("orders by score with stable ties", func(t *testing.T) {
		candidates := []LinkCandidate{
			{URL: "https://s.test/about", AnchorText: "About", Pattern: "/about"},
			{URL: "https://s.test/p/1", AnchorText: "Product one", InMain: true, Pattern: "/p/*"},
			{URL: "https://s.test/team", AnchorText: "Team", Pattern: "/team"},
		}
		got := scorer.Shortlist(candidates, plan, 10)
		require.Len(t, got, 3)
		assert.Equal(t, "https://s.test/p/1", got[0].URL)
		assert.Equal(t, "https://s.test/about", got[1].URL)
		assert.Equal(t, "https://s.test/team", got[2].URL)
	})

	t.Run("drops candidates below the floor", func(t *testing.T) {
		candidates := []LinkCandidate{
			{URL: "https://s.test/careers", AnchorText: "Careers"},
			{URL: "https://s.test/about", AnchorText: "About"},
		}
		got := scorer.Shortlist(candidates, plan, 10)
		require.Len(t, got, 1)
		assert.Equal(t, "https://s.test/about", got[0].URL)
	})

	t.Run("diversity cap limits each pattern to two", func(t *testing.T) {
		var candidates []LinkCandidate
		for i := 0; i < 5; i++ {
			candidates = append(candidates, LinkCandidate{
				URL:        fmt.Sprintf("https://s.test/p/%d", i),
				AnchorText: fmt.Sprintf("Product %d", i),
				Pattern:    "/p/*",
			})
		}
		candidates = append(candidates, LinkCandidate{
			URL: "https://s.test/docs", AnchorText: "Docs", Pattern: "/docs",
		})
		got := scorer.Shortlist(candidates, plan, 10)
		require.Len(t, got, 3)
		assert.Equal(t, "https://s.test/p/0", got[0].URL)
		assert.Equal(t, "https://s.test/p/1", got[1].URL)
		assert.Equal(t, "https://s.test/docs", got[2].URL)
	})

	t.Run("waives the floor when nothing clears it", func(t *testing.T) {
		candidates := []LinkCandidate{
			{URL: "https://s.test/careers/1", AnchorText: "Careers NYC", Pattern: "/careers/*"},
			{URL: "https://s.test/careers/2", AnchorText: "Careers SF", Pattern: "/careers/*"},
			{URL: "https://s.test/careers/3", AnchorText: "Careers LDN", Pattern: "/careers/*"},
		}
		got := scorer.Shortlist(candidates, plan, 10)
		// The diversity cap still applies even with the floor waived.
		require.Len(t, got, 2)
		assert.Equal(t, "https://s.test/careers/1", got[0].URL)
		assert.Equal(t, "https://s.test/careers/2", got[1].URL)
	})

	t.Run("honors k", func(t *testing.T) {
		var candidates []LinkCandidate
		for i := 0; i < 8; i++ {
			candidates = append(candidates, LinkCandidate{
				URL:        fmt.Sprintf("https://s.test/page-%d", i),
				AnchorText: fmt.Sprintf("Page %d", i),
				Pattern:    fmt.Sprintf("/page-%d", i),
			})
		}
		assert.Len(t, scorer.Shortlist(candidates, plan, 3), 3)
		assert.Nil(t, scorer.Shortlist(candidates, plan, 0))
		assert.Nil(t, scorer.Shortlist(nil, plan, 5))
	})
}
