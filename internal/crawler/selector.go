package crawler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Selection sizing. The selector returns 3-5 URLs, capped to the remaining
// page budget; the heuristic fallback takes the top 3.
const (
	maxSelect      = 5
	fallbackSelect = 3
)

// SelectionContext carries the crawl state the oracle ranks against.
type SelectionContext struct {
	Phase       Phase
	Objective   string
	CurrentURL  string
	PageType    string
	Relevance   int
	PagesUsed   int
	TotalBudget int
}

// NavigationSelector chooses the next URLs to enqueue from a page's scored
// candidates. Reconnaissance stays heuristic-only to conserve budget and
// maximize diversity; deep crawl re-ranks the shortlist through the oracle
// with a heuristic fallback that keeps selection non-empty whenever
// candidates exist.
type NavigationSelector struct {
	oracle     Oracle
	scorer     *HeuristicScorer
	knowledge  *Knowledge
	thresholds Thresholds
	logger     *zap.Logger
}

// NewNavigationSelector builds a selector over the shared scorer and store.
func NewNavigationSelector(oracle Oracle, scorer *HeuristicScorer, knowledge *Knowledge, thresholds Thresholds, logger *zap.Logger) *NavigationSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NavigationSelector{oracle: oracle, scorer: scorer, knowledge: knowledge, thresholds: thresholds, logger: logger}
}

const navigationPromptTemplate = `You are guiding a web crawler. Review these pre-scored candidate URLs and pick the best ones to crawl next.

CRAWL OBJECTIVE: %s

PROGRESS:
- Pages crawled: %d/%d
- Current phase: %s

CURRENT PAGE: %s
Page type: %s
Relevance: %d/10

LEARNED HIGH-VALUE URL PATTERNS: %s

CANDIDATES (1-based, with heuristic score):
%s

Pick 3 to 5 candidates that best serve the objective, weighing learned
patterns, scores, and breadth versus depth. Respond with JSON only:
{"picks": [1, 3, 5]}
Use an empty picks array if nothing is worth crawling.`

// navigationPicks is the response schema for the re-ranking call.
type navigationPicks struct {
	Picks []int `json:"picks"`
}

// SelectNext returns the candidates to enqueue, at most min(5, budget)
// of them. remainingBudget at or below zero selects nothing.
func (s *NavigationSelector) SelectNext(
	ctx context.Context,
	candidates []LinkCandidate,
	plan ObjectivePlan,
	sel SelectionContext,
	remainingBudget int,
) []LinkCandidate {
	if remainingBudget <= 0 || len(candidates) == 0 {
		return nil
	}
	limit := maxSelect
	if remainingBudget < limit {
		limit = remainingBudget
	}

	shortlist := s.scorer.Shortlist(candidates, plan, ShortlistSize)
	if len(shortlist) == 0 {
		return nil
	}

	if sel.Phase != PhaseDeepCrawl {
		return capList(shortlist, limit)
	}
	return s.oracleSelect(ctx, shortlist, sel, limit)
}

func (s *NavigationSelector) oracleSelect(
	ctx context.Context,
	shortlist []LinkCandidate,
	sel SelectionContext,
	limit int,
) []LinkCandidate {
	result := s.oracle.Infer(ctx, s.buildPrompt(shortlist, sel))
	var picks navigationPicks
	if err := result.Decode(&picks); err != nil {
		// Heuristic fallback: non-empty as long as candidates exist.
		s.logger.Warn("navigation re-ranking degraded to heuristic top picks",
			zap.String("url", sel.CurrentURL),
			zap.String("outcome", outcomeLabel(result.Outcome)),
			zap.Error(err),
		)
		fallback := fallbackSelect
		if limit < fallback {
			fallback = limit
		}
		return capList(shortlist, fallback)
	}

	selected := make([]LinkCandidate, 0, limit)
	seen := make(map[int]struct{}, len(picks.Picks))
	for _, pick := range picks.Picks {
		if len(selected) >= limit {
			break
		}
		idx := pick - 1
		if idx < 0 || idx >= len(shortlist) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		c := shortlist[idx]
		c.OracleSelected = true
		selected = append(selected, c)
	}
	return selected
}

func (s *NavigationSelector) buildPrompt(shortlist []LinkCandidate, sel SelectionContext) string {
	var lines []string
	for i, c := range shortlist {
		lines = append(lines, fmt.Sprintf("%d. [%.1f] %s -> %s",
			i+1, c.HeuristicScore, truncate(c.AnchorText, 50), c.URL))
	}
	patterns := s.knowledge.HighValuePatterns(float64(s.thresholds.HighValue))
	if len(patterns) > 5 {
		patterns = patterns[:5]
	}
	return fmt.Sprintf(navigationPromptTemplate,
		sel.Objective,
		sel.PagesUsed, sel.TotalBudget,
		sel.Phase,
		sel.CurrentURL,
		sel.PageType,
		sel.Relevance,
		strings.Join(patterns, ", "),
		strings.Join(lines, "\n"),
	)
}

func capList(list []LinkCandidate, limit int) []LinkCandidate {
	if len(list) <= limit {
		return list
	}
	return list[:limit]
}
