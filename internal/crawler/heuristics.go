package crawler

import (
	"sort"
	"strings"
)

// Scoring constants. The base is neutral; adjustments are additive and the
// final score is clamped to [0, 10].
const (
	scoreBase          = 5.0
	avoidPenalty       = -3.0
	mainContentBonus   = 2.0
	headerBonus        = 1.5
	seekTokenBonus     = 2.0
	patternBonusCap    = 2.0
	patternPenalty     = -1.0
	patternConfVisits  = 3
	minShortlistScore  = 3.0
	maxPerPattern      = 2
	// ShortlistSize is the top-K passed to the navigation selector.
	ShortlistSize = 10
)

// lowValueKeywords penalize links that point at boilerplate pages
// regardless of the objective.
var lowValueKeywords = []string{
	"privacy", "policy", "terms", "cookie", "subscribe", "newsletter",
	"sitemap", "rss", "feed",
}

// HeuristicScorer assigns pre-scores to link candidates without any oracle
// involvement. It reads the objective plan and the site knowledge store.
type HeuristicScorer struct {
	thresholds Thresholds
	knowledge  *Knowledge
}

// NewHeuristicScorer builds a scorer over the shared knowledge store.
func NewHeuristicScorer(thresholds Thresholds, knowledge *Knowledge) *HeuristicScorer {
	return &HeuristicScorer{thresholds: thresholds, knowledge: knowledge}
}

// Score computes the candidate's heuristic pre-score against the plan.
func (s *HeuristicScorer) Score(c LinkCandidate, plan ObjectivePlan) float64 {
	score := scoreBase
	linkText := strings.ToLower(c.AnchorText + " " + c.Context)
	urlLower := strings.ToLower(c.URL)

	if matchesAny(linkText, plan.AvoidPatterns) || matchesAny(urlLower, plan.AvoidPatterns) {
		score += avoidPenalty
	}
	if matchesAny(linkText, lowValueKeywords) || matchesAny(urlLower, lowValueKeywords) {
		score += avoidPenalty
	}
	if c.InMain {
		score += mainContentBonus
	}
	if c.InHeader {
		score += headerBonus
	}
	if matchesAny(linkText, plan.SeekPatterns) || matchesAny(urlLower, plan.SeekPatterns) {
		score += seekTokenBonus
	}
	score += s.patternAdjustment(c.Pattern)

	return clampScore(score)
}

// patternAdjustment rewards patterns with a good observed track record,
// scaled by sample confidence so one high-scoring outlier cannot run away
// with the crawl.
func (s *HeuristicScorer) patternAdjustment(pattern string) float64 {
	if s.knowledge == nil || pattern == "" {
		return 0
	}
	stats, ok := s.knowledge.PatternStats(pattern)
	if !ok || stats.Visits == 0 {
		return 0
	}
	confidence := float64(stats.Visits) / patternConfVisits
	if confidence > 1 {
		confidence = 1
	}
	switch {
	case stats.Average >= float64(s.thresholds.WorthExploring):
		return patternBonusCap * confidence
	case stats.Average < float64(s.thresholds.Extractable):
		return patternPenalty * confidence
	default:
		return 0
	}
}

// Shortlist scores every candidate, orders them by score (ties broken by
// first-seen order), drops candidates below the admission floor, and
// enforces the diversity cap: no generalized URL pattern contributes more
// than two entries. When every candidate falls under the floor the floor
// is waived, so a page full of poor links still yields a selection rather
// than stalling the crawl. At most k candidates are returned.
func (s *HeuristicScorer) Shortlist(candidates []LinkCandidate, plan ObjectivePlan, k int) []LinkCandidate {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	scored := make([]LinkCandidate, len(candidates))
	for i, c := range candidates {
		c.order = i
		c.HeuristicScore = s.Score(c, plan)
		scored[i] = c
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].HeuristicScore != scored[j].HeuristicScore {
			return scored[i].HeuristicScore > scored[j].HeuristicScore
		}
		return scored[i].order < scored[j].order
	})

	selected := s.admit(scored, k, minShortlistScore)
	if len(selected) == 0 {
		selected = s.admit(scored, k, 0)
	}
	return selected
}

func (s *HeuristicScorer) admit(scored []LinkCandidate, k int, floor float64) []LinkCandidate {
	selected := make([]LinkCandidate, 0, k)
	perPattern := make(map[string]int)
	for _, c := range scored {
		if len(selected) >= k {
			break
		}
		if c.HeuristicScore < floor {
			continue
		}
		if perPattern[c.Pattern] >= maxPerPattern {
			continue
		}
		selected = append(selected, c)
		perPattern[c.Pattern]++
	}
	return selected
}

func matchesAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		needle = strings.ToLower(strings.TrimSpace(needle))
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
