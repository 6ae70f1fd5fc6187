// Package crawler defines core types shared across subsystems.
package crawler

import (
	"encoding/json"
	"time"
)

// Phase represents the lifecycle state of a crawl session.
type Phase string

// Phase values, in order. There are no back-transitions.
const (
	PhaseInit              Phase = "init"
	PhaseReconnaissance    Phase = "reconnaissance"
	PhaseStructureAnalysis Phase = "structure_analysis"
	PhaseDeepCrawl         Phase = "deep_crawl"
	PhaseDone              Phase = "done"
)

// ObjectivePlan is the structured seek/avoid strategy derived from the
// user's free-text objective. It is produced once before reconnaissance and
// treated as read-only afterwards; structure analysis yields a refined copy
// rather than mutating the original in place.
type ObjectivePlan struct {
	DataTypes     []string `json:"data_types"`
	KeyFields     []string `json:"key_fields"`
	SeekPatterns  []string `json:"seek_patterns"`
	AvoidPatterns []string `json:"avoid_patterns"`
}

// SectionResult is the outcome of scoring one page section. Extracted is
// nil unless RelevanceScore is at or above the extractable threshold.
type SectionResult struct {
	SectionID      int             `json:"section_id"`
	Name           string          `json:"name"`
	RelevanceScore int             `json:"relevance_score"`
	Extracted      json.RawMessage `json:"extracted_content,omitempty"`
}

// PageRecord is created exactly once per successfully fetched URL and never
// mutated afterwards. RelevanceScore is the maximum of the section scores,
// or 0 when the page has no sections or every oracle call failed. Degraded
// marks the latter case: the zero score reflects an oracle outage, not a
// judgement that the page is irrelevant.
type PageRecord struct {
	URL            string          `json:"url"`
	Title          string          `json:"title,omitempty"`
	Description    string          `json:"description,omitempty"`
	FetchedAt      time.Time       `json:"fetched_at"`
	Phase          Phase           `json:"phase"`
	PageType       string          `json:"page_type"`
	RelevanceScore int             `json:"relevance_score"`
	Degraded       bool            `json:"degraded,omitempty"`
	Sections       []SectionResult `json:"sections"`
	LinksFound     int             `json:"links_found"`
}

// LinkCandidate is a same-domain link discovered on a page, scoped to that
// page's processing. It is not persisted past navigation selection.
type LinkCandidate struct {
	URL            string
	AnchorText     string
	Context        string
	InHeader       bool
	InMain         bool
	Pattern        string
	HeuristicScore float64
	OracleSelected bool

	// order preserves first-seen position for deterministic tie-breaks.
	order int
}

// FetchResult is what the external Fetcher hands back for one URL.
type FetchResult struct {
	URL         string
	StatusCode  int
	HTML        string
	Text        string
	Title       string
	Description string
	Duration    time.Duration
	Rendered    bool
}

// PatternStats aggregates observed relevance for one generalized URL shape.
type PatternStats struct {
	Pattern      string  `json:"pattern"`
	Visits       int     `json:"visits"`
	RelevanceSum int     `json:"relevance_sum"`
	Average      float64 `json:"average"`
}

// KnowledgeSnapshot is the read-only view of the site knowledge store
// included in the final result.
type KnowledgeSnapshot struct {
	Patterns     []PatternStats     `json:"patterns"`
	TypeAverages map[string]float64 `json:"type_averages"`
}

// Result is the output of a completed session: every PageRecord in
// completion order, the (possibly refined) plan, and the aggregate site
// knowledge. Completion order carries no semantic meaning; callers filter
// and sort by relevance.
type Result struct {
	SessionID  string            `json:"session_id"`
	Objective  string            `json:"objective"`
	StartURL   string            `json:"start_url"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Plan       ObjectivePlan     `json:"plan"`
	Pages      []PageRecord      `json:"pages"`
	Knowledge  KnowledgeSnapshot `json:"knowledge"`
	Answer     string            `json:"answer,omitempty"`
}

// HighValueCount reports how many pages scored at or above threshold.
func (r Result) HighValueCount(threshold int) int {
	n := 0
	for _, p := range r.Pages {
		if p.RelevanceScore >= threshold {
			n++
		}
	}
	return n
}

// AverageRelevance is the mean page score across all records, 0 when empty.
func (r Result) AverageRelevance() float64 {
	if len(r.Pages) == 0 {
		return 0
	}
	sum := 0
	for _, p := range r.Pages {
		sum += p.RelevanceScore
	}
	return float64(sum) / float64(len(r.Pages))
}

// Thresholds groups the relevance cutoffs used across scoring, extraction,
// and navigation. The balanced preset is the default; callers wanting the
// strict variant select it via configuration rather than re-deriving the
// values from prose.
type Thresholds struct {
	// WorthExploring is the minimum page score for a page to seed links.
	WorthExploring int
	// Extractable is the minimum section score for content extraction.
	Extractable int
	// HighValue marks sections that get full detailed extraction.
	HighValue int
}

// BalancedThresholds is the primary preset.
func BalancedThresholds() Thresholds {
	return Thresholds{WorthExploring: 5, Extractable: 4, HighValue: 7}
}

// StrictThresholds is the alternative preset for noisy sites.
func StrictThresholds() Thresholds {
	return Thresholds{WorthExploring: 7, Extractable: 6, HighValue: 8}
}
