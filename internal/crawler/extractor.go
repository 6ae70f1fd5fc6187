package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Extractor runs the section-based relevance protocol for one page: segment
// the page, score every section against the objective in one batched oracle
// call, and keep extracted content only for sections above the extractable
// threshold. Oracle failure for a page is non-fatal; the page is still
// recorded with zero scores.
type Extractor struct {
	oracle     Oracle
	knowledge  *Knowledge
	thresholds Thresholds
	clock      Clock
	sem        *semaphore.Weighted
	logger     *zap.Logger
}

// NewExtractor builds an Extractor. maxOracleInflight bounds concurrent
// oracle calls independently of page concurrency; zero means unbounded.
func NewExtractor(
	oracle Oracle,
	knowledge *Knowledge,
	thresholds Thresholds,
	clock Clock,
	maxOracleInflight int64,
	logger *zap.Logger,
) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	var sem *semaphore.Weighted
	if maxOracleInflight > 0 {
		sem = semaphore.NewWeighted(maxOracleInflight)
	}
	return &Extractor{
		oracle:     oracle,
		knowledge:  knowledge,
		thresholds: thresholds,
		clock:      clock,
		sem:        sem,
		logger:     logger,
	}
}

// sectionAnalysis is the response schema for the batched scoring call.
type sectionAnalysis struct {
	PageType string `json:"page_type"`
	Sections []struct {
		ID      int             `json:"id"`
		Score   int             `json:"score"`
		Content json.RawMessage `json:"content,omitempty"`
	} `json:"sections"`
}

const extractPromptTemplate = `You are analyzing a web page SECTION BY SECTION for relevance to a crawl objective.

OBJECTIVE: %s
TARGET DATA TYPES: %s
KEY FIELDS TO EXTRACT: %s

PAGE URL: %s

PAGE SECTIONS (score each independently):
%s

Score every section 0-10:
- 9-10: directly answers the objective with specifics
- 7-8: substantial relevant information
- 5-6: moderately relevant
- 3-4: tangential
- 1-2: barely related
- 0: unrelated

For sections scoring 7 or higher, extract ALL relevant data in detail.
For sections scoring 4-6, extract key points only.
For sections below 4, omit the content field entirely.

Respond with JSON only:
{
  "page_type": "overall page type",
  "sections": [
    {"id": 0, "score": 0, "content": {}}
  ]
}`

// Extract builds the PageRecord for one fetched page. The record is always
// returned, even when every oracle call failed; in that case all section
// scores are 0 and nothing is extracted. On oracle success the site
// knowledge store is updated with this page's pattern and type. Degraded
// pages are recorded but never feed the statistics.
func (e *Extractor) Extract(
	ctx context.Context,
	fetch FetchResult,
	objective string,
	plan ObjectivePlan,
	phase Phase,
	linksFound int,
) PageRecord {
	record := PageRecord{
		URL:         fetch.URL,
		Title:       fetch.Title,
		Description: fetch.Description,
		FetchedAt:   e.clock.Now(),
		Phase:       phase,
		PageType:    "unknown",
		LinksFound:  linksFound,
	}

	sections := SplitSections(fetch.HTML, fetch.Text)
	if len(sections) == 0 {
		return record
	}

	analysis, ok := e.scoreSections(ctx, fetch.URL, objective, plan, sections)
	record.Sections = e.buildSectionResults(sections, analysis, ok)
	record.RelevanceScore = maxSectionScore(record.Sections)
	record.Degraded = !ok
	if ok {
		if analysis.PageType != "" {
			record.PageType = strings.ToLower(analysis.PageType)
		}
		e.knowledge.Update(GeneralizePattern(fetch.URL), record.PageType, record.RelevanceScore)
	}
	return record
}

func (e *Extractor) scoreSections(
	ctx context.Context,
	url, objective string,
	plan ObjectivePlan,
	sections []Section,
) (sectionAnalysis, bool) {
	prompt := fmt.Sprintf(extractPromptTemplate,
		objective,
		strings.Join(plan.DataTypes, ", "),
		strings.Join(plan.KeyFields, ", "),
		url,
		mustJSON(sections),
	)

	result := e.infer(ctx, prompt)
	var analysis sectionAnalysis
	if err := result.Decode(&analysis); err != nil {
		e.logger.Warn("section scoring degraded",
			zap.String("url", url),
			zap.String("outcome", outcomeLabel(result.Outcome)),
			zap.Error(err),
		)
		return sectionAnalysis{}, false
	}
	return analysis, true
}

// buildSectionResults maps oracle scores onto the identified sections.
// Sections the oracle did not mention score 0. The extraction-threshold
// invariant is enforced here regardless of what the oracle returned:
// content below the threshold is dropped.
func (e *Extractor) buildSectionResults(sections []Section, analysis sectionAnalysis, ok bool) []SectionResult {
	scores := make(map[int]int, len(analysis.Sections))
	contents := make(map[int]json.RawMessage, len(analysis.Sections))
	if ok {
		for _, s := range analysis.Sections {
			scores[s.ID] = clampRelevance(s.Score)
			if len(s.Content) > 0 && !isJSONNull(s.Content) {
				contents[s.ID] = s.Content
			}
		}
	}

	results := make([]SectionResult, len(sections))
	for i, section := range sections {
		score := scores[section.ID]
		sr := SectionResult{
			SectionID:      section.ID,
			Name:           section.Name,
			RelevanceScore: score,
		}
		if score >= e.thresholds.Extractable {
			sr.Extracted = contents[section.ID]
		}
		results[i] = sr
	}
	return results
}

func (e *Extractor) infer(ctx context.Context, prompt string) OracleResult {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return TransportError(fmt.Errorf("acquire oracle slot: %w", err))
		}
		defer e.sem.Release(1)
	}
	return e.oracle.Infer(ctx, prompt)
}

func maxSectionScore(sections []SectionResult) int {
	best := 0
	for _, s := range sections {
		if s.RelevanceScore > best {
			best = s.RelevanceScore
		}
	}
	return best
}

func clampRelevance(score int) int {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
