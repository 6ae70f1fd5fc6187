package crawler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	maxAnswerPages   = 15
	maxAnswerSection = 600
)

const answerPromptTemplate = `Based on the extracted website content below, answer this objective.

OBJECTIVE: %s

EXTRACTED CONTENT:
%s

Write a direct, factual answer grounded only in the content above. If the
content does not cover the objective, say what is missing. Respond with JSON
only:
{"answer": "..."}`

// AnswerSynthesizer composes a final answer from the extracted content of
// pages that met the extraction threshold. Synthesis failure never fails a
// crawl; the result just carries an empty answer.
type AnswerSynthesizer struct {
	oracle     Oracle
	thresholds Thresholds
	logger     *zap.Logger
}

func NewAnswerSynthesizer(oracle Oracle, thresholds Thresholds, logger *zap.Logger) *AnswerSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerSynthesizer{oracle: oracle, thresholds: thresholds, logger: logger}
}

// Synthesize answers the objective from the crawled pages. It returns an
// empty string when no page cleared the extraction threshold or when the
// oracle fails.
func (a *AnswerSynthesizer) Synthesize(ctx context.Context, objective string, pages []PageRecord) string {
	relevant := make([]PageRecord, 0, len(pages))
	for _, p := range pages {
		if p.RelevanceScore >= a.thresholds.Extractable {
			relevant = append(relevant, p)
		}
	}
	if len(relevant) == 0 {
		a.logger.Info("answer synthesis skipped, no pages above extraction threshold")
		return ""
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].RelevanceScore > relevant[j].RelevanceScore
	})
	if len(relevant) > maxAnswerPages {
		relevant = relevant[:maxAnswerPages]
	}

	result := a.oracle.Infer(ctx, fmt.Sprintf(answerPromptTemplate, objective, renderEvidence(relevant)))
	var resp struct {
		Answer string `json:"answer"`
	}
	if err := result.Decode(&resp); err != nil {
		// A model that ignores the JSON instruction still produced text;
		// use it rather than drop the synthesis.
		if raw := strings.TrimSpace(result.Raw); raw != "" {
			return raw
		}
		a.logger.Warn("answer synthesis degraded, oracle unavailable",
			zap.String("outcome", outcomeLabel(result.Outcome)),
			zap.Error(err),
		)
		return ""
	}
	return strings.TrimSpace(resp.Answer)
}

func renderEvidence(pages []PageRecord) string {
	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "--- %s (relevance %d/10, type %s)\n", p.URL, p.RelevanceScore, p.PageType)
		for _, s := range p.Sections {
			if len(s.Extracted) == 0 {
				continue
			}
			fmt.Fprintf(&b, "[%s] %s\n", s.Name, truncate(string(s.Extracted), maxAnswerSection))
		}
		b.WriteString("\n")
	}
	return b.String()
}
