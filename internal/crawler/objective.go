package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ObjectiveAnalyzer turns the free-text objective into an ObjectivePlan via
// one oracle call, falling back to keyword derivation when the oracle
// misbehaves. It runs exactly once per session, before reconnaissance.
type ObjectiveAnalyzer struct {
	oracle Oracle
	logger *zap.Logger
}

// NewObjectiveAnalyzer builds an analyzer.
func NewObjectiveAnalyzer(oracle Oracle, logger *zap.Logger) *ObjectiveAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObjectiveAnalyzer{oracle: oracle, logger: logger}
}

const objectivePromptTemplate = `You are planning a web crawling operation. Analyze the user's objective and produce a crawl strategy.

USER'S OBJECTIVE: %q

Respond with JSON only, matching this shape exactly:
{
  "data_types": ["primary type", "secondary type"],
  "key_fields": ["field1", "field2"],
  "seek_patterns": ["url or text token to prioritize"],
  "avoid_patterns": ["url or text token to avoid"]
}

Be specific and actionable.`

// Analyze derives the session plan. It returns an error only when the
// objective is empty; oracle failure of either kind degrades to a heuristic
// plan so the crawl never starts without one.
func (a *ObjectiveAnalyzer) Analyze(ctx context.Context, objective string) (ObjectivePlan, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return ObjectivePlan{}, fmt.Errorf("objective is required")
	}

	result := a.oracle.Infer(ctx, fmt.Sprintf(objectivePromptTemplate, objective))
	var plan ObjectivePlan
	if err := result.Decode(&plan); err != nil {
		a.logger.Warn("objective analysis degraded to heuristic plan",
			zap.String("outcome", outcomeLabel(result.Outcome)),
			zap.Error(err),
		)
		return heuristicPlan(objective), nil
	}
	plan = normalizePlan(plan, objective)
	a.logger.Info("objective analyzed",
		zap.Strings("data_types", plan.DataTypes),
		zap.Strings("seek_patterns", plan.SeekPatterns),
	)
	return plan, nil
}

// heuristicPlan derives seek tokens from the objective's own words: every
// word longer than three characters becomes a seek pattern.
func heuristicPlan(objective string) ObjectivePlan {
	var seek []string
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(objective)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if len(word) <= 3 {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		seek = append(seek, word)
	}
	return ObjectivePlan{
		DataTypes:     []string{"general content"},
		KeyFields:     []string{"title", "content", "links"},
		SeekPatterns:  seek,
		AvoidPatterns: []string{"login", "signup", "cart"},
	}
}

// normalizePlan fills gaps an otherwise well-formed oracle plan may leave,
// so downstream scoring always has something to work with.
func normalizePlan(plan ObjectivePlan, objective string) ObjectivePlan {
	fallback := heuristicPlan(objective)
	if len(plan.DataTypes) == 0 {
		plan.DataTypes = fallback.DataTypes
	}
	if len(plan.KeyFields) == 0 {
		plan.KeyFields = fallback.KeyFields
	}
	if len(plan.SeekPatterns) == 0 {
		plan.SeekPatterns = fallback.SeekPatterns
	}
	return plan
}

// RefinePlan merges newly discovered seek patterns into a copy of the plan.
// The original is left untouched.
func RefinePlan(plan ObjectivePlan, extraSeek []string) ObjectivePlan {
	refined := ObjectivePlan{
		DataTypes:     append([]string(nil), plan.DataTypes...),
		KeyFields:     append([]string(nil), plan.KeyFields...),
		SeekPatterns:  append([]string(nil), plan.SeekPatterns...),
		AvoidPatterns: append([]string(nil), plan.AvoidPatterns...),
	}
	existing := make(map[string]struct{}, len(refined.SeekPatterns))
	for _, p := range refined.SeekPatterns {
		existing[strings.ToLower(p)] = struct{}{}
	}
	for _, p := range extraSeek {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := existing[strings.ToLower(p)]; dup {
			continue
		}
		existing[strings.ToLower(p)] = struct{}{}
		refined.SeekPatterns = append(refined.SeekPatterns, p)
	}
	return refined
}

func outcomeLabel(o OracleOutcome) string {
	switch o {
	case OracleParsed:
		return "parsed"
	case OracleMalformed:
		return "malformed"
	default:
		return "transport"
	}
}

// mustJSON is a test/prompt helper for embedding structures in prompts.
func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
