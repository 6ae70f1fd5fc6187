package crawler

import (
	"sort"
	"sync"
)

// Knowledge is the session-lifetime site knowledge store: relevance
// statistics per generalized URL pattern and running averages per page
// type. It is written by the extraction step and read by the heuristic
// scorer and the navigation selector. All access is serialized internally
// so concurrent page workers cannot lose updates. The store starts empty
// at Init and needs no teardown; it is plain owned state, not a singleton.
type Knowledge struct {
	mu       sync.Mutex
	patterns map[string]*patternEntry
	types    map[string]*typeEntry
}

type patternEntry struct {
	visits       int
	relevanceSum int
}

type typeEntry struct {
	pages    int
	scoreSum int
}

// NewKnowledge returns an empty store.
func NewKnowledge() *Knowledge {
	return &Knowledge{
		patterns: make(map[string]*patternEntry),
		types:    make(map[string]*typeEntry),
	}
}

// Update records one page observation. pattern is the generalized URL
// shape; pageType may be empty when extraction degraded.
func (k *Knowledge) Update(pattern, pageType string, relevance int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.patterns[pattern]
	if !ok {
		entry = &patternEntry{}
		k.patterns[pattern] = entry
	}
	entry.visits++
	entry.relevanceSum += relevance

	if pageType == "" {
		return
	}
	te, ok := k.types[pageType]
	if !ok {
		te = &typeEntry{}
		k.types[pageType] = te
	}
	te.pages++
	te.scoreSum += relevance
}

// PatternStats returns the statistics for one pattern. The boolean is false
// when the pattern has never been observed.
func (k *Knowledge) PatternStats(pattern string) (PatternStats, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.patterns[pattern]
	if !ok {
		return PatternStats{}, false
	}
	return statsFromEntry(pattern, entry), true
}

// TypeAverage returns the mean relevance for a page type, false when the
// type has never been observed.
func (k *Knowledge) TypeAverage(pageType string) (float64, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	te, ok := k.types[pageType]
	if !ok || te.pages == 0 {
		return 0, false
	}
	return float64(te.scoreSum) / float64(te.pages), true
}

// HighValuePatterns lists patterns whose observed average meets threshold,
// sorted by average descending then pattern for determinism.
func (k *Knowledge) HighValuePatterns(threshold float64) []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	stats := make([]PatternStats, 0, len(k.patterns))
	for pattern, entry := range k.patterns {
		s := statsFromEntry(pattern, entry)
		if s.Average >= threshold {
			stats = append(stats, s)
		}
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Average != stats[j].Average {
			return stats[i].Average > stats[j].Average
		}
		return stats[i].Pattern < stats[j].Pattern
	})
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Pattern
	}
	return out
}

// Snapshot returns a sorted copy of everything observed this session.
func (k *Knowledge) Snapshot() KnowledgeSnapshot {
	k.mu.Lock()
	defer k.mu.Unlock()

	snap := KnowledgeSnapshot{
		Patterns:     make([]PatternStats, 0, len(k.patterns)),
		TypeAverages: make(map[string]float64, len(k.types)),
	}
	for pattern, entry := range k.patterns {
		snap.Patterns = append(snap.Patterns, statsFromEntry(pattern, entry))
	}
	sort.Slice(snap.Patterns, func(i, j int) bool {
		return snap.Patterns[i].Pattern < snap.Patterns[j].Pattern
	})
	for pageType, te := range k.types {
		if te.pages > 0 {
			snap.TypeAverages[pageType] = float64(te.scoreSum) / float64(te.pages)
		}
	}
	return snap
}

func statsFromEntry(pattern string, entry *patternEntry) PatternStats {
	s := PatternStats{
		Pattern:      pattern,
		Visits:       entry.visits,
		RelevanceSum: entry.relevanceSum,
	}
	if entry.visits > 0 {
		s.Average = float64(entry.relevanceSum) / float64(entry.visits)
	}
	return s
}
