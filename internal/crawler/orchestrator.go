package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siftcrawl/siftcrawl/internal/logging"
	"github.com/siftcrawl/siftcrawl/internal/metrics"
)

// Sizing for the reconnaissance and deep-crawl transitions.
const (
	minReconBudget = 5
	deepSeedSize   = 7
)

// phaseNames is the label set for the phase gauge.
var phaseNames = []string{
	string(PhaseInit),
	string(PhaseReconnaissance),
	string(PhaseStructureAnalysis),
	string(PhaseDeepCrawl),
	string(PhaseDone),
}

// Options configures one crawl session.
type Options struct {
	SessionID   string
	Objective   string
	StartURL    string
	TotalBudget int
	Workers     int
	Thresholds  Thresholds

	// MaxOracleInflight bounds concurrent inference calls. Zero leaves
	// them bounded only by worker count.
	MaxOracleInflight int64

	// SnapshotPrefix is the object-path prefix for raw page snapshots.
	// Empty disables snapshotting even when a store is wired.
	SnapshotPrefix string

	// PublishTopic is the broker topic for page-completion events. Empty
	// disables publishing.
	PublishTopic string
}

// Deps are the external collaborators of a session. Fetcher and Oracle are
// required; everything else may be nil.
type Deps struct {
	Fetcher   Fetcher
	Oracle    Oracle
	Snapshots SnapshotStore
	Publisher Publisher
	Progress  ProgressNotifier
	Clock     Clock
	Logger    *zap.Logger
}

// Orchestrator runs a crawl session as a strict phase progression with a
// bounded worker pool. A session is single-use; build a new one per crawl.
type Orchestrator struct {
	opts Options
	deps Deps

	canon     *Canonicalizer
	knowledge *Knowledge
	scorer    *HeuristicScorer
	analyzer  *ObjectiveAnalyzer
	extractor *Extractor
	selector  *NavigationSelector
	answerer  *AnswerSynthesizer
	logger    *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []string
	visited   map[string]struct{}
	inflight  int
	cancelled bool

	phase      Phase
	pagesUsed  int
	phaseUsed  int
	phaseLimit int

	pages []PageRecord

	// pageLinks keeps recon link candidates for deep-crawl seeding, so the
	// transition never refetches a page.
	pageLinks map[string][]LinkCandidate
	pageScore map[string]int
}

// NewOrchestrator validates options and wires the session pipeline.
func NewOrchestrator(opts Options, deps Deps) (*Orchestrator, error) {
	if opts.Objective == "" {
		return nil, fmt.Errorf("objective must not be empty")
	}
	if opts.TotalBudget <= 0 {
		return nil, fmt.Errorf("page budget must be positive, got %d", opts.TotalBudget)
	}
	if deps.Fetcher == nil || deps.Oracle == nil {
		return nil, fmt.Errorf("fetcher and oracle are required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if (opts.Thresholds == Thresholds{}) {
		opts.Thresholds = BalancedThresholds()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logging.ForSession(logger, opts.SessionID)

	canon, err := NewCanonicalizer(opts.StartURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL %q: %w", opts.StartURL, err)
	}

	knowledge := NewKnowledge()
	scorer := NewHeuristicScorer(opts.Thresholds, knowledge)
	o := &Orchestrator{
		opts:      opts,
		deps:      deps,
		canon:     canon,
		knowledge: knowledge,
		scorer:    scorer,
		analyzer:  NewObjectiveAnalyzer(deps.Oracle, logger),
		extractor: NewExtractor(deps.Oracle, knowledge, opts.Thresholds, deps.Clock, opts.MaxOracleInflight, logger),
		selector:  NewNavigationSelector(deps.Oracle, scorer, knowledge, opts.Thresholds, logger),
		answerer:  NewAnswerSynthesizer(deps.Oracle, opts.Thresholds, logger),
		logger:    logger,
		visited:   make(map[string]struct{}),
		pageLinks: make(map[string][]LinkCandidate),
		pageScore: make(map[string]int),
		phase:     PhaseInit,
	}
	o.cond = sync.NewCond(&o.mu)
	return o, nil
}

// ReconBudget is the page allowance for the reconnaissance phase.
func ReconBudget(total int) int {
	b := total / 10
	if b < minReconBudget {
		b = minReconBudget
	}
	if b > total {
		b = total
	}
	return b
}

// Run executes the session to completion. The phase sequence is strict and
// has no back-transitions; budget exhaustion is normal termination, not an
// error. On context cancellation Run returns the partial result together
// with the context error.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	metrics.Init()
	startedAt := o.deps.Clock.Now()

	result := Result{
		SessionID: o.opts.SessionID,
		Objective: o.opts.Objective,
		StartURL:  o.opts.StartURL,
		StartedAt: startedAt,
	}

	plan, err := o.analyzer.Analyze(ctx, o.opts.Objective)
	if err != nil {
		return result, err
	}
	result.Plan = plan

	// Unblock waiting workers when the caller gives up.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.cancelled = true
			o.cond.Broadcast()
			o.mu.Unlock()
		case <-watchDone:
		}
	}()

	startURL, ok := o.canon.Canonicalize(o.opts.StartURL, "")
	if !ok {
		return result, fmt.Errorf("start URL %q is not crawlable", o.opts.StartURL)
	}

	o.setPhase(PhaseReconnaissance, ReconBudget(o.opts.TotalBudget))
	o.enqueue([]string{startURL})
	o.runWorkers(ctx, plan)

	// A cancelled context skips straight to finalization with whatever
	// reconnaissance gathered.
	if ctx.Err() == nil {
		o.setPhase(PhaseStructureAnalysis, 0)
		plan = o.analyzeStructure(ctx, plan)
		result.Plan = plan

		o.setPhase(PhaseDeepCrawl, o.opts.TotalBudget-o.pagesUsed)
		o.seedDeepCrawl(plan)
		o.runWorkers(ctx, plan)

		o.mu.Lock()
		exhausted := o.pagesUsed >= o.opts.TotalBudget
		o.mu.Unlock()
		if exhausted {
			// Normal termination, not an error.
			o.logger.Info("stopping crawl", zap.String("reason", "page budget exhausted"))
		}
	}

	o.setPhase(PhaseDone, 0)
	result.Pages = o.snapshotPages()
	result.Knowledge = o.knowledge.Snapshot()
	result.Answer = o.answerer.Synthesize(ctx, o.opts.Objective, result.Pages)
	result.FinishedAt = o.deps.Clock.Now()

	o.storeResultSnapshot(ctx, result)
	o.notify(ProgressEvent{
		Type:    EventDone,
		Message: fmt.Sprintf("crawled %d pages, %d high value", len(result.Pages), result.HighValueCount(o.opts.Thresholds.HighValue)),
	})
	o.logger.Info("crawl session finished",
		zap.Int("pages", len(result.Pages)),
		zap.Int("budget", o.opts.TotalBudget),
		zap.Float64("avg_relevance", result.AverageRelevance()),
	)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// setPhase advances the session phase and resets the per-phase budget.
// URLs still queued from the previous phase are dropped and released from
// the visited set, so a later phase may rediscover and crawl them.
func (o *Orchestrator) setPhase(phase Phase, limit int) {
	o.mu.Lock()
	o.phase = phase
	o.phaseUsed = 0
	o.phaseLimit = limit
	for _, u := range o.queue {
		delete(o.visited, u)
	}
	o.queue = o.queue[:0]
	o.mu.Unlock()

	metrics.SetPhase(string(phase), phaseNames)
	o.notify(ProgressEvent{Type: EventPhaseChange})
	o.logger.Info("phase change", zap.String("phase", string(phase)), zap.Int("phase_budget", limit))
}

// runWorkers drains the current phase's queue with a bounded pool. It
// returns when the queue is empty with no work in flight, or when the phase
// or global budget is spent.
func (o *Orchestrator) runWorkers(ctx context.Context, plan ObjectivePlan) {
	var wg sync.WaitGroup
	for i := 0; i < o.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				url, ok := o.next()
				if !ok {
					return
				}
				metrics.IncActiveWorkers()
				o.processPage(ctx, url, plan)
				metrics.DecActiveWorkers()

				o.mu.Lock()
				o.inflight--
				o.cond.Broadcast()
				o.mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

// next blocks until a URL can be dispatched. A false return means the phase
// is over: budget spent, cancelled, or queue drained with nothing in flight.
// Dispatch is where budget is consumed, so a session can never fetch more
// than TotalBudget pages no matter how many links get enqueued.
func (o *Orchestrator) next() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for {
		if o.cancelled || o.budgetSpentLocked() {
			o.cond.Broadcast()
			return "", false
		}
		if len(o.queue) > 0 {
			url := o.queue[0]
			o.queue = o.queue[1:]
			o.inflight++
			o.pagesUsed++
			o.phaseUsed++
			metrics.SetBudgetRemaining(o.opts.TotalBudget - o.pagesUsed)
			return url, true
		}
		if o.inflight == 0 {
			return "", false
		}
		o.cond.Wait()
	}
}

func (o *Orchestrator) budgetSpentLocked() bool {
	return o.pagesUsed >= o.opts.TotalBudget || o.phaseUsed >= o.phaseLimit
}

// enqueue adds unseen canonical URLs to the queue. A URL is marked visited
// at enqueue time, so it can never be queued twice across phases.
func (o *Orchestrator) enqueue(urls []string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	added := 0
	for _, u := range urls {
		if _, seen := o.visited[u]; seen {
			continue
		}
		o.visited[u] = struct{}{}
		o.queue = append(o.queue, u)
		added++
	}
	if added > 0 {
		o.cond.Broadcast()
	}
	return added
}

// processPage runs the fetch, extract, select pipeline for one URL. Fetch
// failure consumes budget but produces no PageRecord.
func (o *Orchestrator) processPage(ctx context.Context, url string, plan ObjectivePlan) {
	phase, used := o.progressCounts()

	fetch, err := o.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.ObserveFetchFailure(string(phase))
		o.notify(ProgressEvent{Type: EventFetchError, URL: url, Message: err.Error()})
		o.logger.Warn("fetch failed", zap.String("url", url), zap.Error(err))
		return
	}

	candidates := ExtractLinks(fetch.HTML, url, o.canon)
	record := o.extractor.Extract(ctx, fetch, o.opts.Objective, plan, phase, len(candidates))

	o.mu.Lock()
	o.pages = append(o.pages, record)
	if phase == PhaseReconnaissance && o.mayExplore(record) {
		o.pageLinks[url] = candidates
		o.pageScore[url] = record.RelevanceScore
	}
	o.mu.Unlock()

	metrics.ObservePage(string(phase), "ok", record.RelevanceScore)
	o.notify(ProgressEvent{Type: EventPageDone, URL: url, Relevance: record.RelevanceScore})
	o.storePageSnapshot(ctx, fetch)
	o.publishPage(ctx, record)

	o.logger.Info("page processed",
		zap.String("url", url),
		zap.String("phase", string(phase)),
		zap.Int("relevance", record.RelevanceScore),
		zap.Int("links", len(candidates)),
	)

	// Pages the oracle scored below the exploration threshold are dead
	// ends; their links never reach selection. A degraded page's zero is
	// an outage artifact, not a judgement, so it is exempt.
	if !o.mayExplore(record) {
		return
	}
	remaining := o.remainingBudget()
	selected := o.selector.SelectNext(ctx, candidates, plan, SelectionContext{
		Phase:       phase,
		Objective:   o.opts.Objective,
		CurrentURL:  url,
		PageType:    record.PageType,
		Relevance:   record.RelevanceScore,
		PagesUsed:   used,
		TotalBudget: o.opts.TotalBudget,
	}, remaining)
	if len(selected) == 0 {
		return
	}
	urls := make([]string, 0, len(selected))
	for _, c := range selected {
		urls = append(urls, c.URL)
	}
	o.enqueue(urls)
}

// mayExplore reports whether a page's links may feed navigation and deep
// crawl seeding. Scored pages must clear the exploration threshold;
// degraded pages always pass, since their zero score was never a judgement.
func (o *Orchestrator) mayExplore(record PageRecord) bool {
	return record.Degraded || record.RelevanceScore >= o.opts.Thresholds.WorthExploring
}

func (o *Orchestrator) progressCounts() (Phase, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase, o.pagesUsed
}

func (o *Orchestrator) remainingBudget() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	global := o.opts.TotalBudget - o.pagesUsed
	phase := o.phaseLimit - o.phaseUsed
	if phase < global {
		return phase
	}
	return global
}

// structureAnalysis is the response schema for the mid-crawl refinement call.
type structureAnalysis struct {
	AdditionalSeekPatterns []string `json:"additional_seek_patterns"`
	Notes                  string   `json:"notes"`
}

const structurePromptTemplate = `A reconnaissance crawl just finished. Review what it learned about the site and refine the strategy for the deep crawl.

CRAWL OBJECTIVE: %s

PAGES SEEN (url pattern, visits, average relevance):
%s

PAGE TYPES (type, average relevance):
%s

Suggest URL keywords worth seeking that the current plan misses. Respond
with JSON only:
{"additional_seek_patterns": ["..."], "notes": "one sentence on site structure"}`

// analyzeStructure refines the plan from reconnaissance knowledge. This is
// a single oracle call; on failure the plan passes through unchanged.
func (o *Orchestrator) analyzeStructure(ctx context.Context, plan ObjectivePlan) ObjectivePlan {
	snap := o.knowledge.Snapshot()
	if len(snap.Patterns) == 0 {
		return plan
	}

	var patterns, types []string
	for _, p := range snap.Patterns {
		patterns = append(patterns, fmt.Sprintf("- %s (visits %d, avg %.1f)", p.Pattern, p.Visits, p.Average))
	}
	for t, avg := range snap.TypeAverages {
		types = append(types, fmt.Sprintf("- %s: %.1f", t, avg))
	}
	sort.Strings(types)

	result := o.deps.Oracle.Infer(ctx, fmt.Sprintf(structurePromptTemplate,
		o.opts.Objective, strings.Join(patterns, "\n"), strings.Join(types, "\n")))
	var analysis structureAnalysis
	if err := result.Decode(&analysis); err != nil {
		o.logger.Warn("structure analysis degraded, keeping original plan",
			zap.String("outcome", outcomeLabel(result.Outcome)),
			zap.Error(err),
		)
		return plan
	}
	if analysis.Notes != "" {
		o.logger.Info("site structure assessed", zap.String("notes", analysis.Notes))
	}
	return RefinePlan(plan, analysis.AdditionalSeekPatterns)
}

// seedDeepCrawl fills the deep-crawl queue from the link candidates of
// reconnaissance pages that cleared the exploration threshold, best pages
// first. No page is refetched to seed the queue.
func (o *Orchestrator) seedDeepCrawl(plan ObjectivePlan) {
	o.mu.Lock()
	type seedPage struct {
		url   string
		score int
	}
	seeds := make([]seedPage, 0, len(o.pageLinks))
	for url, score := range o.pageScore {
		seeds = append(seeds, seedPage{url: url, score: score})
	}
	o.mu.Unlock()

	sort.SliceStable(seeds, func(i, j int) bool {
		if seeds[i].score != seeds[j].score {
			return seeds[i].score > seeds[j].score
		}
		return seeds[i].url < seeds[j].url
	})

	total := 0
	for _, seed := range seeds {
		o.mu.Lock()
		candidates := o.pageLinks[seed.url]
		o.mu.Unlock()

		shortlist := o.scorer.Shortlist(candidates, plan, deepSeedSize)
		urls := make([]string, 0, len(shortlist))
		for _, c := range shortlist {
			urls = append(urls, c.URL)
		}
		total += o.enqueue(urls)
		if total >= o.opts.TotalBudget-o.pagesUsed {
			break
		}
	}
	o.logger.Info("deep crawl seeded", zap.Int("queued", total), zap.Int("seed_pages", len(seeds)))
}

func (o *Orchestrator) storePageSnapshot(ctx context.Context, fetch FetchResult) {
	if o.deps.Snapshots == nil || o.opts.SnapshotPrefix == "" {
		return
	}
	path := fmt.Sprintf("%s/%s/pages/%s.html", o.opts.SnapshotPrefix, o.opts.SessionID, uuid.NewString())
	if _, err := o.deps.Snapshots.PutObject(ctx, path, "text/html", []byte(fetch.HTML)); err != nil {
		o.logger.Warn("page snapshot failed", zap.String("url", fetch.URL), zap.Error(err))
	}
}

func (o *Orchestrator) storeResultSnapshot(ctx context.Context, result Result) {
	if o.deps.Snapshots == nil || o.opts.SnapshotPrefix == "" {
		return
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		o.logger.Warn("result snapshot marshal failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/result.json", o.opts.SnapshotPrefix, o.opts.SessionID)
	if _, err := o.deps.Snapshots.PutObject(ctx, path, "application/json", payload); err != nil {
		o.logger.Warn("result snapshot failed", zap.Error(err))
	}
}

func (o *Orchestrator) publishPage(ctx context.Context, record PageRecord) {
	if o.deps.Publisher == nil || o.opts.PublishTopic == "" {
		return
	}
	if _, err := o.deps.Publisher.Publish(ctx, o.opts.PublishTopic, record); err != nil {
		o.logger.Warn("page publish failed", zap.String("url", record.URL), zap.Error(err))
	}
}

func (o *Orchestrator) notify(event ProgressEvent) {
	if o.deps.Progress == nil {
		return
	}
	o.mu.Lock()
	event.SessionID = o.opts.SessionID
	event.Phase = o.phase
	event.PagesUsed = o.pagesUsed
	event.Budget = o.opts.TotalBudget
	o.mu.Unlock()
	event.At = o.deps.Clock.Now()
	o.deps.Progress.Notify(event)
}

func (o *Orchestrator) snapshotPages() []PageRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	pages := make([]PageRecord, len(o.pages))
	copy(pages, o.pages)
	return pages
}
