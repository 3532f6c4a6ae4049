package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/hupe1980/deepresearch/batch"
	"github.com/hupe1980/deepresearch/cache"
	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/extract"
	"github.com/hupe1980/deepresearch/internal/util"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/model"
	"github.com/hupe1980/deepresearch/progress"
	"github.com/hupe1980/deepresearch/search"
	"github.com/hupe1980/deepresearch/splitter"
)

// DefaultBreadth is the documented default fan-out per task. Fingerprints
// omit the breadth field at this value so calls differing only in an unset
// breadth share cache entries.
const DefaultBreadth = 4

// Config defines tuning parameters for the controller's operational behavior.
type Config struct {
	// Concurrency is the ceiling on in-flight workers per batch invocation.
	Concurrency int

	// MaxRetries bounds retry-with-backoff around each generative/search
	// call. A call still failing afterwards counts as a worker failure,
	// never a tree-wide abort.
	MaxRetries int

	// CallTimeout is the per-call timeout applied to every generative and
	// search invocation.
	CallTimeout time.Duration

	// MaxDepth / MaxBreadth bound the root task budget accepted by Research.
	MaxDepth   int
	MaxBreadth int

	// MaxContentChunks caps how many splitter chunks of retrieved content
	// are handed to one analysis call.
	MaxContentChunks int
}

// DefaultConfig provides conservative defaults: two concurrent workers, two
// retries, one minute per call.
var DefaultConfig = Config{
	Concurrency:      2,
	MaxRetries:       2,
	CallTimeout:      time.Minute,
	MaxDepth:         5,
	MaxBreadth:       10,
	MaxContentChunks: 6,
}

// Options configures a Controller beyond its generation capability.
type Options struct {
	Config Config

	// Searcher retrieves web content per sub-query. Defaults to
	// search.NoOpProvider: research proceeds with zero sources.
	Searcher search.Provider

	// Splitter segments retrieved content before analysis. Defaults to a
	// structural splitter.
	Splitter splitter.Splitter

	// Extractor runs the extraction/repair protocol. Defaults to an
	// extractor using the controller's generator for the repair pass.
	Extractor *extract.Extractor

	// SubQueryCache memoizes fan-out results by fingerprint. Nil disables
	// caching.
	SubQueryCache *cache.Cache[[]core.SubQuery]

	// Limiter caps the total number of generative calls per run. Nil means
	// unlimited.
	Limiter *core.CallLimiter

	// Tracker feeds rate/ETA estimation. Defaults to a fresh tracker.
	Tracker *progress.Tracker

	// OnProgress receives a snapshot after every completed sub-query.
	OnProgress func(core.ProgressSnapshot)

	// Logger records pipeline activity.
	Logger logging.Logger
}

// Result is the aggregated outcome of one research tree: every learning and
// source identifier known to the tree, deduplicated, in first-seen order.
type Result struct {
	Learnings      []string
	VisitedSources []string
}

// Controller drives the recursive research state machine. It is safe for
// concurrent use; per-run state lives in the run, not the controller.
type Controller struct {
	generator  model.Model
	extractor  *extract.Extractor
	searcher   search.Provider
	splitter   splitter.Splitter
	cache      *cache.Cache[[]core.SubQuery]
	limiter    *core.CallLimiter
	tracker    *progress.Tracker
	onProgress func(core.ProgressSnapshot)
	logger     logging.Logger
	cfg        Config
}

// New creates a Controller around a generation capability. Construction is
// the only place configuration errors abort; every later failure degrades.
func New(generator model.Model, optFns ...func(o *Options)) (*Controller, error) {
	opts := Options{
		Config:   DefaultConfig,
		Searcher: search.NoOpProvider{},
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if generator == nil {
		return nil, fmt.Errorf("%w: generator is required", core.ErrInvalidConfiguration)
	}
	if opts.Config.Concurrency < 1 {
		return nil, fmt.Errorf("%w: concurrency must be >= 1, got %d", core.ErrInvalidConfiguration, opts.Config.Concurrency)
	}
	if opts.Config.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must not be negative, got %d", core.ErrInvalidConfiguration, opts.Config.MaxRetries)
	}
	if opts.Config.CallTimeout <= 0 {
		return nil, fmt.Errorf("%w: call timeout must be positive, got %s", core.ErrInvalidConfiguration, opts.Config.CallTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Searcher == nil {
		opts.Searcher = search.NoOpProvider{}
	}

	if opts.Splitter == nil {
		s, err := splitter.NewStructuralSplitter()
		if err != nil {
			return nil, err
		}
		opts.Splitter = s
	}

	if opts.Extractor == nil {
		e, err := extract.NewExtractor(generator, func(o *extract.Options) { o.Logger = opts.Logger })
		if err != nil {
			return nil, err
		}
		opts.Extractor = e
	}

	if opts.Tracker == nil {
		tr, err := progress.NewTracker()
		if err != nil {
			return nil, err
		}
		opts.Tracker = tr
	}

	return &Controller{
		generator:  generator,
		extractor:  opts.Extractor,
		searcher:   opts.Searcher,
		splitter:   opts.Splitter,
		cache:      opts.SubQueryCache,
		limiter:    opts.Limiter,
		tracker:    opts.Tracker,
		onProgress: opts.OnProgress,
		logger:     opts.Logger,
		cfg:        opts.Config,
	}, nil
}

// Tracker exposes the progress tracker for ETA queries by observers.
func (c *Controller) Tracker() *progress.Tracker { return c.tracker }

// runState is the shared mutable state of one research run: progress
// counters and the already-visited guard. Everything else is owned
// per-branch and merged only at aggregation points.
type runState struct {
	id           string
	totalDepth   int
	totalBreadth int

	mu        sync.Mutex
	completed int
	total     int
	visited   map[string]struct{}
}

// markVisited reports whether the query is seen for the first time.
func (s *runState) markVisited(query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[query]; ok {
		return false
	}
	s.visited[query] = struct{}{}
	return true
}

func (s *runState) addTotal(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += n
	return s.total
}

// completeQuery records one finished sub-query and emits the snapshot while
// holding the state lock, so observers see snapshots in completion order.
func (c *Controller) completeQuery(state *runState, parent core.ResearchTask, query string) {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.completed++
	c.tracker.Record(state.completed)

	if c.onProgress == nil {
		return
	}
	c.onProgress(core.ProgressSnapshot{
		CurrentDepth:     parent.Depth,
		TotalDepth:       state.totalDepth,
		CurrentBreadth:   parent.Breadth,
		TotalBreadth:     state.totalBreadth,
		CompletedQueries: state.completed,
		TotalQueries:     state.total,
		CurrentQuery:     query,
	})
}

// Research runs the full recursive pipeline for the given root task. It
// always returns a Result (possibly with fewer learnings than hoped) and
// fails only on configuration misuse.
func (c *Controller) Research(ctx context.Context, task core.ResearchTask) (Result, error) {
	if task.Query == "" {
		return Result{}, fmt.Errorf("%w: query is required", core.ErrInvalidConfiguration)
	}
	if task.Depth < 1 || task.Depth > c.cfg.MaxDepth {
		return Result{}, fmt.Errorf("%w: depth %d outside [1, %d]", core.ErrInvalidConfiguration, task.Depth, c.cfg.MaxDepth)
	}
	if task.Breadth < 1 || task.Breadth > c.cfg.MaxBreadth {
		return Result{}, fmt.Errorf("%w: breadth %d outside [1, %d]", core.ErrInvalidConfiguration, task.Breadth, c.cfg.MaxBreadth)
	}

	state := &runState{
		id:           uuid.NewString(),
		totalDepth:   task.Depth,
		totalBreadth: task.Breadth,
		visited:      map[string]struct{}{},
	}

	c.logger.Info("research run started", "run_id", state.id, "query", task.Query, "depth", task.Depth, "breadth", task.Breadth)
	result := c.run(ctx, task, state)

	finished := []any{"run_id", state.id, "learnings", len(result.Learnings), "sources", len(result.VisitedSources)}
	if c.limiter != nil {
		finished = append(finished, "generative_calls", c.limiter.Used())
	}
	c.logger.Info("research run finished", finished...)

	return result, nil
}

// run is one state-machine pass over a task: terminal check, fan-out,
// dispatch, aggregation.
func (c *Controller) run(ctx context.Context, task core.ResearchTask, state *runState) Result {
	// Terminal check: exhausted budget is a base case, not an error.
	if task.IsTerminal() {
		return Result{Learnings: task.Learnings, VisitedSources: task.VisitedSources}
	}

	subQueries := c.generateSubQueries(ctx, task, state)
	if len(subQueries) == 0 {
		return Result{Learnings: task.Learnings, VisitedSources: task.VisitedSources}
	}

	total := state.addTotal(len(subQueries))
	c.tracker.SetTotal(total)

	results, err := batch.Run(ctx, subQueries, c.cfg.Concurrency, func(ctx context.Context, sq core.SubQuery) (Result, error) {
		return c.worker(ctx, task, sq, state), nil
	})
	if err != nil {
		// Unreachable with a validated concurrency limit; degrade anyway.
		c.logger.Error("batch dispatch failed", "run_id", state.id, "error", err)
		return Result{Learnings: task.Learnings, VisitedSources: task.VisitedSources}
	}

	// Aggregation: union of every worker's findings into this task's
	// accumulated state. Merging is append/union only; workers never mutate
	// a sibling's slices.
	aggregated := task
	aggregated.Learnings = append([]string(nil), task.Learnings...)
	aggregated.VisitedSources = append([]string(nil), task.VisitedSources...)
	for _, r := range results {
		aggregated.MergeLearnings(r.Value.Learnings)
		aggregated.MergeSources(r.Value.VisitedSources)
	}

	return Result{Learnings: aggregated.Learnings, VisitedSources: aggregated.VisitedSources}
}

// worker processes one sub-query: search, segment, analyze, extract, then
// recurse when budget remains. Every failure inside the worker degrades to
// an empty partial result.
func (c *Controller) worker(ctx context.Context, parent core.ResearchTask, sq core.SubQuery, state *runState) Result {
	defer c.completeQuery(state, parent, sq.Query)

	// Already-visited guard: a query expanded elsewhere in the tree is not
	// reprocessed.
	if !state.markVisited(sq.Query) {
		c.logger.Debug("sub-query already visited", "run_id", state.id, "query", sq.Query)
		return Result{}
	}

	sources := c.searchSources(ctx, sq.Query, state)
	contents := c.prepareContents(ctx, sources, state)
	extraction := c.analyze(ctx, sq, contents, state)

	learnings := core.AppendUnique(append([]string(nil), parent.Learnings...), extraction.Learnings...)

	visited := append([]string(nil), parent.VisitedSources...)
	for _, src := range sources {
		visited = core.AppendUnique(visited, src.URL)
	}
	visited = core.AppendUnique(visited, extraction.SourceURLs...)

	if parent.Depth-1 > 0 {
		child := parent.Child(sq.ResearchGoal, sq.ResearchGoal, learnings, visited)
		if !child.IsTerminal() {
			return c.run(ctx, child, state)
		}
	}

	return Result{Learnings: learnings, VisitedSources: visited}
}

// subQueryPayload is the schema target of the fan-out call.
type subQueryPayload struct {
	Queries []core.SubQuery `json:"queries"`
}

// generateSubQueries is the cacheable fan-out step. Any failure yields zero
// sub-queries, which the caller treats as a leaf.
func (c *Controller) generateSubQueries(ctx context.Context, task core.ResearchTask, state *runState) []core.SubQuery {
	fingerprint := cache.NewDescriptor("subqueries").
		Field("query", task.Query, "").
		Field("goal", task.ResearchGoal, "").
		IntField("breadth", task.Breadth, DefaultBreadth).
		List("learnings", task.Learnings).
		Fingerprint()

	if cached, ok := c.cache.Get(fingerprint); ok {
		c.logger.Debug("sub-query cache hit", "run_id", state.id, "fingerprint", fingerprint)
		return append([]core.SubQuery(nil), cached...)
	}

	prompt, err := util.RenderTemplate(subQueriesPrompt, map[string]any{
		"query":     task.Query,
		"goal":      task.ResearchGoal,
		"breadth":   task.Breadth,
		"learnings": task.Learnings,
	})
	if err != nil {
		c.logger.Error("sub-query prompt rendering failed", "run_id", state.id, "error", err)
		return nil
	}

	text, err := c.generate(ctx, model.Request{
		System:     systemPrompt,
		Prompt:     prompt,
		Schema:     util.CreateSchema(subQueryPayload{}),
		SchemaName: "sub_queries",
	})
	if err != nil {
		if errors.Is(err, core.ErrCallBudgetExhausted) {
			c.logger.Debug("sub-query fan-out skipped, call budget exhausted", "run_id", state.id, "query", task.Query)
		} else {
			c.logger.Warn("sub-query generation failed", "run_id", state.id, "query", task.Query, "error", err)
		}
		return nil
	}

	payload, err := extract.Structured[subQueryPayload](ctx, c.extractor, text)
	if err != nil {
		c.logger.Warn("sub-query extraction failed", "run_id", state.id, "error", err)
		return nil
	}

	queries := payload.Queries
	if len(queries) > task.Breadth {
		queries = queries[:task.Breadth]
	}

	c.cache.Set(fingerprint, queries)
	return queries
}

// searchSources retrieves web content for a query. A missing or failing
// provider degrades to zero sources.
func (c *Controller) searchSources(ctx context.Context, query string, state *runState) []search.Result {
	var results []search.Result

	err := c.withRetry(ctx, func(callCtx context.Context) error {
		var err error
		results, err = c.searcher.Search(callCtx, query)
		return err
	})
	if err != nil {
		c.logger.Warn("search degraded to zero sources", "run_id", state.id, "query", query, "error", err)
		return nil
	}
	return results
}

// prepareContents segments retrieved content and caps the total number of
// chunks handed to one analysis call.
func (c *Controller) prepareContents(ctx context.Context, sources []search.Result, state *runState) []string {
	var contents []string
	for _, src := range sources {
		if len(contents) >= c.cfg.MaxContentChunks {
			break
		}
		chunks, err := c.splitter.SplitText(ctx, src.Content)
		if err != nil {
			c.logger.Warn("content segmentation failed", "run_id", state.id, "url", src.URL, "error", err)
			continue
		}
		for _, chunk := range chunks {
			if len(contents) >= c.cfg.MaxContentChunks {
				break
			}
			contents = append(contents, chunk.Text)
		}
	}
	return contents
}

// analysisPayload is the schema target of the analysis call.
type analysisPayload struct {
	Learnings  []string `json:"learnings" description:"Dense factual learnings extracted from the material"`
	SourceURLs []string `json:"sourceUrls,omitempty" description:"URLs of the sources the learnings came from"`
}

// analyze runs one generative analysis plus the extraction/repair protocol.
// Failures, including unrecoverable format, degrade to an empty extraction.
func (c *Controller) analyze(ctx context.Context, sq core.SubQuery, contents []string, state *runState) core.ExtractionResult {
	prompt, err := util.RenderTemplate(analysisPrompt, map[string]any{
		"query":        sq.Query,
		"goal":         sq.ResearchGoal,
		"maxLearnings": core.MaxLearningsPerExtraction,
		"contents":     contents,
	})
	if err != nil {
		c.logger.Error("analysis prompt rendering failed", "run_id", state.id, "error", err)
		return core.ExtractionResult{}
	}

	text, err := c.generate(ctx, model.Request{
		System:     systemPrompt,
		Prompt:     prompt,
		Schema:     util.CreateSchema(analysisPayload{}),
		SchemaName: "analysis",
	})
	if err != nil {
		if errors.Is(err, core.ErrCallBudgetExhausted) {
			c.logger.Debug("analysis skipped, call budget exhausted", "run_id", state.id, "query", sq.Query)
		} else {
			c.logger.Warn("analysis generation failed", "run_id", state.id, "query", sq.Query, "error", err)
		}
		return core.ExtractionResult{}
	}

	result, err := c.extractor.Extract(ctx, text)
	if err != nil {
		var formatErr *core.FormatError
		if errors.As(err, &formatErr) {
			c.logger.Warn("analysis output unrecoverable, using safe default", "run_id", state.id, "query", sq.Query)
		} else {
			c.logger.Warn("analysis extraction failed", "run_id", state.id, "query", sq.Query, "error", err)
		}
	}
	return result
}

// generate issues one generative call under the run's call ceiling with
// retry-with-backoff and the per-call timeout.
func (c *Controller) generate(ctx context.Context, req model.Request) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(); err != nil {
			return "", err
		}
	}

	var text string
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		start := time.Now()
		resp, err := c.generator.Generate(callCtx, req)
		if err != nil {
			c.logger.Debug("generative call failed", "duration", time.Since(start), "error", err)
			return err
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// withRetry applies the per-call timeout and bounded exponential backoff.
// Only transient provider failures and per-call timeouts are retried.
func (c *Controller) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)), ctx)
	return backoff.Retry(op, bo)
}

func isRetryable(err error) bool {
	var transient *core.TransientError
	return errors.As(err, &transient) || errors.Is(err, context.DeadlineExceeded)
}
