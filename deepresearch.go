// Package deepresearch provides a high-level façade over the recursive
// research engine and its supporting services (search, caching, progress
// tracking, report synthesis). Most applications interact with this package
// by:
//  1. Creating a DeepResearch via New() with a generation capability
//  2. Running research asynchronously (Run) or synchronously (RunSync)
//  3. Consuming the Outcome: learnings, visited sources and the final report
//
// The façade delegates orchestration to engine.Controller while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a real
// search provider, shared caches and a structured logger.
package deepresearch

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/deepresearch/cache"
	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/engine"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/model"
	"github.com/hupe1980/deepresearch/report"
	"github.com/hupe1980/deepresearch/search"
	"github.com/hupe1980/deepresearch/splitter"
)

// Options configures the DeepResearch instance.
type Options struct {
	// EngineConfig tunes the controller (concurrency, retries, timeouts,
	// depth/breadth ceilings).
	EngineConfig engine.Config

	// MaxGenerativeCalls caps the number of generative calls per run as a
	// safety valve independent of the depth/breadth budget. Set to 0 for
	// unlimited.
	MaxGenerativeCalls int

	// Searcher retrieves web content per sub-query. Defaults to a no-op
	// provider: research proceeds from the model's own knowledge.
	Searcher search.Provider

	// Splitter segments retrieved content before analysis. Defaults to a
	// structural splitter.
	Splitter splitter.Splitter

	// SubQueryCache and ReportCache memoize the two cacheable boundaries.
	// Nil disables the respective cache. Caches are shared across runs of
	// this instance and may be shared across instances.
	SubQueryCache *cache.Cache[[]core.SubQuery]
	ReportCache   *cache.Cache[report.Report]

	// Sink receives the finished report of every run. Nil skips delivery.
	Sink report.Sink

	// OnProgress receives a snapshot after every completed sub-query.
	OnProgress func(core.ProgressSnapshot)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Outcome is the complete result of one research run.
type Outcome struct {
	RunID          string
	Learnings      []string
	VisitedSources []string
	Report         report.Report
}

// DeepResearch is the high-level façade aggregating the engine and the
// report synthesizer.
type DeepResearch struct {
	opts        Options
	generator   model.Model
	synthesizer *report.Synthesizer
}

// New creates a DeepResearch instance with optional overrides.
func New(generator model.Model, optFns ...func(o *Options)) (*DeepResearch, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Searcher:     search.NoOpProvider{},
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	// Synthesis calls share the engine's per-call timeout and retry budget.
	synthesizer, err := report.NewSynthesizer(generator, func(o *report.Options) {
		o.Cache = opts.ReportCache
		o.CallTimeout = opts.EngineConfig.CallTimeout
		o.MaxRetries = opts.EngineConfig.MaxRetries
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	// Validate the engine configuration up front so Run never fails on
	// construction. The per-run controller below reuses the same options.
	if _, err := engine.New(generator, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Searcher = opts.Searcher
		o.Splitter = opts.Splitter
		o.Logger = opts.Logger
	}); err != nil {
		return nil, err
	}

	return &DeepResearch{
		opts:        opts,
		generator:   generator,
		synthesizer: synthesizer,
	}, nil
}

// Run starts an asynchronous research run and returns its ID together with
// result & error channels. Exactly one of the channels yields a value.
func (d *DeepResearch) Run(ctx context.Context, query string, depth, breadth int) (string, <-chan Outcome, <-chan error) {
	runID := uuid.NewString()
	outcomeCh := make(chan Outcome, 1)
	errorCh := make(chan error, 1)

	go func() {
		outcome, err := d.run(ctx, runID, query, depth, breadth)
		if err != nil {
			errorCh <- err
			return
		}
		outcomeCh <- outcome
	}()

	return runID, outcomeCh, errorCh
}

// RunSync is a synchronous helper that waits for the run to finish.
func (d *DeepResearch) RunSync(ctx context.Context, query string, depth, breadth int) (Outcome, error) {
	runID := uuid.NewString()
	return d.run(ctx, runID, query, depth, breadth)
}

// Answer runs research and returns a concise direct answer instead of a
// full report.
func (d *DeepResearch) Answer(ctx context.Context, query string, depth, breadth int) (string, error) {
	controller, err := d.newController()
	if err != nil {
		return "", err
	}

	result, err := controller.Research(ctx, core.ResearchTask{Query: query, Depth: depth, Breadth: breadth})
	if err != nil {
		return "", err
	}

	answer, err := d.synthesizer.WriteAnswer(ctx, query, result.Learnings)
	if err != nil {
		d.opts.Logger.Warn("answer synthesis failed, returning raw findings", "error", err)
		return strings.Join(result.Learnings, "\n"), nil
	}
	return answer, nil
}

func (d *DeepResearch) run(ctx context.Context, runID, query string, depth, breadth int) (Outcome, error) {
	controller, err := d.newController()
	if err != nil {
		return Outcome{}, err
	}

	result, err := controller.Research(ctx, core.ResearchTask{Query: query, Depth: depth, Breadth: breadth})
	if err != nil {
		return Outcome{}, err
	}

	// A failed synthesis must not discard a finished run: degrade to a
	// report listing the findings verbatim.
	rep, err := d.synthesizer.Synthesize(ctx, query, result.Learnings, result.VisitedSources)
	if err != nil {
		d.opts.Logger.Warn("report synthesis failed, delivering findings without prose", "run_id", runID, "error", err)
		rep = report.FromLearnings(query, result.Learnings, result.VisitedSources)
	}

	if d.opts.Sink != nil {
		if err := d.opts.Sink.Write(ctx, rep); err != nil {
			return Outcome{}, err
		}
	}

	return Outcome{
		RunID:          runID,
		Learnings:      result.Learnings,
		VisitedSources: result.VisitedSources,
		Report:         rep,
	}, nil
}

// newController builds a fresh controller per run so the call ceiling and
// progress tracker start at zero while the sub-query cache is shared.
func (d *DeepResearch) newController() (*engine.Controller, error) {
	var limiter *core.CallLimiter
	if d.opts.MaxGenerativeCalls > 0 {
		limiter = core.NewCallLimiter(d.opts.MaxGenerativeCalls)
	}

	return engine.New(d.generator, func(o *engine.Options) {
		o.Config = d.opts.EngineConfig
		o.Searcher = d.opts.Searcher
		o.Splitter = d.opts.Splitter
		o.SubQueryCache = d.opts.SubQueryCache
		o.Limiter = limiter
		o.OnProgress = d.opts.OnProgress
		o.Logger = d.opts.Logger
	})
}
