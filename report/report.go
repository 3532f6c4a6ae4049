// Package report turns accumulated research findings into a final
// deliverable: a structured markdown report or a concise direct answer.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/deepresearch/cache"
	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/extract"
	"github.com/hupe1980/deepresearch/internal/util"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/model"
)

// Section is one titled block of a report body.
type Section struct {
	Heading string `json:"heading" description:"Section heading"`
	Body    string `json:"body" description:"Section body in markdown"`
}

// Report is the structured final deliverable. References are appended
// deterministically from the visited sources, not generated.
type Report struct {
	Title      string    `json:"title"`
	Abstract   string    `json:"abstract"`
	Sections   []Section `json:"sections"`
	References []string  `json:"references,omitempty"`
}

// Markdown renders the report as a markdown document.
func (r Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n", r.Title)
	if r.Abstract != "" {
		fmt.Fprintf(&b, "\n%s\n", r.Abstract)
	}
	for _, s := range r.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", s.Heading, s.Body)
	}
	if len(r.References) > 0 {
		b.WriteString("\n## References\n\n")
		for i, ref := range r.References {
			fmt.Fprintf(&b, "%d. %s\n", i+1, ref)
		}
	}
	return b.String()
}

// reportPayload is the schema target of the synthesis call. References are
// excluded: they come from the engine's visited sources, not the model.
type reportPayload struct {
	Title    string    `json:"title" description:"Report title"`
	Abstract string    `json:"abstract" description:"Two to four sentence abstract"`
	Sections []Section `json:"sections" description:"Report body sections"`
}

// answerPayload is the schema target of the short-answer call.
type answerPayload struct {
	Answer string `json:"answer" description:"The concise final answer"`
}

const reportPrompt = `Write a detailed research report answering the user's prompt, using the learnings below as your only factual basis. Aim for thoroughness; include every relevant learning.

Prompt: {{.prompt}}

Learnings:
{{bullet .learnings}}

Respond with a JSON object {"title": "...", "abstract": "...", "sections": [{"heading": "...", "body": "..."}]}.`

const answerPrompt = `Answer the user's prompt as concisely as the prompt allows, using the learnings below. Do not hedge or pad; if the prompt expects a single value, return just that value.

Prompt: {{.prompt}}

Learnings:
{{bullet .learnings}}

Respond with a JSON object {"answer": "..."}.`

// Options configures a Synthesizer.
type Options struct {
	// Cache memoizes synthesized reports by fingerprint. Nil disables
	// caching.
	Cache *cache.Cache[Report]

	// Extractor parses the synthesis output. Defaults to an extractor using
	// the synthesizer's generator for the repair pass.
	Extractor *extract.Extractor

	// CallTimeout bounds each synthesis call.
	CallTimeout time.Duration

	// MaxRetries bounds retries of transient synthesis failures.
	MaxRetries int

	// Logger records synthesis activity.
	Logger logging.Logger
}

// Synthesizer produces the final deliverable from a finished research run.
// Synthesis calls run under the same per-call timeout and bounded backoff
// policy the engine applies to its own generative calls.
type Synthesizer struct {
	generator   model.Model
	extractor   *extract.Extractor
	cache       *cache.Cache[Report]
	callTimeout time.Duration
	maxRetries  int
	logger      logging.Logger
}

// NewSynthesizer creates a Synthesizer around a generation capability.
func NewSynthesizer(generator model.Model, optFns ...func(o *Options)) (*Synthesizer, error) {
	opts := Options{
		CallTimeout: time.Minute,
		MaxRetries:  2,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if generator == nil {
		return nil, fmt.Errorf("%w: generator is required", core.ErrInvalidConfiguration)
	}
	if opts.CallTimeout <= 0 {
		return nil, fmt.Errorf("%w: call timeout must be positive, got %v", core.ErrInvalidConfiguration, opts.CallTimeout)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must be non-negative, got %d", core.ErrInvalidConfiguration, opts.MaxRetries)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Extractor == nil {
		e, err := extract.NewExtractor(generator, func(o *extract.Options) { o.Logger = opts.Logger })
		if err != nil {
			return nil, err
		}
		opts.Extractor = e
	}

	return &Synthesizer{
		generator:   generator,
		extractor:   opts.Extractor,
		cache:       opts.Cache,
		callTimeout: opts.CallTimeout,
		maxRetries:  opts.MaxRetries,
		logger:      opts.Logger,
	}, nil
}

// FromLearnings builds a minimal report directly from a run's findings. It
// is the degraded deliverable when synthesis itself fails: the learnings and
// references survive even though no model wrote the prose.
func FromLearnings(prompt string, learnings, visitedSources []string) Report {
	var b strings.Builder
	for _, l := range learnings {
		fmt.Fprintf(&b, "- %s\n", l)
	}

	return Report{
		Title:      prompt,
		Abstract:   "Report synthesis was unavailable. The collected findings are listed verbatim.",
		Sections:   []Section{{Heading: "Findings", Body: strings.TrimRight(b.String(), "\n")}},
		References: append([]string(nil), visitedSources...),
	}
}

// Synthesize produces the structured report for a finished run. The
// synthesis call is a cacheable boundary: its fingerprint covers the prompt
// and a digest of the learnings, while references are appended afterwards so
// a cached body still carries the current run's sources.
func (s *Synthesizer) Synthesize(ctx context.Context, prompt string, learnings, visitedSources []string) (Report, error) {
	fingerprint := cache.NewDescriptor("report").
		Field("prompt", prompt, "").
		List("learnings", learnings).
		Fingerprint()

	if cached, ok := s.cache.Get(fingerprint); ok {
		s.logger.Debug("report cache hit", "fingerprint", fingerprint)
		cached.References = append([]string(nil), visitedSources...)
		return cached, nil
	}

	rendered, err := util.RenderTemplate(reportPrompt, map[string]any{
		"prompt":    prompt,
		"learnings": learnings,
	})
	if err != nil {
		return Report{}, err
	}

	text, err := s.generate(ctx, model.Request{
		Prompt:     rendered,
		Schema:     util.CreateSchema(reportPayload{}),
		SchemaName: "report",
	})
	if err != nil {
		return Report{}, fmt.Errorf("report synthesis: %w", err)
	}

	payload, err := extract.Structured[reportPayload](ctx, s.extractor, text)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		Title:    payload.Title,
		Abstract: payload.Abstract,
		Sections: payload.Sections,
	}
	s.cache.Set(fingerprint, rep)

	rep.References = append([]string(nil), visitedSources...)
	return rep, nil
}

// WriteAnswer produces a concise direct answer instead of a full report.
func (s *Synthesizer) WriteAnswer(ctx context.Context, prompt string, learnings []string) (string, error) {
	rendered, err := util.RenderTemplate(answerPrompt, map[string]any{
		"prompt":    prompt,
		"learnings": learnings,
	})
	if err != nil {
		return "", err
	}

	text, err := s.generate(ctx, model.Request{
		Prompt:     rendered,
		Schema:     util.CreateSchema(answerPayload{}),
		SchemaName: "answer",
	})
	if err != nil {
		return "", fmt.Errorf("answer synthesis: %w", err)
	}

	payload, err := extract.Structured[answerPayload](ctx, s.extractor, text)
	if err != nil {
		return "", err
	}
	return payload.Answer, nil
}

// generate issues one synthesis call under the per-call timeout, retrying
// transient provider failures and per-call timeouts with bounded exponential
// backoff.
func (s *Synthesizer) generate(ctx context.Context, req model.Request) (string, error) {
	var text string

	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()

		resp, err := s.generator.Generate(callCtx, req)
		if err == nil {
			text = resp.Text
			return nil
		}

		var transient *core.TransientError
		if errors.As(err, &transient) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.maxRetries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return "", err
	}
	return text, nil
}
