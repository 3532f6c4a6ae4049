// Package extract turns free-form generative output into validated
// structured values. Parsing is modeled as an explicit staged state machine
// rather than exception-driven control flow:
//
//  1. direct structural parse of the raw text
//  2. lexical salvage: locate the first well-formed bracketed structure in
//     the text and parse that
//  3. exactly one repair request asking the model to reformat its own prior
//     output, then stages 1-2 once more
//  4. a typed core.FormatError alongside a safe default value
//
// The pipeline always receives a value; no parse failure escapes as a panic
// or aborts a worker's siblings.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/internal/util"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/model"
)

const repairPromptTemplate = `The following text was supposed to be a single JSON value matching this schema:

%s

It did not parse. Reformat it into exactly one valid JSON value matching the schema. Output only the JSON, no commentary.

Text:
%s`

// Options configures an Extractor.
type Options struct {
	// RepairAttempts bounds how many reformat requests may be issued per
	// extraction. The protocol allows at most one.
	RepairAttempts int
	// CallTimeout bounds the repair request.
	CallTimeout time.Duration
	// MaxRetries bounds retries of transient repair failures.
	MaxRetries int
	// Logger records parse failures and repair activity.
	Logger logging.Logger
}

// Extractor runs the staged parse protocol. The repairer model is optional;
// without it stage 3 is skipped.
type Extractor struct {
	repairer model.Model
	opts     Options
}

// NewExtractor creates an Extractor. A nil repairer disables the repair
// stage. Construction fails with core.ErrInvalidConfiguration when
// RepairAttempts is negative or above one, when CallTimeout is not positive
// or when MaxRetries is negative.
func NewExtractor(repairer model.Model, optFns ...func(o *Options)) (*Extractor, error) {
	opts := Options{
		RepairAttempts: 1,
		CallTimeout:    time.Minute,
		MaxRetries:     2,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.RepairAttempts < 0 || opts.RepairAttempts > 1 {
		return nil, fmt.Errorf("%w: repair attempts must be 0 or 1, got %d", core.ErrInvalidConfiguration, opts.RepairAttempts)
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

	return &Extractor{repairer: repairer, opts: opts}, nil
}

// Extract parses one generative response into a core.ExtractionResult. On
// unrecoverable format failure it returns the safe default (no learnings)
// together with a *core.FormatError; citations recovered by the lexical scan
// are attached in both cases.
func (e *Extractor) Extract(ctx context.Context, raw string) (core.ExtractionResult, error) {
	citations := ScanCitations(raw)

	result, err := Structured[core.ExtractionResult](ctx, e, raw)
	if err != nil {
		return core.ExtractionResult{Citations: citations}, err
	}

	result.Citations = citations
	return result.Clamp(), nil
}

// Structured runs the staged protocol for an arbitrary target type. On
// failure it returns the zero value and a *core.FormatError.
func Structured[T any](ctx context.Context, e *Extractor, raw string) (T, error) {
	if v, ok := parse[T](raw); ok {
		return v, nil
	}

	if e.repairer != nil && e.opts.RepairAttempts > 0 {
		e.opts.Logger.Debug("structural parse failed, issuing repair request", "raw_len", len(raw))

		if repaired, err := e.repair(ctx, raw, schemaFor[T]()); err != nil {
			e.opts.Logger.Warn("repair request failed", "error", err)
		} else if v, ok := parse[T](repaired); ok {
			return v, nil
		}
	}

	var zero T
	return zero, &core.FormatError{Raw: raw}
}

// repair issues the single reformat request under the per-call timeout.
// Transient provider failures and per-call timeouts are retried with bounded
// exponential backoff; parse failures are not, the protocol allows exactly
// one reformat of the original text.
func (e *Extractor) repair(ctx context.Context, raw string, schema map[string]any) (string, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	req := model.Request{
		Prompt:     fmt.Sprintf(repairPromptTemplate, schemaJSON, raw),
		Schema:     schema,
		SchemaName: "repaired",
	}

	var text string
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()

		resp, err := e.repairer.Generate(callCtx, req)
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

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.opts.MaxRetries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return "", err
	}
	return text, nil
}

// parse is stages 1-2 as a tagged outcome: (value, true) for parsed input,
// (zero, false) for malformed input.
func parse[T any](raw string) (T, bool) {
	var v T

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return v, false
	}

	// Stage 1: the whole text is the value.
	if json.Unmarshal([]byte(trimmed), &v) == nil {
		return v, true
	}

	// Stage 2: first well-formed bracketed structure embedded in prose or a
	// code fence.
	fragment, ok := firstJSONFragment(trimmed)
	if !ok {
		var zero T
		return zero, false
	}

	var salvaged T
	if json.Unmarshal([]byte(fragment), &salvaged) == nil {
		return salvaged, true
	}

	var zero T
	return zero, false
}

// firstJSONFragment locates the first balanced {...} or [...] in text,
// honoring string literals and escapes, and validates it with gjson before
// handing it to the typed decoder.
func firstJSONFragment(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}

	var (
		depth    int
		inString bool
		escaped  bool
	)

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				fragment := text[start : i+1]
				if gjson.Valid(fragment) {
					return fragment, true
				}
				return "", false
			}
		}
	}

	return "", false
}

// schemaFor builds the JSON schema for the target type via reflection. Used
// only for the repair request.
func schemaFor[T any]() map[string]any {
	var v T
	return util.CreateSchema(v)
}
