package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/model"
)

const validPayload = `{"learnings":["go has goroutines","go ships a race detector"],"sourceUrls":["https://go.dev"]}`

func newExtractor(t *testing.T, repairer model.Model) *Extractor {
	t.Helper()
	e, err := NewExtractor(repairer)
	require.NoError(t, err)
	return e
}

func TestExtract_DirectParse(t *testing.T) {
	repairer := model.NewMockModel("mock", "mock")
	e := newExtractor(t, repairer)

	result, err := e.Extract(context.Background(), validPayload)
	require.NoError(t, err)
	assert.Equal(t, []string{"go has goroutines", "go ships a race detector"}, result.Learnings)
	assert.Equal(t, []string{"https://go.dev"}, result.SourceURLs)

	// No repair call for valid input.
	assert.Zero(t, repairer.CallCount())
}

func TestExtract_LexicalSalvage(t *testing.T) {
	repairer := model.NewMockModel("mock", "mock")
	e := newExtractor(t, repairer)

	raw := "Sure! Here is the JSON you asked for:\n```json\n" + validPayload + "\n```\nLet me know if you need anything else."
	result, err := e.Extract(context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, result.Learnings, 2)
	assert.Zero(t, repairer.CallCount())
}

func TestExtract_SalvageHonorsStringLiterals(t *testing.T) {
	e := newExtractor(t, nil)

	// The brace inside the string literal must not unbalance the scanner.
	raw := `prefix {"learnings":["uses { in text"],"sourceUrls":[]} suffix`
	result, err := e.Extract(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"uses { in text"}, result.Learnings)
}

func TestExtract_OneRepairThenSuccess(t *testing.T) {
	repairer := model.NewMockModel("mock", "mock")
	repairer.AddResponse("did not parse", validPayload)
	e := newExtractor(t, repairer)

	result, err := e.Extract(context.Background(), "learnings: goroutines are cheap;; sources: none")
	require.NoError(t, err)
	assert.Len(t, result.Learnings, 2)
	assert.Equal(t, 1, repairer.CallCount())
}

func TestExtract_UnrecoverableReturnsSafeDefault(t *testing.T) {
	repairer := model.NewMockModel("mock", "mock")
	repairer.AddResponse("did not parse", "still not json, sorry")
	e := newExtractor(t, repairer)

	result, err := e.Extract(context.Background(), "complete nonsense")
	require.Error(t, err)

	var formatErr *core.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "complete nonsense", formatErr.Raw)

	// Safe default: a value, not a panic.
	assert.Empty(t, result.Learnings)
	// Exactly one repair attempt was made.
	assert.Equal(t, 1, repairer.CallCount())
}

func TestExtract_RepairErrorDegrades(t *testing.T) {
	repairer := model.NewMockModel("mock", "mock")
	repairer.SetError(errors.New("provider down"))
	e := newExtractor(t, repairer)

	_, err := e.Extract(context.Background(), "not json")
	var formatErr *core.FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestExtract_NoRepairerSkipsStageThree(t *testing.T) {
	e := newExtractor(t, nil)

	_, err := e.Extract(context.Background(), "not json")
	var formatErr *core.FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestExtract_RepairDisabled(t *testing.T) {
	repairer := model.NewMockModel("mock", "mock")
	e, err := NewExtractor(repairer, func(o *Options) { o.RepairAttempts = 0 })
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "not json")
	assert.Error(t, err)
	assert.Zero(t, repairer.CallCount())
}

// deadlineCheckingModel records whether repair requests arrive with a
// deadline, then delegates to the inner mock.
type deadlineCheckingModel struct {
	inner       *model.MockModel
	hadDeadline bool
}

func (m *deadlineCheckingModel) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	_, m.hadDeadline = ctx.Deadline()
	return m.inner.Generate(ctx, req)
}

func (m *deadlineCheckingModel) Info() model.Info { return model.Info{Name: "mock", Provider: "test"} }

func TestExtract_RepairCallIsDeadlineBounded(t *testing.T) {
	inner := model.NewMockModel("mock", "mock")
	inner.AddResponse("did not parse", validPayload)
	repairer := &deadlineCheckingModel{inner: inner}

	e, err := NewExtractor(repairer, func(o *Options) { o.CallTimeout = time.Second })
	require.NoError(t, err)

	result, err := e.Extract(context.Background(), "not json")
	require.NoError(t, err)
	assert.Len(t, result.Learnings, 2)
	assert.True(t, repairer.hadDeadline)
}

// flakyRepairer fails a fixed number of times with a transient error, then
// delegates to the inner mock.
type flakyRepairer struct {
	inner    *model.MockModel
	failures int
}

func (m *flakyRepairer) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	if m.failures > 0 {
		m.failures--
		return nil, &core.TransientError{Provider: "flaky", Err: errors.New("temporarily unavailable")}
	}
	return m.inner.Generate(ctx, req)
}

func (m *flakyRepairer) Info() model.Info { return model.Info{Name: "flaky", Provider: "test"} }

func TestExtract_TransientRepairFailureIsRetried(t *testing.T) {
	inner := model.NewMockModel("mock", "mock")
	inner.AddResponse("did not parse", validPayload)

	e, err := NewExtractor(&flakyRepairer{inner: inner, failures: 1})
	require.NoError(t, err)

	result, err := e.Extract(context.Background(), "not json")
	require.NoError(t, err)
	assert.Len(t, result.Learnings, 2)
	assert.Equal(t, 1, inner.CallCount())
}

func TestNewExtractor_InvalidConfiguration(t *testing.T) {
	_, err := NewExtractor(nil, func(o *Options) { o.RepairAttempts = 2 })
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewExtractor(nil, func(o *Options) { o.RepairAttempts = -1 })
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewExtractor(nil, func(o *Options) { o.CallTimeout = 0 })
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewExtractor(nil, func(o *Options) { o.MaxRetries = -1 })
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestExtract_LearningsClamped(t *testing.T) {
	e := newExtractor(t, nil)

	raw := `{"learnings":["1","2","3","4","5","6","7","8","9","10","11","12"]}`
	result, err := e.Extract(context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, result.Learnings, core.MaxLearningsPerExtraction)
}

func TestStructured_CustomType(t *testing.T) {
	type payload struct {
		Queries []core.SubQuery `json:"queries"`
	}

	e := newExtractor(t, nil)
	v, err := Structured[payload](context.Background(), e, `{"queries":[{"query":"q1","researchGoal":"g1"}]}`)
	require.NoError(t, err)
	require.Len(t, v.Queries, 1)
	assert.Equal(t, "q1", v.Queries[0].Query)
}

func TestScanCitations(t *testing.T) {
	raw := "Solar adoption grew 20% in 2024 [1]. Costs fell sharply [2], see also [12]."
	citations := ScanCitations(raw)
	require.Len(t, citations, 3)
	assert.Equal(t, 1, citations[0].Reference)
	assert.Equal(t, 2, citations[1].Reference)
	assert.Equal(t, 12, citations[2].Reference)
	assert.Contains(t, citations[0].Context, "Solar adoption grew")
}

func TestScanCitations_MalformedBodyStillYieldsCitations(t *testing.T) {
	repairer := model.NewMockModel("mock", "mock")
	repairer.AddResponse("did not parse", "nope")
	e := newExtractor(t, repairer)

	result, err := e.Extract(context.Background(), "broken json but a reference [4] survives")
	require.Error(t, err)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, 4, result.Citations[0].Reference)
}

func TestScanCitations_NoMatches(t *testing.T) {
	assert.Nil(t, ScanCitations("plain text without references"))
}
