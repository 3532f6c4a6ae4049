package splitter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deepresearch/core"
)

// stubEmbedder returns canned vectors per sentence and fails on demand.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

// The Encoding override forces the character-ratio token counter so tests do
// not depend on a downloadable tiktoken vocabulary.
func newTestSemanticSplitter(t *testing.T, embedder Embedder, optFns ...func(o *SemanticOptions)) *SemanticSplitter {
	t.Helper()
	all := append([]func(o *SemanticOptions){func(o *SemanticOptions) { o.Encoding = "unknown" }}, optFns...)
	s, err := NewSemanticSplitter(embedder, all...)
	require.NoError(t, err)
	return s
}

func TestNewSemanticSplitter_InvalidConfiguration(t *testing.T) {
	_, err := NewSemanticSplitter(nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewSemanticSplitter(&stubEmbedder{}, func(o *SemanticOptions) { o.SimilarityThreshold = 1.5 })
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewSemanticSplitter(&stubEmbedder{}, func(o *SemanticOptions) { o.ChunkSize = 0 })
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestSemanticSplitter_GroupsBySimilarity(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"Cats purr.":        {1, 0},
		"Cats nap all day.": {0.9, 0.1},
		"Stocks fell hard.": {0, 1},
		"Markets are down.": {0.1, 0.9},
	}}
	s := newTestSemanticSplitter(t, embedder)

	chunks, err := s.SplitText(context.Background(), "Cats purr. Cats nap all day. Stocks fell hard. Markets are down.")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Cats purr. Cats nap all day.", chunks[0].Text)
	assert.Equal(t, "Stocks fell hard. Markets are down.", chunks[1].Text)
	assert.Equal(t, 4, embedder.calls)
}

func TestSemanticSplitter_SingleSentenceDelegates(t *testing.T) {
	embedder := &stubEmbedder{}
	s := newTestSemanticSplitter(t, embedder)

	chunks, err := s.SplitText(context.Background(), "just one sentence without much structure")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	// The structural fallback handled it; no embeddings were requested.
	assert.Zero(t, embedder.calls)
}

func TestSemanticSplitter_EmbedderFailureFallsBack(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("embedding service down")}
	s := newTestSemanticSplitter(t, embedder)

	chunks, err := s.SplitText(context.Background(), "First sentence here. Second sentence there. Third one too.")
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestSemanticSplitter_SentenceOverlapSeedsNextChunk(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"Topic one stays.":  {1, 0},
		"Topic two begins.": {0, 1},
	}}
	s := newTestSemanticSplitter(t, embedder, func(o *SemanticOptions) { o.SentenceOverlap = 1 })

	chunks, err := s.SplitText(context.Background(), "Topic one stays. Topic two begins.")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	// The closing sentence of the first chunk seeds the second.
	assert.Equal(t, "Topic one stays.", chunks[0].Text)
	assert.Equal(t, "Topic one stays. Topic two begins.", chunks[1].Text)
}

func TestSemanticSplitter_OverlapRespectsTokenBudget(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"Alpha topic sentence one.": {1, 0},
		"Alpha topic sentence two.": {0, 1},
	}}
	// Each sentence alone fits the budget; seed plus sentence does not, so
	// the overlap seeding is skipped rather than producing an oversized chunk.
	s := newTestSemanticSplitter(t, embedder, func(o *SemanticOptions) {
		o.ChunkSize = 8
		o.SentenceOverlap = 1
	})

	chunks, err := s.SplitText(context.Background(), "Alpha topic sentence one. Alpha topic sentence two.")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Alpha topic sentence one.", chunks[0].Text)
	assert.Equal(t, "Alpha topic sentence two.", chunks[1].Text)
	for _, c := range chunks {
		assert.LessOrEqual(t, s.counter.Count(c.Text), 8)
	}
}

func TestSemanticSplitter_OverlapSeedUsesOwnEmbedding(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"Solar output rose.":     {1, 0, 0},
		"Panel yields improved.": {0.8, 0.6, 0},
		"Bond markets slipped.":  {0, 0, 1},
		"Rates moved higher.":    {0, 1, 0.4},
	}}
	s := newTestSemanticSplitter(t, embedder, func(o *SemanticOptions) {
		o.SentenceOverlap = 1
		o.SimilarityThreshold = 0.5
	})

	chunks, err := s.SplitText(context.Background(), "Solar output rose. Panel yields improved. Bond markets slipped. Rates moved higher.")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Solar output rose. Panel yields improved.", chunks[0].Text)
	// The seeded chunk's centroid averages the seed sentence's own embedding
	// with the rejected sentence; the fourth sentence merges only against
	// that centroid, not against the closed chunk's.
	assert.Equal(t, "Panel yields improved. Bond markets slipped. Rates moved higher.", chunks[1].Text)
}

func TestSemanticSplitter_EmptyInput(t *testing.T) {
	s := newTestSemanticSplitter(t, &stubEmbedder{})
	chunks, err := s.SplitText(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("One. Two! Three? And a tail without punctuation")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "And a tail without punctuation"}, sentences)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 3}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
