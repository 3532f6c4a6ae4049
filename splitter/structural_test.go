package splitter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deepresearch/core"
)

func TestNewStructuralSplitter_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		fn   func(o *StructuralOptions)
	}{
		{"overlap equals size", func(o *StructuralOptions) { o.ChunkSize = 100; o.ChunkOverlap = 100 }},
		{"overlap exceeds size", func(o *StructuralOptions) { o.ChunkSize = 100; o.ChunkOverlap = 150 }},
		{"negative overlap", func(o *StructuralOptions) { o.ChunkOverlap = -1 }},
		{"zero size", func(o *StructuralOptions) { o.ChunkSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStructuralSplitter(tt.fn)
			assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		})
	}
}

func TestStructuralSplitter_EmptyInput(t *testing.T) {
	s, err := NewStructuralSplitter()
	require.NoError(t, err)

	chunks, err := s.SplitText(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestStructuralSplitter_MergesWithinChunkSize(t *testing.T) {
	s, err := NewStructuralSplitter(func(o *StructuralOptions) {
		o.ChunkSize = 40
		o.ChunkOverlap = 0
	})
	require.NoError(t, err)

	text := "First paragraph here.\n\nSecond one.\n\nThird paragraph is also short."
	chunks, err := s.SplitText(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Adjacent short paragraphs are merged with a single joining space.
	assert.Equal(t, "First paragraph here. Second one.", chunks[0].Text)
}

func TestStructuralSplitter_NeverExceedsChunkSize(t *testing.T) {
	s, err := NewStructuralSplitter(func(o *StructuralOptions) {
		o.ChunkSize = 25
		o.ChunkOverlap = 5
	})
	require.NoError(t, err)

	inputs := []string{
		"A short sentence. Another one follows! And a third? Plus trailing words here",
		strings.Repeat("word ", 100),
		"one-unbroken-token-that-is-much-longer-than-any-configured-chunk-size-limit",
		"line one\nline two\nline three\n\npara two with more text than fits",
	}

	for _, input := range inputs {
		chunks, err := s.SplitText(context.Background(), input)
		require.NoError(t, err)
		for _, c := range chunks {
			assert.LessOrEqualf(t, c.ApproxSize, 25, "chunk %q", c.Text)
			assert.NotEmpty(t, c.Text)
		}
	}
}

func TestStructuralSplitter_FixedWidthOverlap(t *testing.T) {
	s, err := NewStructuralSplitter(func(o *StructuralOptions) {
		o.ChunkSize = 10
		o.ChunkOverlap = 4
		o.Separators = []string{"\n\n"}
	})
	require.NoError(t, err)

	// No separator present and longer than the chunk size: fixed-width
	// slicing with 4 runes of repeat between consecutive slices.
	chunks, err := s.SplitText(context.Background(), "abcdefghijklmnop")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "abcdefghij", chunks[0].Text)
	assert.Equal(t, "ghijklmnop", chunks[1].Text)
	assert.Equal(t, "mnop", chunks[2].Text)
}

func TestStructuralSplitter_WhitespaceNormalized(t *testing.T) {
	s, err := NewStructuralSplitter()
	require.NoError(t, err)

	chunks, err := s.SplitText(context.Background(), "some   text\twith \t runs")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "some text with runs", chunks[0].Text)
}

func TestStructuralSplitter_Deterministic(t *testing.T) {
	s, err := NewStructuralSplitter(func(o *StructuralOptions) { o.ChunkSize = 30; o.ChunkOverlap = 3 })
	require.NoError(t, err)

	text := "Determinism matters. The same input must always yield the same chunks.\n\nEvery single time."
	first, err := s.SplitText(context.Background(), text)
	require.NoError(t, err)
	second, err := s.SplitText(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
