package splitter

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/deepresearch/core"
)

// DefaultSeparators is the separator hierarchy tried in priority order:
// paragraph breaks, line breaks, sentence-ending punctuation, word
// boundaries.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// StructuralOptions configures a StructuralSplitter.
type StructuralOptions struct {
	// ChunkSize is the maximum chunk length in runes after whitespace
	// normalization.
	ChunkSize int
	// ChunkOverlap is the number of runes repeated between consecutive
	// fixed-width slices when every separator is exhausted. Must be smaller
	// than ChunkSize.
	ChunkOverlap int
	// Separators are attempted in order; each level recurses into the next
	// when a single part still exceeds ChunkSize.
	Separators []string
}

// StructuralSplitter splits text along a separator hierarchy, greedily
// merging adjacent parts while the merged length stays within ChunkSize.
// It is a pure function of (text, ChunkSize, ChunkOverlap, Separators).
type StructuralSplitter struct {
	opts StructuralOptions
}

// NewStructuralSplitter creates a structural splitter. Construction fails
// with core.ErrInvalidConfiguration when ChunkOverlap >= ChunkSize or either
// value is negative.
func NewStructuralSplitter(optFns ...func(o *StructuralOptions)) (*StructuralSplitter, error) {
	opts := StructuralOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   DefaultSeparators,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrInvalidConfiguration, opts.ChunkSize)
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", core.ErrInvalidConfiguration, opts.ChunkOverlap, opts.ChunkSize)
	}
	if len(opts.Separators) == 0 {
		opts.Separators = DefaultSeparators
	}

	return &StructuralSplitter{opts: opts}, nil
}

// SplitText implements Splitter. The context is unused; the structural
// variant never blocks.
func (s *StructuralSplitter) SplitText(_ context.Context, text string) ([]Chunk, error) {
	return s.split(text, s.opts.Separators), nil
}

// split walks the separator hierarchy. Parts that fit are greedily merged
// (joined by a single space, the separator itself is dropped); an oversized
// part recurses into the next separator level; with no levels left the part
// is sliced at fixed width with ChunkOverlap runes of repeat.
func (s *StructuralSplitter) split(text string, separators []string) []Chunk {
	if text == "" {
		return []Chunk{}
	}
	if len(separators) == 0 {
		return s.sliceFixed(text)
	}

	var (
		chunks  []Chunk
		pending []string
		size    int
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if c, ok := newChunk(strings.Join(pending, " ")); ok {
			chunks = append(chunks, c)
		}
		pending, size = nil, 0
	}

	for _, part := range strings.Split(text, separators[0]) {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		if len([]rune(trimmed)) > s.opts.ChunkSize {
			flush()
			chunks = append(chunks, s.split(trimmed, separators[1:])...)
			continue
		}

		partLen := len([]rune(trimmed))
		joined := partLen
		if size > 0 {
			joined = size + 1 + partLen
		}
		if joined > s.opts.ChunkSize {
			flush()
			joined = partLen
		}
		pending = append(pending, trimmed)
		size = joined
	}
	flush()

	return chunks
}

// sliceFixed is the last-resort splitter: fixed-width rune windows advancing
// by ChunkSize-ChunkOverlap so consecutive slices share ChunkOverlap runes.
func (s *StructuralSplitter) sliceFixed(text string) []Chunk {
	runes := []rune(text)
	step := s.opts.ChunkSize - s.opts.ChunkOverlap

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + s.opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if c, ok := newChunk(string(runes[start:end])); ok {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
