// Package splitter segments raw text into bounded-size chunks before it is
// handed to the generative capability. Two variants exist: a structural
// splitter driven by a separator hierarchy and a semantic splitter that
// groups sentences by embedding similarity, falling back to the structural
// variant whenever embeddings are unavailable.
package splitter

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Chunk is one bounded segment of input text. Chunks from the same input
// preserve insertion order; ApproxSize is the rune count after whitespace
// normalization.
type Chunk struct {
	Text       string
	ApproxSize int
}

// Splitter turns raw text into an ordered sequence of chunks. SplitText on
// empty input returns an empty sequence, never an error.
type Splitter interface {
	SplitText(ctx context.Context, text string) ([]Chunk, error)
}

// newChunk normalizes whitespace runs and builds a Chunk. Returns false for
// text that is empty after normalization.
func newChunk(text string) (Chunk, bool) {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return Chunk{}, false
	}
	return Chunk{Text: normalized, ApproxSize: utf8.RuneCountInString(normalized)}, true
}
