package splitter

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/logging"
)

// Embedder is the minimal embedding capability the semantic splitter needs.
// model.Embedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// sentencePattern splits on sentence-ending punctuation followed by
// whitespace.
var sentencePattern = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)

// SemanticOptions configures a SemanticSplitter.
type SemanticOptions struct {
	// ChunkSize is the maximum chunk size in tokens.
	ChunkSize int
	// SimilarityThreshold is the minimum cosine similarity between the
	// running chunk's centroid embedding and the next sentence for the
	// sentence to be merged.
	SimilarityThreshold float64
	// SentenceOverlap, when positive, seeds each new chunk with the last
	// sentence of the previous one.
	SentenceOverlap int
	// Encoding names the tiktoken encoding used for token counting.
	Encoding string
	// Logger records embedding failures and fallbacks.
	Logger logging.Logger
}

// SemanticSplitter groups sentences into chunks by embedding similarity: a
// running chunk grows while the merged token count stays within ChunkSize
// and the next sentence remains similar to the chunk's centroid. Inputs that
// cannot be split into more than one sentence, and any embedding failure,
// degrade to the structural splitter; the caller never sees the failure.
type SemanticSplitter struct {
	embedder Embedder
	fallback *StructuralSplitter
	counter  *TokenCounter
	opts     SemanticOptions
}

// NewSemanticSplitter creates a semantic splitter backed by the given
// embedder. Construction fails with core.ErrInvalidConfiguration for a nil
// embedder, a non-positive chunk size or a threshold outside (0, 1].
func NewSemanticSplitter(embedder Embedder, optFns ...func(o *SemanticOptions)) (*SemanticSplitter, error) {
	opts := SemanticOptions{
		ChunkSize:           512,
		SimilarityThreshold: 0.65,
		Encoding:            "cl100k_base",
		Logger:              logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", core.ErrInvalidConfiguration)
	}
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrInvalidConfiguration, opts.ChunkSize)
	}
	if opts.SimilarityThreshold <= 0 || opts.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold %v outside (0, 1]", core.ErrInvalidConfiguration, opts.SimilarityThreshold)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	// The structural fallback slices by runes, so scale the token budget
	// back to characters.
	fallback, err := NewStructuralSplitter(func(o *StructuralOptions) {
		o.ChunkSize = opts.ChunkSize * fallbackCharsPerToken
		o.ChunkOverlap = 0
	})
	if err != nil {
		return nil, err
	}

	return &SemanticSplitter{
		embedder: embedder,
		fallback: fallback,
		counter:  NewTokenCounter(opts.Encoding),
		opts:     opts,
	}, nil
}

// SplitText implements Splitter.
func (s *SemanticSplitter) SplitText(ctx context.Context, text string) ([]Chunk, error) {
	text = strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")
	if text == "" {
		return []Chunk{}, nil
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return s.fallback.SplitText(ctx, text)
	}

	embeddings, err := s.embedAll(ctx, sentences)
	if err != nil {
		s.opts.Logger.Warn("embedding unavailable, falling back to structural splitter", "error", err)
		return s.fallback.SplitText(ctx, text)
	}

	return s.group(sentences, embeddings), nil
}

func (s *SemanticSplitter) embedAll(ctx context.Context, sentences []string) ([][]float32, error) {
	embeddings := make([][]float32, len(sentences))
	for i, sentence := range sentences {
		emb, err := s.embedder.Embed(ctx, sentence)
		if err != nil {
			return nil, err
		}
		if len(emb) == 0 {
			return nil, fmt.Errorf("empty embedding for sentence %d", i)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// group greedily grows a running chunk sentence by sentence. A sentence is
// merged while the merged token count fits and it stays similar to the
// running centroid; otherwise the chunk closes and the rejected sentence
// starts the next one, optionally seeded with one sentence of overlap.
func (s *SemanticSplitter) group(sentences []string, embeddings [][]float32) []Chunk {
	var (
		chunks   []Chunk
		current  []string
		centroid []float32
		members  int
	)

	open := func(sentence string, emb []float32) {
		current = []string{sentence}
		centroid = append([]float32(nil), emb...)
		members = 1
	}

	closeChunk := func() {
		if c, ok := newChunk(strings.Join(current, " ")); ok {
			chunks = append(chunks, c)
		}
	}

	open(sentences[0], embeddings[0])

	for i := 1; i < len(sentences); i++ {
		sentence, emb := sentences[i], embeddings[i]

		merged := strings.Join(current, " ") + " " + sentence
		fits := s.counter.Count(merged) <= s.opts.ChunkSize
		similar := cosineSimilarity(centroid, emb) >= s.opts.SimilarityThreshold

		if fits && similar {
			current = append(current, sentence)
			centroid = updateCentroid(centroid, emb, members)
			members++
			continue
		}

		closeChunk()
		if s.opts.SentenceOverlap > 0 {
			// Seed with the previous sentence and its own embedding, but
			// only when the seeded pair still fits the token budget.
			seed := sentences[i-1]
			if s.counter.Count(seed+" "+sentence) <= s.opts.ChunkSize {
				open(seed, embeddings[i-1])
				current = append(current, sentence)
				centroid = updateCentroid(centroid, emb, members)
				members++
				continue
			}
		}
		open(sentence, emb)
	}
	closeChunk()

	return chunks
}

// splitSentences segments text on sentence-ending punctuation. Trailing text
// without terminal punctuation becomes a final sentence.
func splitSentences(text string) []string {
	var sentences []string
	consumed := 0
	for _, m := range sentencePattern.FindAllStringSubmatchIndex(text, -1) {
		sentence := strings.TrimSpace(text[m[2]:m[3]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		consumed = m[1]
	}
	if rest := strings.TrimSpace(text[consumed:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// updateCentroid folds one embedding into a running element-wise average
// that already covers n members.
func updateCentroid(centroid, emb []float32, n int) []float32 {
	out := make([]float32, len(centroid))
	for i := range centroid {
		v := float32(0)
		if i < len(emb) {
			v = emb[i]
		}
		out[i] = (centroid[i]*float32(n) + v) / float32(n+1)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
