package search

import (
	"context"
	"strings"
	"sync"
)

// Document is one entry of an InMemoryProvider corpus.
type Document struct {
	URL     string
	Title   string
	Content string
}

// InMemoryProvider is a naive process-local Provider backed by a fixed
// corpus. Matching is a linear scan with case-insensitive substring matching
// over title and content. Suitable only for tests / demos; swap for a real
// search API for production retrieval.
//
// Concurrency: protected by RWMutex.
type InMemoryProvider struct {
	mu    sync.RWMutex
	docs  []Document
	limit int
}

// NewInMemoryProvider creates an empty corpus returning at most limit
// results per query (0 means unlimited).
func NewInMemoryProvider(limit int) *InMemoryProvider {
	return &InMemoryProvider{limit: limit}
}

// Add appends documents to the corpus.
func (p *InMemoryProvider) Add(docs ...Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs = append(p.docs, docs...)
}

// Search implements Provider. Every term of the query must occur in the
// document's title or content.
func (p *InMemoryProvider) Search(_ context.Context, query string) ([]Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))

	var results []Result
	for _, doc := range p.docs {
		if p.limit > 0 && len(results) >= p.limit {
			break
		}
		haystack := strings.ToLower(doc.Title + " " + doc.Content)
		matched := true
		for _, term := range terms {
			if !strings.Contains(haystack, term) {
				matched = false
				break
			}
		}
		if matched {
			results = append(results, Result{URL: doc.URL, Title: doc.Title, Content: doc.Content})
		}
	}
	return results, nil
}
