// Package search defines the optional web search capability consumed by the
// research engine. Absence of a provider degrades to zero sources; it never
// fails the pipeline.
package search

import (
	"context"
)

// Result is one retrieved source: an identifying URL plus the content the
// engine will segment and analyze.
type Result struct {
	URL     string
	Title   string
	Content string
}

// Provider is the pluggable search capability. Implementations must be safe
// for concurrent use by multiple in-flight workers.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// NoOpProvider returns zero sources for every query. It is the default
// provider so a pipeline without search still produces learnings from the
// model's own knowledge.
type NoOpProvider struct{}

// Search implements Provider.
func (NoOpProvider) Search(context.Context, string) ([]Result, error) {
	return nil, nil
}
