package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/deepresearch/core"
)

// HTTPOptions configures an HTTPProvider.
type HTTPOptions struct {
	// APIKey is sent as a bearer token when set.
	APIKey string
	// MaxResults bounds the number of results requested per query.
	MaxResults int
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests, custom transports).
	HTTPClient *http.Client
}

// HTTPProvider queries a Firecrawl-style JSON search endpoint: a POST with
// {"query": ..., "limit": ...} answered by {"data": [{"url", "title",
// "markdown"}]}. Server-side (5xx) and transport failures are reported as
// core.TransientError so the engine's retry policy applies.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	opts     HTTPOptions
}

// NewHTTPProvider creates a provider for the given endpoint URL.
func NewHTTPProvider(endpoint string, optFns ...func(o *HTTPOptions)) *HTTPProvider {
	opts := HTTPOptions{
		MaxResults: 5,
		Timeout:    30 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPProvider{endpoint: endpoint, client: client, opts: opts}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Data []struct {
		URL      string `json:"url"`
		Title    string `json:"title"`
		Markdown string `json:"markdown"`
	} `json:"data"`
}

// Search implements Provider.
func (p *HTTPProvider) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{Query: query, Limit: p.opts.MaxResults})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &core.TransientError{Provider: "search", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, &core.TransientError{Provider: "search", Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.URL == "" {
			continue
		}
		results = append(results, Result{URL: d.URL, Title: d.Title, Content: d.Markdown})
	}
	return results, nil
}
