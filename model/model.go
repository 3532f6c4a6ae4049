package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Request captures one normalized generation request produced by the
// pipeline. Schema, when set, asks the provider for schema-constrained
// structured output; providers that cannot honor it still return plain text
// and leave recovery to the extraction protocol.
type Request struct {
	System string         `json:"system,omitempty"`
	Prompt string         `json:"prompt"`
	Schema map[string]any `json:"schema,omitempty"` // JSON Schema for structured output
	// SchemaName labels the schema for providers that require a name.
	// Defaults to "result" when empty.
	SchemaName string `json:"schemaName,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final text emitted for one request. For schema-constrained
// requests Text carries the serialized structured value.
type Response struct {
	Text  string      `json:"text"`
	Usage *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name           string `json:"name"`
	Provider       string `json:"provider"` // "openai", "anthropic", "local", etc.
	SupportsSchema bool   `json:"supports_schema"`
}

// Model is the minimal generation capability required by the pipeline.
// Implementations must be stateless per call and safe for concurrent use so
// responses are cacheable by fingerprint.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Embedder is the embedding capability used by the semantic splitter.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// mockRule pairs a prompt substring with its canned completion.
type mockRule struct {
	contains string
	response string
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Canned responses are matched by prompt substring in registration order.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	rules    []mockRule
	err      error
	requests []Request
}

// NewMockModel constructs a MockModel with schema support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:           name,
			Provider:       provider,
			SupportsSchema: true,
		},
	}
}

// AddResponse registers a canned completion for prompts containing the given
// substring. Rules are matched in registration order; the first hit wins.
func (m *MockModel) AddResponse(promptContains, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: promptContains, response: response})
}

// SetError makes every subsequent Generate call fail with err. Pass nil to
// clear.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}

	for _, rule := range m.rules {
		if strings.Contains(req.Prompt, rule.contains) {
			return &Response{Text: rule.response}, nil
		}
	}
	return &Response{Text: fmt.Sprintf("Mock response to: %s", req.Prompt)}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// Requests returns a copy of every request seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// CallCount returns how many Generate calls were made.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// MockEmbedder is an in-memory Embedder with canned vectors per input text.
// Unknown inputs receive a deterministic unit vector so similarity math stays
// well defined.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

// NewMockEmbedder constructs an empty MockEmbedder.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{vectors: map[string][]float32{}}
}

// AddVector registers the embedding returned for exactly this text.
func (m *MockEmbedder) AddVector(text string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vector
}

// SetError makes every subsequent Embed call fail with err.
func (m *MockEmbedder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

// CallCount returns how many Embed calls were made.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
