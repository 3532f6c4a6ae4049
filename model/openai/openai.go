// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API, including schema-constrained structured output via
// response_format. It also implements model.Embedder on top of the
// embeddings API for the semantic splitter.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/deepresearch/model"
)

// Options configure the OpenAI model adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	EmbeddingModel      string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model
// interface and the embeddings API behind model.Embedder.
type Model struct {
	client *openai.Client
	opts   Options
}

// Compile-time interface checks.
var (
	_ model.Model    = (*Model)(nil)
	_ model.Embedder = (*Model)(nil)
)

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		EmbeddingModel:      openai.EmbeddingModelTextEmbedding3Small,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model using a non-streaming chat completion.
// When req.Schema is set, the request asks for strict json_schema output so
// the response text is the serialized structured value.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "result"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api returned no choices")
	}

	out := &model.Response{Text: resp.Choices[0].Message.Content}
	out.Usage = &model.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

// Embed implements model.Embedder.
func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: m.opts.EmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings returned no data")
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai", SupportsSchema: true}
}

// buildMessages converts the normalized request into OpenAI chat messages.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))
	return messages
}
