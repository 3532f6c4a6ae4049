// Package anthropic provides a model wrapper for the Anthropic Claude API.
// Schema-constrained structured output is implemented with forced tool use:
// the schema becomes the input schema of a single tool the model must call,
// and the tool input is returned as the response text.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/deepresearch/model"
)

// structuredToolName is the tool the model is forced to call for
// schema-constrained requests.
const structuredToolName = "record_result"

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate implements model.Model using a non-streaming Messages call.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if req.Schema != nil {
		params.Tools = []anthropic.ToolUnionParam{buildStructuredTool(req.Schema)}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: structuredToolName},
		}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	out := &model.Response{Text: extractText(resp, req.Schema != nil)}
	out.Usage = &model.TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return out, nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic", SupportsSchema: true}
}

// buildStructuredTool converts a JSON schema into the forced tool definition.
func buildStructuredTool(schema map[string]any) anthropic.ToolUnionParam {
	inputSchema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}

	if properties, exists := schema["properties"]; exists {
		inputSchema.Properties = properties
	}
	if required, exists := schema["required"]; exists {
		if reqSlice, ok := required.([]string); ok {
			inputSchema.Required = reqSlice
		} else if reqInterface, ok := required.([]interface{}); ok {
			var reqStrings []string
			for _, r := range reqInterface {
				if s, ok := r.(string); ok {
					reqStrings = append(reqStrings, s)
				}
			}
			inputSchema.Required = reqStrings
		}
	}

	return anthropic.ToolUnionParamOfTool(inputSchema, structuredToolName)
}

// extractText flattens the response blocks. For structured requests the
// forced tool call's input wins over any surrounding prose.
func extractText(resp *anthropic.Message, structured bool) string {
	var sb strings.Builder

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			sb.WriteString(block.AsText().Text)
		case "tool_use":
			toolBlock := block.AsToolUse()
			if !structured || toolBlock.Name != structuredToolName {
				continue
			}
			if toolBlock.Input != nil {
				if raw, err := json.Marshal(toolBlock.Input); err == nil {
					return string(raw)
				}
			}
		}
	}

	return sb.String()
}
