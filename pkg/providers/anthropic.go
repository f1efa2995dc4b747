package providers

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

const anthropicDefaultMaxTokens = 8192

// AnthropicProvider talks to the Anthropic Messages API natively.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider creates a provider; apiBase is optional.
func NewAnthropicProvider(apiKey, apiBase, defaultModel string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: defaultModel,
	}
}

func (p *AnthropicProvider) DefaultModel() string {
	return p.defaultModel
}

// Chat performs a non-streamed Messages call with optional tool definitions.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []models.Message, tools []models.ToolDefinition, model string, opts *ChatOptions) (*models.LLMResponse, error) {
	if model == "" {
		model = p.defaultModel
	}

	system, conversation := toAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  conversation,
		MaxTokens: anthropicDefaultMaxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts != nil {
		if opts.MaxTokens > 0 {
			params.MaxTokens = int64(opts.MaxTokens)
		}
		if opts.Temperature > 0 {
			params.Temperature = anthropic.Float(opts.Temperature)
		}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	out := &models.LLMResponse{
		FinishReason: string(msg.StopReason),
		Usage: map[string]int{
			"prompt_tokens":     int(msg.Usage.InputTokens),
			"completion_tokens": int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += b.Text
		case anthropic.ToolUseBlock:
			args := map[string]interface{}{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					args = map[string]interface{}{}
				}
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

// toAnthropicMessages splits system-role messages out into the System field
// and folds tool-role replies into user-side tool_result blocks.
func toAnthropicMessages(messages []models.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var conversation []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "user":
			conversation = append(conversation, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			conversation = append(conversation, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			conversation = append(conversation, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return system, conversation
}

func toAnthropicTools(tools []models.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if raw, err := json.Marshal(t.Parameters); err == nil {
			json.Unmarshal(raw, &schema)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if tool.OfTool != nil && t.Description != "" {
			tool.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, tool)
	}
	return out
}
