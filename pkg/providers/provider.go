package providers

import (
	"context"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// ChatOptions tunes a single provider call.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}

// LLMProvider is the vendor-neutral chat interface. Implementations adapt
// the canonical message form to their SDK's wire format.
type LLMProvider interface {
	Chat(ctx context.Context, messages []models.Message, tools []models.ToolDefinition, model string, opts *ChatOptions) (*models.LLMResponse, error)
	DefaultModel() string
}
