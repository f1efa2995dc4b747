package tools

import (
	"fmt"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// MessageTool sends a message to the user through the outbound bus. The
// default target comes from the turn context; the model may override it.
type MessageTool struct {
	Bus            *bus.MessageBus
	DefaultChannel string
	DefaultChatID  string
}

// NewMessageTool creates a MessageTool.
func NewMessageTool(messageBus *bus.MessageBus) *MessageTool {
	return &MessageTool{Bus: messageBus}
}

// SetContext sets the default channel and chat ID for the current turn.
func (t *MessageTool) SetContext(channel, chatID string) {
	t.DefaultChannel = channel
	t.DefaultChatID = chatID
}

func (t *MessageTool) Name() string {
	return "message"
}

func (t *MessageTool) Description() string {
	return "Send a message to the user. Supports an optional media attachment (path or URL)."
}

func (t *MessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The message content (text body or caption)",
			},
			"media": map[string]interface{}{
				"type":        "string",
				"description": "Optional: path or URL of a media file to attach",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Optional: target channel (telegram, slack, etc.)",
			},
			"chat_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional: target chat/user ID",
			},
		},
		"required": []string{"content"},
	}
}

func (t *MessageTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	content, _ := args["content"].(string)
	media, _ := args["media"].(string)

	if content == "" && media == "" {
		return models.NewErrorResult("content is required"), nil
	}

	channel := t.DefaultChannel
	if c, ok := args["channel"].(string); ok && c != "" {
		channel = c
	}
	chatID := t.DefaultChatID
	if c, ok := args["chat_id"].(string); ok && c != "" {
		chatID = c
	}

	if channel == "" || chatID == "" {
		return models.NewErrorResult("no target channel/chat specified"), nil
	}
	if t.Bus == nil {
		return models.NewErrorResult("message bus not configured"), nil
	}

	t.Bus.PublishOutbound(models.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
		Media:   media,
	})

	// Silent so the loop does not echo the delivery back to the user.
	return models.NewSilentResult(fmt.Sprintf("Message sent to %s:%s", channel, chatID)), nil
}

// EchoTool returns its input text. Useful for wiring checks.
type EchoTool struct{}

func (t *EchoTool) Name() string {
	return "echo"
}

func (t *EchoTool) Description() string {
	return "Echo the given text back."
}

func (t *EchoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Text to echo",
			},
		},
		"required": []string{"text"},
	}
}

func (t *EchoTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	text, ok := args["text"].(string)
	if !ok {
		return models.NewErrorResult("text must be a string"), nil
	}
	return models.NewToolResult(text, ""), nil
}
