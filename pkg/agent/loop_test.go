package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
	"github.com/tinyclaw-dev/tinyclaw/pkg/providers"
	"github.com/tinyclaw-dev/tinyclaw/pkg/session"
	"github.com/tinyclaw-dev/tinyclaw/pkg/tools"
)

// scriptedProvider replays a fixed list of responses, then repeats the last
// one. Each call is counted.
type scriptedProvider struct {
	responses []*models.LLMResponse
	err       error
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []models.Message, defs []models.ToolDefinition, model string, opts *providers.ChatOptions) (*models.LLMResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	idx := p.calls - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func (p *scriptedProvider) DefaultModel() string { return "scripted" }

func testConfig(t *testing.T, maxIterations int) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.Workspace = t.TempDir()
	cfg.Agents.Defaults.Model = "fake/scripted"
	cfg.Agents.Defaults.MaxToolIterations = maxIterations
	return cfg
}

func newTestLoop(t *testing.T, cfg *config.Config, provider providers.LLMProvider) (*AgentLoop, *bus.MessageBus) {
	t.Helper()
	messageBus := bus.NewMessageBus()
	t.Cleanup(messageBus.Close)
	loop := NewAgentLoop(messageBus, cfg, map[string]providers.LLMProvider{"fake": provider}, nil)
	return loop, messageBus
}

func TestProcessDirectEchoTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		{Content: "hello there"},
	}}
	loop, _ := newTestLoop(t, testConfig(t, 20), provider)

	reply, err := loop.ProcessDirect("hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.Equal(t, 1, provider.calls)

	// The turn is persisted: user message then assistant reply.
	a := loop.Agents.Default()
	history := a.Sessions.GetHistory("agent:default:cli:direct")
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestProcessDirectSingleToolCall(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		{ToolCalls: []models.ToolCall{{ID: "call-1", Name: "echo", Arguments: map[string]interface{}{"text": "said hi"}}}},
		{Content: "done: said hi"},
	}}
	loop, _ := newTestLoop(t, testConfig(t, 20), provider)
	loop.Agents.Default().Tools.Register(&tools.EchoTool{})

	reply, err := loop.ProcessDirect("use the echo tool")
	require.NoError(t, err)
	assert.Equal(t, "done: said hi", reply)
	assert.Equal(t, 2, provider.calls)

	// The session carries the assistant tool call and the tool reply.
	history := loop.Agents.Default().Sessions.GetHistory("agent:default:cli:direct")
	var toolMsg *models.Message
	for i := range history {
		if history[i].Role == "tool" {
			toolMsg = &history[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call-1", toolMsg.ToolCallID)
	assert.Equal(t, "said hi", toolMsg.Content)
}

func TestProcessDirectIterationCap(t *testing.T) {
	// The provider never stops asking for tools; the loop must cut it off.
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		{ToolCalls: []models.ToolCall{{ID: "c", Name: "echo", Arguments: map[string]interface{}{"text": "again"}}}},
	}}
	loop, _ := newTestLoop(t, testConfig(t, 2), provider)

	echoCalls := 0
	loop.Agents.Default().Tools.Register(&countingEcho{calls: &echoCalls})

	reply, err := loop.ProcessDirect("loop forever")
	require.NoError(t, err)
	assert.Equal(t, truncationNotice, reply)

	// At most maxIterations+1 provider calls and maxIterations tool batches.
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, 2, echoCalls)
}

type countingEcho struct {
	calls *int
}

func (t *countingEcho) Name() string                       { return "echo" }
func (t *countingEcho) Description() string                { return "echo" }
func (t *countingEcho) Parameters() map[string]interface{} { return map[string]interface{}{} }
func (t *countingEcho) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	*t.calls++
	return models.NewToolResult("again", ""), nil
}

func TestProcessDirectProviderExhausted(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("429 rate limit")}
	cfg := testConfig(t, 20)
	loop, _ := newTestLoop(t, cfg, provider)

	_, err := loop.ProcessDirect("hi")
	require.Error(t, err)

	var exhausted *providers.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)

	// The user message is still persisted even though the turn failed.
	path := filepath.Join(cfg.Agents.Defaults.Workspace, "sessions",
		session.SanitizeKey("agent:default:cli:direct")+".json")
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestProcessDirectNewCommand(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{{Content: "ok"}}}
	loop, _ := newTestLoop(t, testConfig(t, 20), provider)

	_, err := loop.ProcessDirect("hi")
	require.NoError(t, err)

	reply, err := loop.ProcessDirect("/new")
	require.NoError(t, err)
	assert.Contains(t, reply, "new conversation")
	assert.Empty(t, loop.Agents.Default().Sessions.GetHistory("agent:default:cli:direct"))
}

func TestHandlePublishesOutbound(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{{Content: "routed reply"}}}
	loop, messageBus := newTestLoop(t, testConfig(t, 20), provider)

	err := loop.handle(models.InboundMessage{
		Channel:  "telegram",
		SenderID: "u1",
		ChatID:   "12345",
		Content:  "hello",
	})
	require.NoError(t, err)

	out, ok := messageBus.ConsumeOutbound()
	require.True(t, ok)
	assert.Equal(t, "telegram", out.Channel)
	assert.Equal(t, "12345", out.ChatID)
	assert.Equal(t, "routed reply", out.Content)
}

func TestHandleNotifiesActivityObserver(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{{Content: "ok"}}}
	loop, messageBus := newTestLoop(t, testConfig(t, 20), provider)

	var gotChannel, gotChatID string
	calls := 0
	loop.SetActivityObserver(func(channel, chatID string) {
		gotChannel, gotChatID = channel, chatID
		calls++
	})

	require.NoError(t, loop.handle(models.InboundMessage{
		Channel:  "telegram",
		SenderID: "u1",
		ChatID:   "12345",
		Content:  "hello",
	}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "telegram", gotChannel)
	assert.Equal(t, "12345", gotChatID)
	messageBus.ConsumeOutbound()

	// Synthetic wakeups keep the last user destination intact.
	for _, sender := range []string{"cron", "device-monitor"} {
		require.NoError(t, loop.handle(models.InboundMessage{
			Channel:  "telegram",
			SenderID: sender,
			ChatID:   "job-1",
			Content:  "wake up",
		}))
		messageBus.ConsumeOutbound()
	}
	assert.Equal(t, 1, calls)
}

func TestRouteInputMetadata(t *testing.T) {
	input := routeInput(models.InboundMessage{
		Channel: "discord",
		ChatID:  "chan-1",
		Metadata: map[string]string{
			"guild_id":  "g-1",
			"peer_kind": "group",
			"peer_id":   "chan-1",
		},
	})
	assert.Equal(t, "discord", input.Channel)
	assert.Equal(t, "g-1", input.GuildID)
	require.NotNil(t, input.Peer)
	assert.Equal(t, "group", input.Peer.Kind)
}
