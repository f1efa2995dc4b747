package models

import "time"

// Message is one entry in a conversation, in the canonical provider-neutral
// form. Only assistant messages carry ToolCalls; only tool messages carry
// ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a single tool invocation requested by the model. The ID is
// opaque and echoed back on the matching tool-role reply.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolDefinition describes a tool to the provider. Parameters is a
// JSON-schema fragment.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// LLMResponse is a complete (non-streamed) provider reply.
type LLMResponse struct {
	Content      string     `json:"content,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        map[string]int `json:"usage,omitempty"`
}

// HasToolCalls reports whether the response requests tool execution.
func (r *LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// InboundMessage is a message received from a chat channel (or injected by a
// scheduler). SessionKey is filled by the route resolver.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Timestamp  time.Time         `json:"timestamp"`
	Media      []string          `json:"media,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	SessionKey string            `json:"session_key,omitempty"`
}

// OutboundMessage is a reply to deliver through a channel. Media, when set,
// is a local path or URL the channel should attach.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	Media   string `json:"media,omitempty"`
}

// Session is an ordered conversation history plus rolling summary, keyed by
// an opaque string derived from the route.
type Session struct {
	Key      string    `json:"key"`
	Messages []Message `json:"messages"`
	Summary  string    `json:"summary,omitempty"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// ToolResult is the uniform outcome of a tool execution. ForLLM goes back
// into the conversation; ForUser, when non-silent, is surfaced directly.
// When IsAsync, the final user-facing output arrives later via callback.
type ToolResult struct {
	ForLLM  string `json:"for_llm"`
	ForUser string `json:"for_user,omitempty"`
	Silent  bool   `json:"silent,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	IsAsync bool   `json:"is_async,omitempty"`
}

// NewToolResult returns a plain result shown to both the model and the user.
func NewToolResult(forLLM, forUser string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, ForUser: forUser}
}

// NewSilentResult returns a result fed to the model but hidden from the user.
func NewSilentResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, Silent: true}
}

// NewErrorResult returns an error result. Never surfaces as a raised error.
func NewErrorResult(msg string) *ToolResult {
	return &ToolResult{ForLLM: msg, IsError: true}
}

// NewAsyncResult returns an acknowledgement for work that completes later.
func NewAsyncResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, IsAsync: true}
}

// RoutePeer identifies the conversation peer for binding matches.
type RoutePeer struct {
	Kind string `json:"kind" yaml:"kind"` // direct, group
	ID   string `json:"id" yaml:"id"`
}

// RouteInput is everything the resolver needs to pick an agent.
type RouteInput struct {
	Channel   string
	AccountID string
	Peer      *RoutePeer
	GuildID   string
	TeamID    string
}

// AgentBinding is one ordered rule selecting an agent from a RouteInput.
type AgentBinding struct {
	AgentID   string     `json:"agent_id" yaml:"agent_id"`
	Channel   string     `json:"channel,omitempty" yaml:"channel,omitempty"`
	AccountID string     `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	GuildID   string     `json:"guild_id,omitempty" yaml:"guild_id,omitempty"`
	TeamID    string     `json:"team_id,omitempty" yaml:"team_id,omitempty"`
	Peer      *RoutePeer `json:"peer,omitempty" yaml:"peer,omitempty"`
}

// ResolvedRoute is the resolver's verdict for one inbound message.
type ResolvedRoute struct {
	AgentID        string
	Channel        string
	AccountID      string
	SessionKey     string
	MainSessionKey string
	MatchedBy      string // peer, guild, team, account, channel, default
}

// FailoverReason classifies a provider failure.
type FailoverReason string

const (
	FailoverAuth       FailoverReason = "auth"
	FailoverRateLimit  FailoverReason = "rate_limit"
	FailoverBilling    FailoverReason = "billing"
	FailoverTimeout    FailoverReason = "timeout"
	FailoverFormat     FailoverReason = "format"
	FailoverOverloaded FailoverReason = "overloaded"
	FailoverUnknown    FailoverReason = "unknown"
)

// FallbackCandidate is a (provider, model) pair eligible to serve a turn.
type FallbackCandidate struct {
	ProviderKey string `json:"provider_key" yaml:"provider_key"`
	Model       string `json:"model" yaml:"model"`
}

// FallbackAttempt records one step of the fallback chain.
type FallbackAttempt struct {
	ProviderKey string         `json:"provider_key"`
	Model       string         `json:"model"`
	Error       string         `json:"error,omitempty"`
	Reason      FailoverReason `json:"reason"`
	DurationMs  int64          `json:"duration_ms"`
	Skipped     bool           `json:"skipped"`
}
