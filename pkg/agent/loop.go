package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/cron"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
	"github.com/tinyclaw-dev/tinyclaw/pkg/providers"
	"github.com/tinyclaw-dev/tinyclaw/pkg/routing"
	"github.com/tinyclaw-dev/tinyclaw/pkg/tools"
)

const truncationNotice = "I stopped before finishing: the tool call limit for this request was reached. Ask me to continue if you want me to keep going."

// AgentLoop consumes inbound messages, routes them to an agent, and runs
// bounded tool-calling turns. There is exactly one consumer per bus.
type AgentLoop struct {
	Bus         *bus.MessageBus
	Config      *config.Config
	Agents      *Registry
	Chain       *providers.FallbackChain
	CronService *cron.Service
	Subagents   *SubagentManager

	onActivity func(channel, chatID string)
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewAgentLoop wires the loop: agents from config, a fallback chain over the
// provider map, and the default tool set on every agent.
func NewAgentLoop(messageBus *bus.MessageBus, cfg *config.Config, providerMap map[string]providers.LLMProvider, cronService *cron.Service) *AgentLoop {
	l := &AgentLoop{
		Bus:         messageBus,
		Config:      cfg,
		Agents:      NewRegistry(cfg),
		Chain:       providers.NewFallbackChain(providerMap, providers.DefaultCooldown),
		CronService: cronService,
		stopChan:    make(chan struct{}),
	}
	l.Subagents = NewSubagentManager(l.Chain, l.Agents, cfg)

	for _, a := range l.Agents.All() {
		l.registerDefaultTools(a)
	}
	return l
}

func (l *AgentLoop) registerDefaultTools(a *Instance) {
	a.Tools.Register(&tools.ReadFileTool{})
	a.Tools.Register(&tools.WriteFileTool{})
	a.Tools.Register(&tools.AppendFileTool{})
	a.Tools.Register(&tools.EditFileTool{})
	a.Tools.Register(&tools.ListDirTool{})

	execCfg := l.Config.Tools.Exec
	a.Tools.Register(tools.NewExecTool(execCfg.Timeout, a.Workspace, a.RestrictToWorkspace || execCfg.RestrictToWorkspace))

	webCfg := l.Config.Tools.Web.Search
	a.Tools.Register(tools.NewWebSearchTool(webCfg.APIKey, webCfg.MaxResults))
	a.Tools.Register(tools.NewWebFetchTool(0))

	a.Tools.Register(tools.NewMessageTool(l.Bus))
	a.Tools.Register(tools.NewSpawnTool(l.Subagents))
	if l.CronService != nil {
		a.Tools.Register(tools.NewCronTool(l.CronService))
	}
}

// Run drains the inbound queue until Stop or bus close.
func (l *AgentLoop) Run() {
	log.Println("Agent loop started")
	for {
		select {
		case <-l.stopChan:
			log.Println("Agent loop stopping")
			return
		default:
		}

		msg, ok := l.Bus.ConsumeInbound()
		if !ok {
			if l.Bus.Closed() {
				log.Println("Agent loop stopping: bus closed")
				return
			}
			continue
		}

		if err := l.handle(msg); err != nil {
			log.Printf("Turn failed for %s:%s: %v", msg.Channel, msg.ChatID, err)
			l.Bus.PublishOutbound(models.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: fmt.Sprintf("Sorry, I ran into a problem: %v", err),
			})
		}
	}
}

// SetActivityObserver registers a callback invoked with the origin of each
// user message the loop handles. Must be set before Run.
func (l *AgentLoop) SetActivityObserver(fn func(channel, chatID string)) {
	l.onActivity = fn
}

// Stop halts the consumer loop.
func (l *AgentLoop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
}

// ProcessDirect performs one synchronous turn for CLI use and returns the
// final reply instead of publishing it.
func (l *AgentLoop) ProcessDirect(content string) (string, error) {
	input := models.RouteInput{Channel: "cli", AccountID: "direct"}
	route := routing.Resolve(input, l.Config.Bindings)
	a := l.Agents.GetOrDefault(route.AgentID)
	if a == nil {
		return "", fmt.Errorf("no agents configured")
	}

	if strings.TrimSpace(content) == "/new" {
		if err := a.Sessions.Clear(route.SessionKey); err != nil {
			log.Printf("Session clear failed: %v", err)
		}
		return "Started a new conversation. Previous history cleared.", nil
	}

	return l.runTurn(a, route.SessionKey, "cli", "direct", content)
}

// ProcessSystem runs one turn against the default agent's main session,
// outside the normal routing path. The heartbeat uses it so periodic prompts
// do not pollute per-chat sessions.
func (l *AgentLoop) ProcessSystem(prompt, channel, chatID string) (string, error) {
	a := l.Agents.Default()
	if a == nil {
		return "", fmt.Errorf("no agents configured")
	}
	return l.runTurn(a, routing.MainSessionKey(a.ID), channel, chatID, prompt)
}

func (l *AgentLoop) handle(msg models.InboundMessage) error {
	route := routing.Resolve(routeInput(msg), l.Config.Bindings)
	a := l.Agents.GetOrDefault(route.AgentID)
	if a == nil {
		return fmt.Errorf("no agents configured")
	}
	log.Printf("Processing message from %s:%s (agent %s, matched by %s)", msg.Channel, msg.SenderID, a.ID, route.MatchedBy)

	// Cron and monitor wakeups are synthetic; they do not move the
	// last-seen destination.
	if l.onActivity != nil && msg.SenderID != "cron" && msg.SenderID != "device-monitor" {
		l.onActivity(msg.Channel, msg.ChatID)
	}

	if strings.TrimSpace(msg.Content) == "/new" {
		if err := a.Sessions.Clear(route.SessionKey); err != nil {
			log.Printf("Session clear failed: %v", err)
		}
		l.Bus.PublishOutbound(models.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: "Started a new conversation. Previous history cleared.",
		})
		return nil
	}

	final, err := l.runTurn(a, route.SessionKey, msg.Channel, msg.ChatID, msg.Content)
	if err != nil {
		return err
	}

	l.Bus.PublishOutbound(models.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: final,
	})
	return nil
}

// runTurn executes one bounded tool-calling turn. At most MaxIterations+1
// provider calls are made; tool calls still pending after the last call are
// replaced by a truncation notice.
func (l *AgentLoop) runTurn(a *Instance, sessionKey, channel, chatID, content string) (string, error) {
	sess := a.Sessions.GetOrCreate(sessionKey)
	history := a.Sessions.GetHistory(sessionKey)
	if limit := l.Config.Session.HistoryLimit; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	a.Sessions.AddMessage(sessionKey, models.Message{Role: "user", Content: content})

	messages := a.Context.BuildMessages(history, sess.Summary, content, channel, chatID, a.Tools.Names())
	candidates := a.Candidates(l.Config.ModelList)
	opts := a.ChatOptions()
	cb := l.asyncCallback(a, sessionKey, channel, chatID)

	l.Subagents.SetParent(a.ID)

	var final string
	for iteration := 0; ; iteration++ {
		resp, _, err := l.Chain.Execute(context.Background(), candidates, messages, a.Tools.Definitions(), opts)
		if err != nil {
			l.saveSession(a, sessionKey)
			return "", err
		}

		if !resp.HasToolCalls() {
			final = resp.Content
			break
		}
		if iteration >= a.MaxIterations {
			final = truncationNotice
			break
		}

		assistant := models.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistant)
		a.Sessions.AddMessage(sessionKey, assistant)

		for _, call := range resp.ToolCalls {
			log.Printf("Executing tool %s", call.Name)
			result := a.Tools.Execute(call.Name, call.Arguments, channel, chatID, cb)

			toolMsg := models.Message{Role: "tool", Content: result.ForLLM, ToolCallID: call.ID}
			messages = append(messages, toolMsg)
			a.Sessions.AddMessage(sessionKey, toolMsg)

			if !result.Silent && result.ForUser != "" {
				l.Bus.PublishOutbound(models.OutboundMessage{
					Channel: channel,
					ChatID:  chatID,
					Content: result.ForUser,
				})
			}
		}
	}

	if final == "" {
		final = "I've finished, but have nothing further to report."
	}

	a.Sessions.AddMessage(sessionKey, models.Message{Role: "assistant", Content: final})
	if limit := l.Config.Session.HistoryLimit; limit > 0 {
		a.Sessions.TruncateHistory(sessionKey, limit)
	}
	l.saveSession(a, sessionKey)
	return final, nil
}

// asyncCallback delivers a deferred tool result: append to the originating
// session and emit an outbound message.
func (l *AgentLoop) asyncCallback(a *Instance, sessionKey, channel, chatID string) tools.AsyncCallback {
	return func(result string) {
		a.Sessions.AddMessage(sessionKey, models.Message{Role: "assistant", Content: result})
		l.saveSession(a, sessionKey)
		l.Bus.PublishOutbound(models.OutboundMessage{
			Channel: channel,
			ChatID:  chatID,
			Content: result,
		})
	}
}

func (l *AgentLoop) saveSession(a *Instance, key string) {
	if err := a.Sessions.Save(key); err != nil {
		log.Printf("Session save failed for %s: %v", key, err)
	}
}

func routeInput(msg models.InboundMessage) models.RouteInput {
	input := models.RouteInput{
		Channel:   msg.Channel,
		AccountID: msg.ChatID,
	}
	if msg.Metadata != nil {
		input.GuildID = msg.Metadata["guild_id"]
		input.TeamID = msg.Metadata["team_id"]
		if kind := msg.Metadata["peer_kind"]; kind != "" {
			input.Peer = &models.RoutePeer{Kind: kind, ID: msg.Metadata["peer_id"]}
		}
	}
	return input
}
