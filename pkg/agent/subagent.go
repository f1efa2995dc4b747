package agent

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
	"github.com/tinyclaw-dev/tinyclaw/pkg/providers"
	"github.com/tinyclaw-dev/tinyclaw/pkg/tools"
)

const subagentMaxIterations = 15

// SubagentManager runs background tasks with a reduced tool set and reports
// the outcome through the spawning turn's async callback.
type SubagentManager struct {
	Chain    *providers.FallbackChain
	Registry *Registry
	Config   *config.Config

	mu       sync.Mutex
	parentID string
	running  map[string]string
}

// NewSubagentManager creates a SubagentManager.
func NewSubagentManager(chain *providers.FallbackChain, registry *Registry, cfg *config.Config) *SubagentManager {
	return &SubagentManager{
		Chain:    chain,
		Registry: registry,
		Config:   cfg,
		running:  make(map[string]string),
	}
}

// SetParent records which agent is spawning. The loop is single-consumer, so
// this is set once per turn before any tool executes.
func (m *SubagentManager) SetParent(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parentID = agentID
}

// Spawn starts a background task and returns an acknowledgement string. The
// requested profile is checked against the parent agent's allowlist.
func (m *SubagentManager) Spawn(task, label, agentID, originChannel, originChatID string, cb tools.AsyncCallback) string {
	m.mu.Lock()
	parentID := m.parentID
	m.mu.Unlock()

	profileID := agentID
	if profileID == "" {
		profileID = parentID
	}
	if agentID != "" && !m.Registry.CanSpawnSubagent(parentID, agentID) {
		return fmt.Sprintf("Spawn refused: agent %q is not allowed as a subagent here.", agentID)
	}

	profile := m.Registry.GetOrDefault(profileID)
	if profile == nil {
		return "Spawn refused: no agents configured."
	}

	if label == "" {
		label = task
		if len(label) > 30 {
			label = label[:30] + "..."
		}
	}

	taskID := uuid.New().String()[:8]
	m.mu.Lock()
	m.running[taskID] = label
	m.mu.Unlock()

	go m.run(taskID, task, label, profile, cb)

	log.Printf("Spawned subagent [%s]: %s", taskID, label)
	return fmt.Sprintf("Subagent [%s] started (id: %s). I'll report back when it completes.", label, taskID)
}

// Running returns the labels of in-flight tasks keyed by id.
func (m *SubagentManager) Running() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.running))
	for id, label := range m.running {
		out[id] = label
	}
	return out
}

func (m *SubagentManager) run(taskID, task, label string, profile *Instance, cb tools.AsyncCallback) {
	defer func() {
		m.mu.Lock()
		delete(m.running, taskID)
		m.mu.Unlock()
	}()

	log.Printf("Subagent [%s] starting: %s", taskID, label)

	reg := m.buildTools(profile)
	messages := []models.Message{
		{Role: "system", Content: m.buildPrompt(task, profile.Workspace)},
		{Role: "user", Content: task},
	}

	candidates := profile.Candidates(m.Config.ModelList)
	opts := profile.ChatOptions()

	var final string
	for iteration := 0; iteration < subagentMaxIterations; iteration++ {
		resp, _, err := m.Chain.Execute(context.Background(), candidates, messages, reg.Definitions(), opts)
		if err != nil {
			log.Printf("Subagent [%s] failed: %v", taskID, err)
			m.report(cb, fmt.Sprintf("Background task '%s' failed: %v", label, err))
			return
		}

		if !resp.HasToolCalls() {
			final = resp.Content
			break
		}

		messages = append(messages, models.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			log.Printf("Subagent [%s] executing %s", taskID, call.Name)
			result := reg.Execute(call.Name, call.Arguments, "", "", nil)
			messages = append(messages, models.Message{
				Role:       "tool",
				Content:    result.ForLLM,
				ToolCallID: call.ID,
			})
		}
	}

	if final == "" {
		final = "Task completed but no final summary was produced."
	}

	log.Printf("Subagent [%s] completed", taskID)
	m.report(cb, fmt.Sprintf("Background task '%s' finished:\n\n%s", label, final))
}

func (m *SubagentManager) report(cb tools.AsyncCallback, text string) {
	if cb == nil {
		log.Printf("Subagent result dropped (no callback): %s", text)
		return
	}
	cb(text)
}

// buildTools gives subagents files, shell, and web, but no message, spawn,
// or cron tools.
func (m *SubagentManager) buildTools(profile *Instance) *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(&tools.ReadFileTool{})
	reg.Register(&tools.WriteFileTool{})
	reg.Register(&tools.AppendFileTool{})
	reg.Register(&tools.EditFileTool{})
	reg.Register(&tools.ListDirTool{})

	execCfg := m.Config.Tools.Exec
	reg.Register(tools.NewExecTool(execCfg.Timeout, profile.Workspace, profile.RestrictToWorkspace || execCfg.RestrictToWorkspace))

	webCfg := m.Config.Tools.Web.Search
	reg.Register(tools.NewWebSearchTool(webCfg.APIKey, webCfg.MaxResults))
	reg.Register(tools.NewWebFetchTool(0))
	return reg
}

func (m *SubagentManager) buildPrompt(task, workspace string) string {
	return fmt.Sprintf(`# Subagent

You are a subagent spawned to complete one specific task.

## Your Task
%s

## Rules
1. Stay focused: complete only the assigned task.
2. Your final response is reported back to the main agent.
3. Do not initiate conversations or take on side tasks.
4. Be concise but informative in your findings.

## What You Can Do
- Read and write files in the workspace
- Execute shell commands
- Search the web and fetch web pages

## What You Cannot Do
- Send messages directly to users
- Spawn other subagents
- Access the main agent's conversation history

## Workspace
Your workspace is at: %s

When the task is done, provide a clear summary of your findings or actions.`, task, workspace)
}
