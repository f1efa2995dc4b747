package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/memory"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
	"github.com/tinyclaw-dev/tinyclaw/pkg/skills"
)

// BootstrapFiles are concatenated into the system prompt in this order.
var BootstrapFiles = []string{"IDENTITY.md", "SOUL.md", "AGENT.md", "USER.md"}

// ContextBuilder assembles the system prompt and turn message list for an
// agent workspace. Deterministic for a given workspace and history.
type ContextBuilder struct {
	Workspace string
	Memory    *memory.Store
	Skills    *skills.Loader
}

// NewContextBuilder creates a ContextBuilder rooted at the workspace.
func NewContextBuilder(workspace string) *ContextBuilder {
	return &ContextBuilder{
		Workspace: workspace,
		Memory:    memory.NewStore(workspace),
		Skills:    skills.NewLoader(workspace),
	}
}

// BuildSystemPrompt concatenates identity, bootstrap files, skills, the
// available tool names, and memory context.
func (c *ContextBuilder) BuildSystemPrompt(toolNames []string) string {
	parts := []string{c.identity()}

	if bootstrap := c.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}

	if always := c.Skills.AlwaysSkills(); len(always) > 0 {
		if content := c.Skills.LoadSkillsForContext(always); content != "" {
			parts = append(parts, "# Active Skills\n\n"+content)
		}
	}
	if summary := c.Skills.BuildSkillsSummary(); summary != "" {
		parts = append(parts, fmt.Sprintf(`# Skills

The following skills extend your capabilities. They are NOT native tools: to
use one, first read its instruction file with 'read_file', then follow the
instructions it contains (usually via 'exec' or 'web_search').

%s`, summary))
	}

	if len(toolNames) > 0 {
		parts = append(parts, "# Available Tools\n\n"+strings.Join(toolNames, ", "))
	}

	if mem := c.Memory.Context(); mem != "" {
		parts = append(parts, "# Memory\n\n"+mem)
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (c *ContextBuilder) identity() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	absWorkspace, _ := filepath.Abs(c.Workspace)
	sysInfo := fmt.Sprintf("%s %s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())

	return fmt.Sprintf(`# tinyclaw

You are tinyclaw, a helpful assistant reachable over chat channels. You can
read, write, and edit files, execute shell commands, search the web and fetch
pages, send messages to chat channels, schedule reminders, and spawn
subagents for background tasks.

## Current Time
%s

## Runtime
%s

## Workspace
Your workspace is at: %s
- Long-term memory: %s/memory/MEMORY.md
- Daily notes: %s/memory/YYYYMM/YYYYMMDD.md
- Custom skills: %s/skills/{skill-name}/SKILL.md

When responding to direct questions, reply with plain text. Only use the
'message' tool to reach a different chat than the one you are replying in.
Do not write files unless the user asks for it.

## Memory Management
When the user shares important personal information or asks you to remember
something, save it to %s/memory/MEMORY.md with the 'append_file' tool before
confirming. Saying "I'll remember" without writing the file loses the fact.

## Conversation Handling
In group chats, messages may be prefixed with '[Name]:' identifying the
sender. Address users by that name and associate remembered facts with it.`,
		now, sysInfo, absWorkspace, absWorkspace, absWorkspace, absWorkspace, absWorkspace)
}

func (c *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, filename := range BootstrapFiles {
		data, err := os.ReadFile(filepath.Join(c.Workspace, filename))
		if err != nil || len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", filename, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages assembles the provider message list for one turn: system
// prompt, the session summary as a second system message when present, the
// prior history, and the current user message.
func (c *ContextBuilder) BuildMessages(history []models.Message, summary, content, channel, chatID string, toolNames []string) []models.Message {
	systemPrompt := c.BuildSystemPrompt(toolNames)
	if channel != "" && chatID != "" {
		systemPrompt += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	messages := []models.Message{{Role: "system", Content: systemPrompt}}
	if summary != "" {
		messages = append(messages, models.Message{
			Role:    "system",
			Content: "Summary of earlier conversation:\n" + summary,
		})
	}
	messages = append(messages, history...)
	messages = append(messages, models.Message{Role: "user", Content: content})
	return messages
}
