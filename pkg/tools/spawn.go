package tools

import (
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// SubagentRunner starts a background task and returns an acknowledgement.
// agentID selects the subagent profile; empty means the current agent.
type SubagentRunner interface {
	Spawn(task, label, agentID, originChannel, originChatID string, cb AsyncCallback) string
}

// SpawnTool delegates a task to a background subagent. The result arrives
// later through the async callback.
type SpawnTool struct {
	Runner        SubagentRunner
	OriginChannel string
	OriginChatID  string
	callback      AsyncCallback
}

// NewSpawnTool creates a SpawnTool.
func NewSpawnTool(runner SubagentRunner) *SpawnTool {
	return &SpawnTool{
		Runner:        runner,
		OriginChannel: "cli",
		OriginChatID:  "direct",
	}
}

// SetContext sets the origin context for subagent announcements.
func (t *SpawnTool) SetContext(channel, chatID string) {
	t.OriginChannel = channel
	t.OriginChatID = chatID
}

// SetCallback attaches the callback that receives the subagent's report.
func (t *SpawnTool) SetCallback(cb AsyncCallback) {
	t.callback = cb
}

func (t *SpawnTool) Name() string {
	return "spawn"
}

func (t *SpawnTool) Description() string {
	return "Spawn a subagent to handle a task in the background. Use this for complex or time-consuming tasks that can run independently. The subagent will complete the task and report back when done."
}

func (t *SpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "The task for the subagent to complete",
			},
			"label": map[string]interface{}{
				"type":        "string",
				"description": "Optional short label for the task (for display)",
			},
			"agent": map[string]interface{}{
				"type":        "string",
				"description": "Optional agent profile to run the task as",
			},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	task, ok := args["task"].(string)
	if !ok || task == "" {
		return models.NewErrorResult("task must be a non-empty string"), nil
	}
	label, _ := args["label"].(string)
	agentID, _ := args["agent"].(string)

	if t.Runner == nil {
		return models.NewErrorResult("subagents not available"), nil
	}

	ack := t.Runner.Spawn(task, label, agentID, t.OriginChannel, t.OriginChatID, t.callback)
	return models.NewAsyncResult(ack), nil
}
