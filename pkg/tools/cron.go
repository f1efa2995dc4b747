package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/cron"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// CronTool schedules reminders and recurring tasks for the current chat.
type CronTool struct {
	Service *cron.Service
	Channel string
	ChatID  string
}

// NewCronTool creates a CronTool.
func NewCronTool(service *cron.Service) *CronTool {
	return &CronTool{Service: service}
}

// SetContext sets the current session context.
func (t *CronTool) SetContext(channel, chatID string) {
	t.Channel = channel
	t.ChatID = chatID
}

func (t *CronTool) Name() string {
	return "cron"
}

func (t *CronTool) Description() string {
	return "Schedule reminders and recurring tasks. Actions: add, list, remove, enable, disable."
}

func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"add", "list", "remove", "enable", "disable"},
				"description": "Action to perform",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Reminder message (for add)",
			},
			"every_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Interval in seconds (for recurring tasks)",
			},
			"run_in_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Run once after N seconds (for one-time tasks)",
			},
			"cron_expr": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression like '0 9 * * *' (for scheduled tasks)",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job ID (for remove/enable/disable; prefix accepted)",
			},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	action, ok := args["action"].(string)
	if !ok {
		return models.NewErrorResult("action must be a string"), nil
	}

	message, _ := args["message"].(string)
	everySeconds, _ := args["every_seconds"].(float64)
	runInSeconds, _ := args["run_in_seconds"].(float64)
	cronExpr, _ := args["cron_expr"].(string)
	jobID, _ := args["job_id"].(string)

	switch action {
	case "add":
		return t.addJob(message, int(everySeconds), int(runInSeconds), cronExpr), nil
	case "list":
		return t.listJobs(), nil
	case "remove":
		return t.removeJob(jobID), nil
	case "enable":
		return t.setEnabled(jobID, true), nil
	case "disable":
		return t.setEnabled(jobID, false), nil
	default:
		return models.NewErrorResult(fmt.Sprintf("Unknown action: %s", action)), nil
	}
}

func (t *CronTool) addJob(message string, everySeconds, runInSeconds int, cronExpr string) *models.ToolResult {
	if message == "" {
		return models.NewErrorResult("message is required for add")
	}
	if t.Channel == "" || t.ChatID == "" {
		return models.NewErrorResult("no session context (channel/chat_id)")
	}

	var schedule cron.Schedule
	deleteAfterRun := false
	switch {
	case runInSeconds > 0:
		schedule = cron.Schedule{
			Kind: "at",
			AtMs: time.Now().UnixMilli() + int64(runInSeconds)*1000,
		}
		deleteAfterRun = true
	case everySeconds > 0:
		schedule = cron.Schedule{Kind: "every", EveryMs: int64(everySeconds) * 1000}
	case cronExpr != "":
		schedule = cron.Schedule{Kind: "cron", Expr: cronExpr}
	default:
		return models.NewErrorResult("either every_seconds, run_in_seconds, or cron_expr is required")
	}

	name := message
	if len(name) > 30 {
		name = name[:30]
	}

	job := t.Service.AddJob(name, schedule, message, true, t.Channel, t.ChatID, deleteAfterRun)
	return models.NewToolResult(fmt.Sprintf("Created job '%s' (id: %s)", job.Name, job.ID), "")
}

func (t *CronTool) listJobs() *models.ToolResult {
	jobs := t.Service.ListJobs()
	if len(jobs) == 0 {
		return models.NewToolResult("No scheduled jobs.", "")
	}

	var sb strings.Builder
	sb.WriteString("Scheduled jobs:\n")
	for _, j := range jobs {
		state := "enabled"
		if !j.Enabled {
			state = "disabled"
		}
		sb.WriteString(fmt.Sprintf("- %s (id: %s, %s, %s)\n", j.Name, j.ID, j.Schedule.Kind, state))
	}
	return models.NewToolResult(sb.String(), "")
}

func (t *CronTool) removeJob(jobID string) *models.ToolResult {
	if jobID == "" {
		return models.NewErrorResult("job_id is required for remove")
	}
	if t.Service.RemoveJob(jobID) {
		return models.NewToolResult(fmt.Sprintf("Removed job %s", jobID), "")
	}
	return models.NewErrorResult(fmt.Sprintf("Job %s not found", jobID))
}

func (t *CronTool) setEnabled(jobID string, enabled bool) *models.ToolResult {
	if jobID == "" {
		return models.NewErrorResult("job_id is required")
	}
	if t.Service.EnableJob(jobID, enabled) {
		verb := "Enabled"
		if !enabled {
			verb = "Disabled"
		}
		return models.NewToolResult(fmt.Sprintf("%s job %s", verb, jobID), "")
	}
	return models.NewErrorResult(fmt.Sprintf("Job %s not found (or ambiguous prefix)", jobID))
}
