package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// ExecTool executes shell commands with a timeout and a safety guard.
type ExecTool struct {
	Timeout             int
	WorkingDir          string
	RestrictToWorkspace bool
	DenyPatterns        []string
}

// NewExecTool creates an ExecTool; timeout is in seconds.
func NewExecTool(timeout int, workingDir string, restrict bool) *ExecTool {
	if timeout <= 0 {
		timeout = 120
	}
	return &ExecTool{
		Timeout:             timeout,
		WorkingDir:          workingDir,
		RestrictToWorkspace: restrict,
		DenyPatterns: []string{
			`\brm\s+-[rf]{1,2}\b`,
			`\bdel\s+/[fq]\b`,
			`\brmdir\s+/s\b`,
			`\b(mkfs|diskpart)\b`,
			`\bdd\s+if=`,
			`>\s*/dev/sd`,
			`\b(shutdown|reboot|poweroff)\b`,
			`:\(\)\s*\{.*\};\s*:`,
		},
	}
}

func (t *ExecTool) Name() string {
	return "exec"
}

func (t *ExecTool) Description() string {
	return "Execute a shell command and return its output. Use with caution."
}

func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_dir": map[string]interface{}{
				"type":        "string",
				"description": "Optional working directory for the command",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	command, ok := args["command"].(string)
	if !ok {
		return models.NewErrorResult("command must be a string"), nil
	}

	workingDir := t.WorkingDir
	if wd, ok := args["working_dir"].(string); ok && wd != "" {
		workingDir = wd
	}
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}

	if msg := t.guardCommand(command); msg != "" {
		return models.NewErrorResult(msg), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(t.Timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = workingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var result strings.Builder
	if stdout.Len() > 0 {
		result.WriteString(stdout.String())
	}
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\nSTDERR:\n")
		}
		result.WriteString(stderr.String())
	}

	if ctx.Err() == context.DeadlineExceeded {
		return models.NewErrorResult(fmt.Sprintf("Command timed out after %d seconds", t.Timeout)), nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.WriteString(fmt.Sprintf("\nExit code: %d", exitErr.ExitCode()))
		} else {
			return models.NewErrorResult(fmt.Sprintf("Command failed: %v", err)), nil
		}
	}

	out := result.String()
	if out == "" {
		out = "(no output)"
	}

	maxLen := 10000
	if len(out) > maxLen {
		out = out[:maxLen] + fmt.Sprintf("\n... (truncated, %d more chars)", len(out)-maxLen)
	}

	return models.NewToolResult(out, ""), nil
}

func (t *ExecTool) guardCommand(command string) string {
	lower := strings.ToLower(strings.TrimSpace(command))

	for _, pattern := range t.DenyPatterns {
		if matched, _ := regexp.MatchString(pattern, lower); matched {
			return "Command blocked by safety guard (dangerous pattern detected)"
		}
	}

	if t.RestrictToWorkspace {
		if strings.Contains(command, "../") || strings.Contains(command, "..\\") {
			return "Command blocked by safety guard (path traversal detected)"
		}
	}

	return ""
}
