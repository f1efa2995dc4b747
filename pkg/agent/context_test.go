package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

func writeWorkspaceFile(t *testing.T, workspace, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, name), []byte(content), 0644))
}

func TestBuildSystemPromptBootstrapOrder(t *testing.T) {
	workspace := t.TempDir()
	writeWorkspaceFile(t, workspace, "USER.md", "user facts")
	writeWorkspaceFile(t, workspace, "IDENTITY.md", "identity text")
	writeWorkspaceFile(t, workspace, "SOUL.md", "soul text")

	c := NewContextBuilder(workspace)
	prompt := c.BuildSystemPrompt(nil)

	identityIdx := assertContainsAt(t, prompt, "identity text")
	soulIdx := assertContainsAt(t, prompt, "soul text")
	userIdx := assertContainsAt(t, prompt, "user facts")
	assert.Less(t, identityIdx, soulIdx)
	assert.Less(t, soulIdx, userIdx)

	// AGENT.md is absent and must not leave a header behind.
	assert.NotContains(t, prompt, "## AGENT.md")
}

func assertContainsAt(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := strings.Index(haystack, needle)
	require.GreaterOrEqual(t, idx, 0, "missing %q", needle)
	return idx
}

func TestBuildSystemPromptSkipsEmptyBootstrap(t *testing.T) {
	workspace := t.TempDir()
	writeWorkspaceFile(t, workspace, "SOUL.md", "   \n\t\n")

	c := NewContextBuilder(workspace)
	prompt := c.BuildSystemPrompt(nil)
	assert.NotContains(t, prompt, "## SOUL.md")
}

func TestBuildSystemPromptListsTools(t *testing.T) {
	c := NewContextBuilder(t.TempDir())
	prompt := c.BuildSystemPrompt([]string{"echo", "read_file"})
	assert.Contains(t, prompt, "# Available Tools")
	assert.Contains(t, prompt, "echo, read_file")
}

func TestBuildMessagesShape(t *testing.T) {
	c := NewContextBuilder(t.TempDir())

	history := []models.Message{
		{Role: "user", Content: "earlier"},
		{Role: "assistant", Content: "noted"},
	}
	messages := c.BuildMessages(history, "we talked about plans", "what now?", "telegram", "42", nil)

	require.Len(t, messages, 5)
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[0].Content, "Channel: telegram")

	assert.Equal(t, "system", messages[1].Role)
	assert.Contains(t, messages[1].Content, "Summary of earlier conversation:")
	assert.Contains(t, messages[1].Content, "we talked about plans")

	assert.Equal(t, "earlier", messages[2].Content)
	assert.Equal(t, "noted", messages[3].Content)

	assert.Equal(t, "user", messages[4].Role)
	assert.Equal(t, "what now?", messages[4].Content)
}

func TestBuildMessagesWithoutSummary(t *testing.T) {
	c := NewContextBuilder(t.TempDir())
	messages := c.BuildMessages(nil, "", "hi", "", "", nil)

	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.NotContains(t, messages[0].Content, "Current Session")
	assert.Equal(t, "user", messages[1].Role)
}
