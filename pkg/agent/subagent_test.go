package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
	"github.com/tinyclaw-dev/tinyclaw/pkg/providers"
)

func newTestSubagents(t *testing.T, cfg *config.Config, provider providers.LLMProvider) *SubagentManager {
	t.Helper()
	chain := providers.NewFallbackChain(map[string]providers.LLMProvider{"fake": provider}, providers.DefaultCooldown)
	return NewSubagentManager(chain, NewRegistry(cfg), cfg)
}

func TestSpawnAcknowledges(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{{Content: "done"}}}
	m := newTestSubagents(t, testConfig(t, 20), provider)
	m.SetParent("default")

	done := make(chan string, 1)
	ack := m.Spawn("summarize the report", "report-summary", "", "cli", "direct", func(text string) {
		done <- text
	})
	assert.Contains(t, ack, "Subagent [report-summary] started")

	select {
	case report := <-done:
		assert.Contains(t, report, "Background task 'report-summary' finished:")
		assert.Contains(t, report, "done")
	case <-time.After(5 * time.Second):
		t.Fatal("subagent never reported back")
	}
	assert.Empty(t, m.Running())
}

func TestSpawnDefaultsLabelFromTask(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{{Content: "ok"}}}
	m := newTestSubagents(t, testConfig(t, 20), provider)
	m.SetParent("default")

	task := strings.Repeat("x", 40)
	done := make(chan string, 1)
	ack := m.Spawn(task, "", "", "cli", "direct", func(text string) { done <- text })
	assert.Contains(t, ack, "["+strings.Repeat("x", 30)+"...]")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subagent never reported back")
	}
}

func TestSpawnRefusedByAllowlist(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{{Content: "ok"}}}
	cfg := testConfig(t, 20)
	cfg.Agents.List = []config.AgentEntry{
		{ID: "default", Subagents: []string{"researcher"}},
		{ID: "researcher"},
		{ID: "forbidden"},
	}
	m := newTestSubagents(t, cfg, provider)
	m.SetParent("default")

	ack := m.Spawn("do it", "", "forbidden", "cli", "direct", nil)
	assert.Equal(t, `Spawn refused: agent "forbidden" is not allowed as a subagent here.`, ack)
	assert.Empty(t, m.Running())
}

func TestSpawnAllowsListedProfile(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{{Content: "findings"}}}
	cfg := testConfig(t, 20)
	cfg.Agents.List = []config.AgentEntry{
		{ID: "default", Subagents: []string{"researcher"}},
		{ID: "researcher"},
	}
	m := newTestSubagents(t, cfg, provider)
	m.SetParent("default")

	done := make(chan string, 1)
	ack := m.Spawn("look it up", "lookup", "researcher", "cli", "direct", func(text string) { done <- text })
	assert.Contains(t, ack, "started")

	select {
	case report := <-done:
		assert.Contains(t, report, "findings")
	case <-time.After(5 * time.Second):
		t.Fatal("subagent never reported back")
	}
}

func TestSubagentReportsProviderFailure(t *testing.T) {
	provider := &scriptedProvider{err: assert.AnError}
	m := newTestSubagents(t, testConfig(t, 20), provider)
	m.SetParent("default")

	done := make(chan string, 1)
	m.Spawn("doomed task", "doomed", "", "cli", "direct", func(text string) { done <- text })

	select {
	case report := <-done:
		assert.Contains(t, report, "Background task 'doomed' failed:")
	case <-time.After(5 * time.Second):
		t.Fatal("subagent never reported back")
	}
}
