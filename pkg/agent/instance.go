package agent

import (
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
	"github.com/tinyclaw-dev/tinyclaw/pkg/providers"
	"github.com/tinyclaw-dev/tinyclaw/pkg/session"
	"github.com/tinyclaw-dev/tinyclaw/pkg/tools"
)

// Instance is one configured agent: its workspace, model list, tool set,
// session store, and subagent policy. Constructed once at startup and
// immutable afterwards except for session state.
type Instance struct {
	ID                  string
	Name                string
	Workspace           string
	Model               string
	Fallbacks           []string
	MaxTokens           int
	Temperature         float64
	MaxIterations       int
	RestrictToWorkspace bool
	SubagentAllowlist   []string

	Tools    *tools.Registry
	Sessions *session.Manager
	Context  *ContextBuilder
}

// NewInstance builds an agent from its (defaults-applied) config entry.
func NewInstance(entry config.AgentEntry) *Instance {
	maxIterations := entry.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}
	return &Instance{
		ID:                  entry.ID,
		Name:                entry.Name,
		Workspace:           entry.Workspace,
		Model:               entry.Model,
		Fallbacks:           entry.Fallbacks,
		MaxTokens:           entry.MaxTokens,
		Temperature:         entry.Temperature,
		MaxIterations:       maxIterations,
		RestrictToWorkspace: entry.RestrictToWorkspace,
		SubagentAllowlist:   entry.Subagents,
		Tools:               tools.NewRegistry(),
		Sessions:            session.NewManager(entry.Workspace),
		Context:             NewContextBuilder(entry.Workspace),
	}
}

// Candidates resolves the agent's primary model plus fallbacks into the
// ordered (provider, model) list the fallback chain consumes. Bare fallback
// names inherit the primary model's provider.
func (a *Instance) Candidates(routes []config.ModelRoute) []models.FallbackCandidate {
	defaultProvider := ""
	if primary, err := providers.ResolveCandidate(a.Model, "", routes); err == nil {
		defaultProvider = primary.ProviderKey
	}
	return providers.ResolveCandidates(a.Model, a.Fallbacks, defaultProvider, routes)
}

// ChatOptions returns the per-call provider options for this agent.
func (a *Instance) ChatOptions() *providers.ChatOptions {
	return &providers.ChatOptions{
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
	}
}

// CanSpawnSubagent reports whether this agent may spawn the named agent.
// An empty allowlist is unrestricted.
func (a *Instance) CanSpawnSubagent(agentID string) bool {
	if len(a.SubagentAllowlist) == 0 {
		return true
	}
	for _, id := range a.SubagentAllowlist {
		if id == agentID {
			return true
		}
	}
	return false
}
