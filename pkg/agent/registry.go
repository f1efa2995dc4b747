package agent

import (
	"sort"

	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/routing"
)

// Registry holds every configured agent instance.
type Registry struct {
	agents map[string]*Instance
	order  []string
}

// NewRegistry constructs all agents from the config.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{agents: make(map[string]*Instance)}
	for _, entry := range cfg.AgentEntries() {
		if _, exists := r.agents[entry.ID]; exists {
			continue
		}
		r.agents[entry.ID] = NewInstance(entry)
		r.order = append(r.order, entry.ID)
	}
	return r
}

// Get returns the named agent.
func (r *Registry) Get(id string) (*Instance, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// Default returns the default agent: the one named "default" when present,
// otherwise the first configured agent.
func (r *Registry) Default() *Instance {
	if a, ok := r.agents[routing.DefaultAgentID]; ok {
		return a
	}
	if len(r.order) > 0 {
		return r.agents[r.order[0]]
	}
	return nil
}

// GetOrDefault returns the named agent, falling back to the default when the
// id is unknown.
func (r *Registry) GetOrDefault(id string) *Instance {
	if a, ok := r.agents[id]; ok {
		return a
	}
	return r.Default()
}

// IDs returns all agent ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CanSpawnSubagent reports whether parent may spawn child. Unknown parents
// fall back to the default agent's policy.
func (r *Registry) CanSpawnSubagent(parentID, childID string) bool {
	parent := r.GetOrDefault(parentID)
	if parent == nil {
		return false
	}
	return parent.CanSpawnSubagent(childID)
}

// All iterates every agent in configuration order.
func (r *Registry) All() []*Instance {
	out := make([]*Instance, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}
