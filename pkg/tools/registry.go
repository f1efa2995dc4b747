package tools

import (
	"fmt"
	"log"
	"sort"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// Tool is an agent tool. Parameters returns a JSON-schema fragment.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(args map[string]interface{}) (*models.ToolResult, error)
}

// ContextualTool receives the originating (channel, chat) before each call.
// Contextual tools are per-turn stateful and must be re-injected every turn.
type ContextualTool interface {
	Tool
	SetContext(channel, chatID string)
}

// AsyncCallback delivers a deferred tool result back into the turn's session.
type AsyncCallback func(result string)

// AsyncTool produces its final result later through the attached callback.
type AsyncTool interface {
	Tool
	SetCallback(cb AsyncCallback)
}

// Registry manages the available tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the provider-facing tool definitions, sorted by name.
func (r *Registry) Definitions() []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for _, name := range r.Names() {
		tool := r.tools[name]
		defs = append(defs, models.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// Execute runs a tool by name. Unknown names, panics, and returned errors
// all become error results; this boundary never raises.
func (r *Registry) Execute(name string, args map[string]interface{}, channel, chatID string, cb AsyncCallback) (result *models.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Tool %s panicked: %v", name, rec)
			result = models.NewErrorResult(fmt.Sprintf("Tool %s crashed: %v", name, rec))
		}
	}()

	tool, ok := r.tools[name]
	if !ok {
		return models.NewErrorResult(fmt.Sprintf("Unknown tool: %s", name))
	}

	if ct, ok := tool.(ContextualTool); ok {
		ct.SetContext(channel, chatID)
	}
	if at, ok := tool.(AsyncTool); ok {
		at.SetCallback(cb)
	}

	res, err := tool.Execute(args)
	if err != nil {
		return models.NewErrorResult(fmt.Sprintf("Tool %s failed: %v", name, err))
	}
	if res == nil {
		return models.NewSilentResult("")
	}
	return res
}
