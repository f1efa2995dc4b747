package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

type stubTool struct {
	name    string
	result  *models.ToolResult
	err     error
	panics  bool
	channel string
	chatID  string
	cb      AsyncCallback
}

func (t *stubTool) Name() string                       { return t.name }
func (t *stubTool) Description() string                { return "stub" }
func (t *stubTool) Parameters() map[string]interface{} { return map[string]interface{}{} }

func (t *stubTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	if t.panics {
		panic("boom")
	}
	return t.result, t.err
}

func (t *stubTool) SetContext(channel, chatID string) {
	t.channel = channel
	t.chatID = chatID
}

func (t *stubTool) SetCallback(cb AsyncCallback) {
	t.cb = cb
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	result := r.Execute("nope", nil, "", "", nil)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, result.ForLLM, "Unknown tool")
}

func TestExecuteInjectsContextAndCallback(t *testing.T) {
	stub := &stubTool{name: "stub", result: models.NewToolResult("ok", "")}
	r := NewRegistry()
	r.Register(stub)

	var delivered string
	cb := func(result string) { delivered = result }

	result := r.Execute("stub", nil, "telegram", "42", cb)
	assert.Equal(t, "ok", result.ForLLM)
	assert.Equal(t, "telegram", stub.channel)
	assert.Equal(t, "42", stub.chatID)

	require.NotNil(t, stub.cb)
	stub.cb("later")
	assert.Equal(t, "later", delivered)
}

func TestExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "crash", panics: true})

	result := r.Execute("crash", nil, "", "", nil)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, result.ForLLM, "crashed")
}

func TestExecuteWrapsReturnedError(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "fail", err: errors.New("disk full")})

	result := r.Execute("fail", nil, "", "", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, result.ForLLM, "disk full")
}

func TestNamesAndDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "zeta"})
	r.Register(&stubTool{name: "alpha"})
	r.Register(&stubTool{name: "mid"})

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "zeta", defs[2].Name)
}

func TestEchoTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&EchoTool{})

	result := r.Execute("echo", map[string]interface{}{"text": "said hi"}, "", "", nil)
	assert.Equal(t, "said hi", result.ForLLM)
	assert.False(t, result.IsError)
}
