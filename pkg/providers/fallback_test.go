package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

type fakeProvider struct {
	err   error
	reply string
	calls int
}

func (p *fakeProvider) Chat(ctx context.Context, messages []models.Message, tools []models.ToolDefinition, model string, opts *ChatOptions) (*models.LLMResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &models.LLMResponse{Content: p.reply}, nil
}

func (p *fakeProvider) DefaultModel() string { return "fake-model" }

func TestExecuteFallbackCascade(t *testing.T) {
	providerA := &fakeProvider{err: errors.New("429 rate limit exceeded")}
	providerB := &fakeProvider{reply: "unreachable"}
	providerC := &fakeProvider{reply: "from C"}

	chain := NewFallbackChain(map[string]LLMProvider{
		"a": providerA,
		"b": providerB,
		"c": providerC,
	}, DefaultCooldown)

	candidates := []models.FallbackCandidate{
		{ProviderKey: "a", Model: "model-a"},
		{ProviderKey: "b", Model: "model-b"},
		{ProviderKey: "c", Model: "model-c"},
	}
	chain.BenchForTest(candidates[1])

	resp, attempts, err := chain.Execute(context.Background(), candidates, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "from C", resp.Content)

	require.Len(t, attempts, 3)

	assert.Equal(t, "a", attempts[0].ProviderKey)
	assert.False(t, attempts[0].Skipped)
	assert.Equal(t, models.FailoverRateLimit, attempts[0].Reason)

	assert.Equal(t, "b", attempts[1].ProviderKey)
	assert.True(t, attempts[1].Skipped)
	assert.Zero(t, providerB.calls)

	assert.Equal(t, "c", attempts[2].ProviderKey)
	assert.Empty(t, attempts[2].Error)
	assert.Equal(t, 1, providerC.calls)
}

func TestExecuteBenchesFailedCandidate(t *testing.T) {
	failing := &fakeProvider{err: errors.New("503 overloaded")}
	healthy := &fakeProvider{reply: "ok"}

	chain := NewFallbackChain(map[string]LLMProvider{"bad": failing, "good": healthy}, DefaultCooldown)
	candidates := []models.FallbackCandidate{
		{ProviderKey: "bad", Model: "m"},
		{ProviderKey: "good", Model: "m"},
	}

	_, _, err := chain.Execute(context.Background(), candidates, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, failing.calls)

	// Second turn: the failed candidate is still in cooldown and skipped.
	_, attempts, err := chain.Execute(context.Background(), candidates, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.True(t, attempts[0].Skipped)
}

func TestExecuteExhausted(t *testing.T) {
	failing := &fakeProvider{err: errors.New("timeout talking upstream")}
	chain := NewFallbackChain(map[string]LLMProvider{"only": failing}, DefaultCooldown)

	_, attempts, err := chain.Execute(context.Background(), []models.FallbackCandidate{
		{ProviderKey: "only", Model: "m"},
		{ProviderKey: "missing", Model: "m"},
	}, nil, nil, nil)

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 2)
	assert.Len(t, attempts, 2)
	assert.True(t, attempts[1].Skipped)
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		msg  string
		want models.FailoverReason
	}{
		{"401 unauthorized", models.FailoverAuth},
		{"invalid auth header", models.FailoverAuth},
		{"429 too many requests", models.FailoverRateLimit},
		{"rate limited", models.FailoverRateLimit},
		{"402 payment required", models.FailoverBilling},
		{"quota exceeded", models.FailoverBilling},
		{"context deadline: timeout", models.FailoverTimeout},
		{"529 overloaded", models.FailoverOverloaded},
		{"something odd", models.FailoverUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyFailure(errors.New(tc.msg)), tc.msg)
	}
}
