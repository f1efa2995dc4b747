package providers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// DefaultCooldown is how long a failed candidate stays benched.
const DefaultCooldown = 60 * time.Second

// ExhaustedError is returned when every candidate failed or was skipped.
type ExhaustedError struct {
	Attempts []models.FallbackAttempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Skipped {
			parts = append(parts, fmt.Sprintf("%s/%s skipped (%s)", a.ProviderKey, a.Model, a.Reason))
		} else {
			parts = append(parts, fmt.Sprintf("%s/%s failed (%s): %s", a.ProviderKey, a.Model, a.Reason, a.Error))
		}
	}
	return "all providers exhausted: " + strings.Join(parts, "; ")
}

// FallbackChain sequences attempts across provider/model candidates with
// per-candidate cooldowns and substring error classification.
type FallbackChain struct {
	providers map[string]LLMProvider
	cooldown  time.Duration

	mu        sync.Mutex
	failedAt  map[string]time.Time
	now       func() time.Time
}

// NewFallbackChain creates a chain over the keyed provider map.
func NewFallbackChain(providerMap map[string]LLMProvider, cooldown time.Duration) *FallbackChain {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &FallbackChain{
		providers: providerMap,
		cooldown:  cooldown,
		failedAt:  make(map[string]time.Time),
		now:       time.Now,
	}
}

func candidateKey(c models.FallbackCandidate) string {
	return c.ProviderKey + ":" + c.Model
}

// Execute tries each candidate in order and returns the first success along
// with the attempt trail. Failed candidates enter cooldown; candidates
// already in cooldown or missing from the provider map are skipped.
func (f *FallbackChain) Execute(ctx context.Context, candidates []models.FallbackCandidate, messages []models.Message, tools []models.ToolDefinition, opts *ChatOptions) (*models.LLMResponse, []models.FallbackAttempt, error) {
	var attempts []models.FallbackAttempt

	for _, cand := range candidates {
		provider, ok := f.providers[cand.ProviderKey]
		if !ok {
			attempts = append(attempts, models.FallbackAttempt{
				ProviderKey: cand.ProviderKey,
				Model:       cand.Model,
				Error:       "provider not configured",
				Reason:      models.FailoverUnknown,
				Skipped:     true,
			})
			continue
		}

		if f.inCooldown(cand) {
			attempts = append(attempts, models.FallbackAttempt{
				ProviderKey: cand.ProviderKey,
				Model:       cand.Model,
				Error:       "in cooldown",
				Reason:      models.FailoverRateLimit,
				Skipped:     true,
			})
			continue
		}

		start := f.now()
		resp, err := provider.Chat(ctx, messages, tools, cand.Model, opts)
		duration := f.now().Sub(start).Milliseconds()
		if err == nil {
			attempts = append(attempts, models.FallbackAttempt{
				ProviderKey: cand.ProviderKey,
				Model:       cand.Model,
				DurationMs:  duration,
			})
			return resp, attempts, nil
		}

		reason := ClassifyFailure(err)
		log.Printf("Provider %s/%s failed (%s): %v", cand.ProviderKey, cand.Model, reason, err)
		f.benchCandidate(cand)
		attempts = append(attempts, models.FallbackAttempt{
			ProviderKey: cand.ProviderKey,
			Model:       cand.Model,
			Error:       err.Error(),
			Reason:      reason,
			DurationMs:  duration,
		})
	}

	return nil, attempts, &ExhaustedError{Attempts: attempts}
}

func (f *FallbackChain) inCooldown(c models.FallbackCandidate) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.failedAt[candidateKey(c)]
	return ok && f.now().Sub(at) < f.cooldown
}

func (f *FallbackChain) benchCandidate(c models.FallbackCandidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedAt[candidateKey(c)] = f.now()
}

// BenchForTest puts a candidate in cooldown directly.
func (f *FallbackChain) BenchForTest(c models.FallbackCandidate) {
	f.benchCandidate(c)
}

// ClassifyFailure maps a provider error onto a failover reason by substring
// inspection of the error message.
func ClassifyFailure(err error) models.FailoverReason {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "auth"):
		return models.FailoverAuth
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate"):
		return models.FailoverRateLimit
	case strings.Contains(msg, "402") || strings.Contains(msg, "billing") || strings.Contains(msg, "quota"):
		return models.FailoverBilling
	case strings.Contains(msg, "timeout"):
		return models.FailoverTimeout
	case strings.Contains(msg, "529") || strings.Contains(msg, "503") || strings.Contains(msg, "overloaded"):
		return models.FailoverOverloaded
	default:
		return models.FailoverUnknown
	}
}
