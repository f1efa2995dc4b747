package providers

import (
	"fmt"
	"os"
	"strings"

	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// BuildProviders constructs the keyed provider map from configuration.
// Every provider with an API key (config or environment) is included;
// unconfigured keys are simply absent and the fallback chain skips them.
func BuildProviders(cfg *config.Config) map[string]LLMProvider {
	defaultModel := cfg.Agents.Defaults.Model

	checkEnv := func(cfgVal, envKey string) string {
		if cfgVal != "" {
			return cfgVal
		}
		return os.Getenv(envKey)
	}

	out := make(map[string]LLMProvider)

	if key := checkEnv(cfg.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY"); key != "" {
		out["anthropic"] = NewAnthropicProvider(key, cfg.Providers.Anthropic.APIBase, defaultModel)
	}
	if key := checkEnv(cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY"); key != "" {
		out["openai"] = NewOpenAIProvider(key, cfg.Providers.OpenAI.APIBase, defaultModel)
	}
	if key := checkEnv(cfg.Providers.OpenRouter.APIKey, "OPENROUTER_API_KEY"); key != "" {
		base := cfg.Providers.OpenRouter.APIBase
		if base == "" {
			base = "https://openrouter.ai/api/v1"
		}
		out["openrouter"] = NewOpenAIProvider(key, base, defaultModel)
	}
	if key := checkEnv(cfg.Providers.DeepSeek.APIKey, "DEEPSEEK_API_KEY"); key != "" {
		base := cfg.Providers.DeepSeek.APIBase
		if base == "" {
			base = "https://api.deepseek.com"
		}
		out["deepseek"] = NewOpenAIProvider(key, base, defaultModel)
	}
	if key := checkEnv(cfg.Providers.Groq.APIKey, "GROQ_API_KEY"); key != "" {
		base := cfg.Providers.Groq.APIBase
		if base == "" {
			base = "https://api.groq.com/openai/v1"
		}
		out["groq"] = NewOpenAIProvider(key, base, defaultModel)
	}
	if key := checkEnv(cfg.Providers.Zhipu.APIKey, "ZHIPU_API_KEY"); key != "" {
		base := cfg.Providers.Zhipu.APIBase
		if base == "" {
			base = "https://open.bigmodel.cn/api/paas/v4/"
		}
		out["zhipu"] = NewOpenAIProvider(key, base, defaultModel)
	}
	if key := checkEnv(cfg.Providers.Gemini.APIKey, "GEMINI_API_KEY"); key != "" {
		base := cfg.Providers.Gemini.APIBase
		if base == "" {
			base = "https://generativelanguage.googleapis.com/v1beta/openai/"
		}
		out["gemini"] = NewOpenAIProvider(key, base, defaultModel)
	}
	if key := checkEnv(cfg.Providers.VLLM.APIKey, "VLLM_API_KEY"); key != "" {
		out["vllm"] = NewOpenAIProvider(key, cfg.Providers.VLLM.APIBase, defaultModel)
	}

	return out
}

// ResolveCandidate turns a model reference into a (provider, model) pair.
// Aliases from model_list win; otherwise "provider/model" splits on the
// first slash, and a bare model falls back to the given default provider.
func ResolveCandidate(ref, defaultProvider string, routes []config.ModelRoute) (models.FallbackCandidate, error) {
	for _, r := range routes {
		if r.Name == ref {
			return models.FallbackCandidate{ProviderKey: r.Provider, Model: r.Model}, nil
		}
	}
	if provider, model, ok := strings.Cut(ref, "/"); ok && provider != "" && model != "" {
		return models.FallbackCandidate{ProviderKey: provider, Model: model}, nil
	}
	if defaultProvider == "" {
		return models.FallbackCandidate{}, fmt.Errorf("cannot resolve model %q: no provider prefix and no default provider", ref)
	}
	return models.FallbackCandidate{ProviderKey: defaultProvider, Model: ref}, nil
}

// ResolveCandidates maps a primary model plus fallbacks into the candidate
// list the fallback chain consumes. Unresolvable refs are dropped.
func ResolveCandidates(model string, fallbacks []string, defaultProvider string, routes []config.ModelRoute) []models.FallbackCandidate {
	refs := append([]string{model}, fallbacks...)
	out := make([]models.FallbackCandidate, 0, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		cand, err := ResolveCandidate(ref, defaultProvider, routes)
		if err != nil {
			continue
		}
		out = append(out, cand)
	}
	return out
}
