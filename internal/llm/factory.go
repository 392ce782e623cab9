package llm

import (
	"fmt"
	"strings"

	"github.com/dawdle-sh/dawdle/internal/config"
)

// ParseProviderModel parses "provider:model" or just "provider" from a flag
// value. Model will be empty if not specified.
func ParseProviderModel(s string) (string, string, error) {
	parts := strings.SplitN(s, ":", 2)
	provider := strings.TrimSpace(parts[0])
	if provider == "" {
		return "", "", fmt.Errorf("invalid provider format: %q", s)
	}
	model := ""
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}

	switch provider {
	case "anthropic", "openai", "gemini", "openai-compat":
		return provider, model, nil
	}
	return "", "", fmt.Errorf("unknown provider: %s", provider)
}

// NewProvider creates an LLM provider based on the config. Providers are
// wrapped with automatic retry for rate limits (429) and transient errors.
func NewProvider(cfg *config.Config) (Provider, error) {
	provider, err := newProviderInternal(cfg)
	if err != nil {
		return nil, err
	}
	return WrapWithRetry(provider, DefaultRetryConfig()), nil
}

func newProviderInternal(cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, "")
	case "gemini":
		return NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "openai-compat":
		if cfg.OpenAICompat.BaseURL == "" {
			return nil, fmt.Errorf("openai-compat provider requires base_url in config")
		}
		return NewOpenAIProvider(cfg.OpenAICompat.APIKey, cfg.OpenAICompat.Model, cfg.OpenAICompat.BaseURL)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
