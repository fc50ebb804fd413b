package providers

import (
	"fmt"
	"strings"

	"github.com/mfcastro/aihub/internal/models"
)

const (
	defaultGroqBaseURL     = "https://api.groq.com/openai/v1"
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// Build constructs one adapter per configured provider. Groq and DeepSeek
// speak the chat-completions protocol and share the OpenAI adapter.
func Build(configs map[string]models.ProviderConfig) (map[string]Adapter, error) {
	adapters := make(map[string]Adapter, len(configs))

	for name, cfg := range configs {
		name = strings.ToLower(name)
		switch name {
		case "openai":
			adapters[name] = NewOpenAIAdapter(name, cfg)
		case "groq":
			if cfg.BaseURL == "" {
				cfg.BaseURL = defaultGroqBaseURL
			}
			adapters[name] = NewOpenAIAdapter(name, cfg)
		case "deepseek":
			if cfg.BaseURL == "" {
				cfg.BaseURL = defaultDeepSeekBaseURL
			}
			adapters[name] = NewOpenAIAdapter(name, cfg)
		case "anthropic":
			adapters[name] = NewAnthropicAdapter(cfg)
		case "gemini":
			adapters[name] = NewGeminiAdapter(cfg)
		case "ollama":
			adapters[name] = NewOllamaAdapter(cfg)
		default:
			return nil, fmt.Errorf("unknown provider %q in configuration", name)
		}
	}

	return adapters, nil
}
