package utils

import (
	"fmt"
	"strings"
)

// ParseModelSpec parses a model specification in "provider/model" format,
// the same shape used to key comparison results. The provider part is
// optional; a bare model id is resolved against the catalog by the caller.
// Examples:
//   - "openai/gpt-4o" -> ("openai", "gpt-4o", nil)
//   - "llama3" -> ("", "llama3", nil)
//   - "openai/" -> error (empty model)
//   - "/gpt-4o" -> error (empty provider)
func ParseModelSpec(spec string) (provider, model string, err error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return "", "", fmt.Errorf("model specification cannot be empty")
	}

	if !strings.Contains(trimmed, "/") {
		return "", trimmed, nil
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("model specification must be 'provider/model' with exactly one slash, got '%s'", spec)
	}

	provider = strings.TrimSpace(parts[0])
	model = strings.TrimSpace(parts[1])
	if provider == "" {
		return "", "", fmt.Errorf("provider cannot be empty in model specification '%s'", spec)
	}
	if model == "" {
		return "", "", fmt.Errorf("model cannot be empty in model specification '%s'", spec)
	}

	return provider, model, nil
}

// ModelKey builds the canonical "provider/model" key.
func ModelKey(provider, model string) string {
	return provider + "/" + model
}
