package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `
server:
  port: "${AIHUB_PORT:-8080}"
  allowed_origins: "http://localhost:3000"
  environment: "${AIHUB_ENV:-development}"
  log_level: debug
  jwt_secret: "${AIHUB_JWT_SECRET:-test-secret}"

providers:
  OpenAI:
    api_key: "${OPENAI_API_KEY:-sk-test}"
    timeout_ms: 30000
  ollama:
    base_url: "http://localhost:11434"

catalog:
  openai:
    gpt-4o-mini:
      id: gpt-4o-mini
      display_name: GPT-4o Mini
      cost_per_1k_tokens: 0.00015
  ollama:
    llama3:
      id: llama3
      display_name: Llama 3 (local)
      cost_per_1k_tokens: 0.0
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, sampleConfig)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.JWTSecret != "test-secret" {
		t.Errorf("jwt_secret = %q, want test-secret", cfg.Server.JWTSecret)
	}

	// Provider keys are normalized to lowercase.
	if _, ok := cfg.Providers["openai"]; !ok {
		t.Error("expected provider key openai after normalization")
	}
	if _, ok := cfg.Providers["OpenAI"]; ok {
		t.Error("mixed-case provider key should not survive normalization")
	}

	entry, ok := cfg.Catalog["openai"]["gpt-4o-mini"]
	if !ok {
		t.Fatal("expected catalog entry openai/gpt-4o-mini")
	}
	if entry.CostPer1KTokens != 0.00015 {
		t.Errorf("cost = %v, want 0.00015", entry.CostPer1KTokens)
	}
}

func TestLoadFromFileEnvOverride(t *testing.T) {
	t.Setenv("AIHUB_PORT", "9999")
	path := writeConfigFile(t, sampleConfig)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("port = %q, want env override 9999", cfg.Server.Port)
	}
}

func TestLoadFromFileRejectsTraversal(t *testing.T) {
	if _, err := LoadFromFile("../../etc/passwd.yaml"); err == nil {
		t.Error("expected error for path traversal")
	}
	if _, err := LoadFromFile("config.json"); err == nil {
		t.Error("expected error for non-yaml extension")
	}
}

func TestValidate(t *testing.T) {
	path := writeConfigFile(t, sampleConfig)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	cfg.Server.Port = ""
	cfg.Server.JWTSecret = ""
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "server.jwt_secret") {
		t.Errorf("validation error missing fields: %v", err)
	}
}

func TestValidateCatalogProviderMismatch(t *testing.T) {
	path := writeConfigFile(t, sampleConfig)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	cfg.Catalog["anthropic"] = cfg.Catalog["openai"]
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for catalog provider without providers entry")
	}
}

func TestValidateRejectsDuplicateModelIDs(t *testing.T) {
	path := writeConfigFile(t, sampleConfig)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	// The same model id under a second provider would shadow one of the
	// two entries at lookup time.
	cfg.Catalog["ollama"]["gpt-4o-mini"] = cfg.Catalog["openai"]["gpt-4o-mini"]
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate model id across providers")
	}
	if !strings.Contains(err.Error(), "gpt-4o-mini") {
		t.Errorf("error = %v, want it to name the duplicate id", err)
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("AIHUB_TEST_VAR", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${AIHUB_TEST_VAR}", "value"},
		{"${AIHUB_TEST_UNSET:-fallback}", "fallback"},
		{"${AIHUB_TEST_VAR:-fallback}", "value"},
		{"${AIHUB_TEST_UNSET}", ""},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		if got := substituteEnvVars(tt.in); got != tt.want {
			t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
