package models

// ProviderConfig holds connection settings for one completion provider.
type ProviderConfig struct {
	APIKey    string            `yaml:"api_key" json:"api_key,omitzero"`
	BaseURL   string            `yaml:"base_url" json:"base_url,omitzero"` // Optional custom base URL
	TimeoutMs int               `yaml:"timeout_ms" json:"timeout_ms,omitzero"`
	Headers   map[string]string `yaml:"headers" json:"headers,omitzero"` // Optional custom headers
}

// BackendsConfig groups the auxiliary local backends.
type BackendsConfig struct {
	Whisper  BackendConfig `yaml:"whisper" json:"whisper"`
	ImageGen BackendConfig `yaml:"imagegen" json:"imagegen"`
}

// BackendConfig holds connection settings for an auxiliary backend
// (transcription, image generation) reached over plain HTTP.
type BackendConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms" json:"timeout_ms,omitzero"`

	// MaxConcurrent bounds simultaneous invocations; the backends share a
	// GPU, so the default is one at a time.
	MaxConcurrent int64 `yaml:"max_concurrent" json:"max_concurrent,omitzero"`
	// RatePerMinute paces admissions before the semaphore is even tried.
	RatePerMinute int `yaml:"rate_per_minute" json:"rate_per_minute,omitzero"`
}
