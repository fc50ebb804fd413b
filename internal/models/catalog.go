package models

// CatalogEntry is static reference data for one model: the source of truth
// for cost computation. Read-only at runtime.
type CatalogEntry struct {
	ID              string  `yaml:"id" json:"id"`
	DisplayName     string  `yaml:"display_name" json:"display_name"`
	CostPer1KTokens float64 `yaml:"cost_per_1k_tokens" json:"cost_per_1k_tokens"`
	Provider        string  `yaml:"-" json:"provider"`
}

// CatalogConfig maps provider name -> model id -> entry, as loaded from YAML.
type CatalogConfig map[string]map[string]CatalogEntry
