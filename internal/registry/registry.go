// Package registry holds the static model catalog: which models exist,
// which provider serves each, and what they cost. Loaded once from
// configuration and read-only afterward.
package registry

import (
	"sort"
	"strings"

	"github.com/mfcastro/aihub/internal/models"
)

type Registry struct {
	entries map[string]models.CatalogEntry
}

// New builds a registry from the catalog config. Entries are indexed by
// model id; config validation guarantees ids are unique across providers.
// The provider key from the config is stamped onto each entry.
func New(catalog models.CatalogConfig) *Registry {
	entries := make(map[string]models.CatalogEntry)
	for provider, catalogModels := range catalog {
		provider = strings.ToLower(provider)
		for id, entry := range catalogModels {
			entry.ID = id
			entry.Provider = provider
			entries[id] = entry
		}
	}
	return &Registry{entries: entries}
}

// Resolve looks up a model id and returns its catalog entry.
func (r *Registry) Resolve(modelID string) (models.CatalogEntry, bool) {
	entry, ok := r.entries[modelID]
	return entry, ok
}

// ProviderFor returns the provider serving a model, or "" if unknown.
func (r *Registry) ProviderFor(modelID string) string {
	if entry, ok := r.entries[modelID]; ok {
		return entry.Provider
	}
	return ""
}

// CostFor computes the dollar cost of a token count against the model's
// per-1K rate. Unknown models cost zero; they are caught at access-check
// time, not here.
func (r *Registry) CostFor(modelID string, tokens int) float64 {
	entry, ok := r.entries[modelID]
	if !ok {
		return 0
	}
	return float64(tokens) / 1000.0 * entry.CostPer1KTokens
}

// ModelsFor lists catalog entries the user's provider set allows, sorted
// by model id for stable output.
func (r *Registry) ModelsFor(user *models.User) []models.CatalogEntry {
	var out []models.CatalogEntry
	for _, entry := range r.entries {
		if user.CanUseProvider(entry.Provider) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every catalog entry, sorted by model id.
func (r *Registry) All() []models.CatalogEntry {
	out := make([]models.CatalogEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
