package models

import (
	"log/slog"

	"github.com/n0madic/go-zai2api/internal/types"
)

// Registry resolves client model names against the catalog. A non-empty
// debug model replaces every requested name before resolution.
type Registry struct {
	debugModel string
	logger     *slog.Logger
}

// NewRegistry creates a registry. logger may be nil.
func NewRegistry(debugModel string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{debugModel: debugModel, logger: logger}
}

// Resolve returns the model configuration for a client-supplied name.
func (r *Registry) Resolve(requested string) ModelConfig {
	name := requested
	if r.debugModel != "" {
		name = r.debugModel
	}
	cfg, ok := Lookup(name)
	if !ok {
		r.logger.Debug("models.fallback", "requested", requested, "resolved", cfg.ID)
	}
	return cfg
}

// List renders the catalog as an OpenAI model list. Display names are used
// as IDs; Normalize maps them back onto catalog entries.
func (r *Registry) List(created int64) types.ModelList {
	list := types.ModelList{Object: "list", Data: make([]types.ModelObject, 0, len(catalog))}
	for _, m := range catalog {
		list.Data = append(list.Data, types.ModelObject{
			ID:      m.DisplayName,
			Object:  "model",
			Created: created,
			OwnedBy: OwnedBy,
		})
	}
	return list
}
