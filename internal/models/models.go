package models

import (
	"slices"
	"strings"

	"github.com/n0madic/go-zai2api/internal/types"
)

// OwnedBy is reported for every catalog entry on /v1/models.
const OwnedBy = "z.ai"

// Capabilities describes what an upstream model supports.
type Capabilities struct {
	Vision   bool
	MCP      bool
	Thinking bool
}

// ModelConfig describes one supported model.
type ModelConfig struct {
	ID            string
	DisplayName   string
	UpstreamID    string
	Capabilities  Capabilities
	DefaultParams types.ModelParams
}

// catalog is the fixed model list. The first entry is the default.
var catalog = []ModelConfig{
	{
		ID:           "0727-360B-API",
		DisplayName:  "GLM-4.5",
		UpstreamID:   "0727-360B-API",
		Capabilities: Capabilities{Vision: false, MCP: true, Thinking: true},
		DefaultParams: types.ModelParams{
			TopP:        0.95,
			Temperature: 0.6,
			MaxTokens:   80000,
		},
	},
	{
		ID:           "glm-4.5v",
		DisplayName:  "GLM-4.5V",
		UpstreamID:   "glm-4.5v",
		Capabilities: Capabilities{Vision: true, MCP: false, Thinking: true},
		DefaultParams: types.ModelParams{
			TopP:        0.6,
			Temperature: 0.8,
		},
	},
}

// modelMapping maps lowercased client spellings to catalog IDs.
var modelMapping = map[string]string{
	"glm-4.5v":             "glm-4.5v",
	"glm4.5v":              "glm-4.5v",
	"glm_4.5v":             "glm-4.5v",
	"gpt-4-vision-preview": "glm-4.5v",
	"0727-360b-api":        "0727-360B-API",
	"glm-4.5":              "0727-360B-API",
	"glm4.5":               "0727-360B-API",
	"glm_4.5":              "0727-360B-API",
	"gpt-4":                "0727-360B-API",
}

// Catalog returns a copy of the supported models, default first.
func Catalog() []ModelConfig {
	return slices.Clone(catalog)
}

// Default returns the model used when a requested ID is unknown.
func Default() ModelConfig {
	return catalog[0]
}

// Normalize maps a client-supplied model name onto a catalog ID. Unmapped
// names are returned lowercased and trimmed.
func Normalize(modelID string) string {
	normalized := strings.ToLower(strings.TrimSpace(modelID))
	if mapped, ok := modelMapping[normalized]; ok {
		return mapped
	}
	return normalized
}

// Lookup resolves modelID and reports whether it matched a catalog entry.
// On a miss the default model is returned.
func Lookup(modelID string) (ModelConfig, bool) {
	id := Normalize(modelID)
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Default(), false
}

// Resolve always returns a model configuration, falling back to Default.
func Resolve(modelID string) ModelConfig {
	m, _ := Lookup(modelID)
	return m
}
