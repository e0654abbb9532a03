package config

import "strings"

// ModelPricing holds per-thousand-token prices in USD.
type ModelPricing struct {
	InputPerKTok  float64
	OutputPerKTok float64
}

// Model is a catalog entry.
type Model struct {
	ID          string
	DisplayName string
	Category    string
	Pricing     ModelPricing
}

// Model categories, in display order.
const (
	CategoryFast      = "Fast & Affordable"
	CategoryAdvanced  = "Advanced"
	CategoryReasoning = "Reasoning"
)

// Categories lists the catalog groupings in display order.
var Categories = []string{CategoryFast, CategoryAdvanced, CategoryReasoning}

// catalog is ordered for display. It must not be mutated at runtime;
// accessors hand out copies.
var catalog = []Model{
	{ID: "gpt-4o-mini", DisplayName: "GPT-4o Mini", Category: CategoryFast,
		Pricing: ModelPricing{InputPerKTok: 0.00015, OutputPerKTok: 0.0006}},
	{ID: "gpt-3.5-turbo", DisplayName: "GPT-3.5 Turbo", Category: CategoryFast,
		Pricing: ModelPricing{InputPerKTok: 0.0005, OutputPerKTok: 0.0015}},
	{ID: "gpt-4o", DisplayName: "GPT-4o", Category: CategoryAdvanced,
		Pricing: ModelPricing{InputPerKTok: 0.006, OutputPerKTok: 0.018}},
	{ID: "gpt-4-turbo", DisplayName: "GPT-4 Turbo", Category: CategoryAdvanced,
		Pricing: ModelPricing{InputPerKTok: 0.01, OutputPerKTok: 0.03}},
	{ID: "gpt-4", DisplayName: "GPT-4", Category: CategoryAdvanced,
		Pricing: ModelPricing{InputPerKTok: 0.03, OutputPerKTok: 0.06}},
	{ID: "o1-mini", DisplayName: "o1 Mini", Category: CategoryReasoning,
		Pricing: ModelPricing{InputPerKTok: 0.003, OutputPerKTok: 0.012}},
	{ID: "o1-preview", DisplayName: "o1 Preview", Category: CategoryReasoning,
		Pricing: ModelPricing{InputPerKTok: 0.015, OutputPerKTok: 0.06}},
	{ID: "o1", DisplayName: "o1", Category: CategoryReasoning,
		Pricing: ModelPricing{InputPerKTok: 0.15, OutputPerKTok: 0.6}},
}

var catalogIndex = func() map[string]int {
	idx := make(map[string]int, len(catalog))
	for i, m := range catalog {
		idx[m.ID] = i
	}
	return idx
}()

// Models returns the catalog in display order.
func Models() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}

// LookupModel returns the catalog entry for id. Matching ignores case and
// surrounding whitespace.
func LookupModel(id string) (Model, bool) {
	i, ok := catalogIndex[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Model{}, false
	}
	return catalog[i], true
}

// LookupPricing returns the pricing for a model id.
// Returns zero pricing and false if the model is unknown.
func LookupPricing(id string) (ModelPricing, bool) {
	m, ok := LookupModel(id)
	return m.Pricing, ok
}

// ModelsByCategory groups the catalog by category, preserving display order.
func ModelsByCategory() map[string][]Model {
	out := make(map[string][]Model, len(Categories))
	for _, m := range catalog {
		out[m.Category] = append(out[m.Category], m)
	}
	return out
}

// NextModel returns the catalog entry after id, wrapping around.
// Unknown ids return the first entry.
func NextModel(id string) Model {
	i, ok := catalogIndex[id]
	if !ok {
		return catalog[0]
	}
	return catalog[(i+1)%len(catalog)]
}
