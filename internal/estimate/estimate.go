// Package estimate computes pre-flight token and cost estimates for a prompt.
//
// Token counts are an approximation (a fixed characters-per-token ratio by
// default), not real tokenization. They can differ from what the gateway bills.
package estimate

import (
	"unicode/utf8"

	"github.com/theirongolddev/paychat/internal/config"
)

// DefaultOutputTokens is used when no positive output cap is given.
const DefaultOutputTokens = 1000

// TokenCounter approximates the number of tokens in a text.
type TokenCounter interface {
	CountTokens(text string) int
}

// CharRatio counts ceil(characters / CharsPerToken). Characters are runes.
type CharRatio struct {
	CharsPerToken int
}

// CountTokens implements TokenCounter.
func (c CharRatio) CountTokens(text string) int {
	per := c.CharsPerToken
	if per <= 0 {
		per = 4
	}
	n := utf8.RuneCountInString(text)
	return (n + per - 1) / per
}

// DefaultCounter is the 4-characters-per-token heuristic.
var DefaultCounter TokenCounter = CharRatio{CharsPerToken: 4}

// CostEstimate is the derived cost of a single request.
type CostEstimate struct {
	InputTokens  int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int     `json:"output_tokens" yaml:"output_tokens"`
	InputCost    float64 `json:"input_cost" yaml:"input_cost"`
	OutputCost   float64 `json:"output_cost" yaml:"output_cost"`
	TotalCost    float64 `json:"total_cost" yaml:"total_cost"`
}

// Estimator estimates costs with a configurable token counter.
type Estimator struct {
	Counter TokenCounter
}

// Estimate returns the cost estimate for prompt at the given output cap.
// A cap <= 0 means DefaultOutputTokens.
func (e Estimator) Estimate(prompt string, outputCap int, pricing config.ModelPricing) CostEstimate {
	counter := e.Counter
	if counter == nil {
		counter = DefaultCounter
	}

	outputTokens := outputCap
	if outputTokens <= 0 {
		outputTokens = DefaultOutputTokens
	}

	inputTokens := 0
	if prompt != "" {
		inputTokens = counter.CountTokens(prompt)
	}

	inputCost := float64(inputTokens) / 1000 * pricing.InputPerKTok
	outputCost := float64(outputTokens) / 1000 * pricing.OutputPerKTok

	return CostEstimate{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    inputCost + outputCost,
	}
}

// EstimateTokens returns the default token approximation for text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return DefaultCounter.CountTokens(text)
}

// Estimate uses the default counter.
func Estimate(prompt string, outputCap int, pricing config.ModelPricing) CostEstimate {
	return Estimator{}.Estimate(prompt, outputCap, pricing)
}

// ForModel estimates against a catalog model id.
// Returns false if the model is not in the catalog.
func ForModel(modelID, prompt string, outputCap int) (CostEstimate, bool) {
	pricing, ok := config.LookupPricing(modelID)
	if !ok {
		return CostEstimate{}, false
	}
	return Estimate(prompt, outputCap, pricing), true
}
