package x402

import (
	"encoding/json"
	"strings"
)

// NoContent is reported when a successful response carries no recognizable text.
const NoContent = "No response content"

// ContentStrategy recognizes one response shape and extracts its text.
// Extract is only called when Match returns true.
type ContentStrategy struct {
	Name    string
	Match   func(body map[string]any) bool
	Extract func(body map[string]any) string
}

// ContentStrategies lists the supported response shapes in priority order.
var ContentStrategies = []ContentStrategy{
	{
		Name:    "chat-completion",
		Match:   func(b map[string]any) bool { return chatCompletionText(b) != "" },
		Extract: chatCompletionText,
	},
	{
		Name:    "output-blocks",
		Match:   func(b map[string]any) bool { return outputBlocksText(b) != "" },
		Extract: outputBlocksText,
	},
	{
		Name:    "text",
		Match:   func(b map[string]any) bool { return flatText(b) != "" },
		Extract: flatText,
	},
}

// ExtractContent returns the assistant text from a response body, trying each
// strategy in order. Bodies that match nothing, including invalid JSON,
// yield NoContent.
func ExtractContent(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return NoContent
	}
	return extractWith(ContentStrategies, m)
}

func extractWith(strategies []ContentStrategy, body map[string]any) string {
	for _, s := range strategies {
		if s.Match(body) {
			return s.Extract(body)
		}
	}
	return NoContent
}

// choices[0].message.content
func chatCompletionText(b map[string]any) string {
	choices, _ := b["choices"].([]any)
	if len(choices) == 0 {
		return ""
	}
	choice, _ := choices[0].(map[string]any)
	msg, _ := choice["message"].(map[string]any)
	content, _ := msg["content"].(string)
	return content
}

// output[0].content[] blocks of type output_text, concatenated in order.
func outputBlocksText(b map[string]any) string {
	output, _ := b["output"].([]any)
	if len(output) == 0 {
		return ""
	}
	item, _ := output[0].(map[string]any)
	blocks, _ := item["content"].([]any)

	var sb strings.Builder
	for _, raw := range blocks {
		block, _ := raw.(map[string]any)
		if block["type"] != "output_text" {
			continue
		}
		if text, ok := block["text"].(string); ok {
			sb.WriteString(text)
		}
	}
	return sb.String()
}

func flatText(b map[string]any) string {
	text, _ := b["text"].(string)
	return text
}

// rawUsage accepts both chat-completions and responses-API field names.
type rawUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
}

// ParseUsage returns the usage object of a response body, or nil if absent.
func ParseUsage(body []byte) *Usage {
	var env struct {
		Usage *rawUsage `json:"usage"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Usage == nil {
		return nil
	}

	u := env.Usage
	out := &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if out.PromptTokens == 0 {
		out.PromptTokens = u.InputTokens
	}
	if out.CompletionTokens == 0 {
		out.CompletionTokens = u.OutputTokens
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	if *out == (Usage{}) {
		return nil
	}
	return out
}
