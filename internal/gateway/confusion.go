package gateway

import (
	"context"
	"encoding/json"
	"strings"
)

// ConfusionResult is the structured outcome of a confusion check on
// student input.
type ConfusionResult struct {
	ConfusionDetected  bool     `json:"confusionDetected"`
	SuggestedRephrases []string `json:"suggestedRephrases"`
	Explanation        string   `json:"explanation,omitempty"`
}

// safeDefault is what a failed parse degrades to: no confusion, no
// suggestions. Parse problems must never surface as errors.
func safeDefault() ConfusionResult {
	return ConfusionResult{SuggestedRephrases: []string{}}
}

// DetectConfusion asks the model whether student input suggests
// confusion and how to rephrase it. Upstream call failures propagate as
// gateway errors, but a malformed model reply degrades to the safe
// default instead.
func (c *Client) DetectConfusion(ctx context.Context, text, curriculumContext string) (ConfusionResult, error) {
	raw, err := c.generate(ctx, confusionPrompt(text, curriculumContext))
	if err != nil {
		return safeDefault(), err
	}
	return parseConfusion(raw), nil
}

// parseConfusion extracts the structured result from the model's raw
// reply. Models wrap JSON in code fences often enough that stripping them
// is part of the contract.
func parseConfusion(raw string) ConfusionResult {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed struct {
		ConfusionDetected  bool     `json:"confusionDetected"`
		SuggestedRephrases []string `json:"suggestedRephrases"`
		Explanation        string   `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return safeDefault()
	}
	out := ConfusionResult{
		ConfusionDetected:  parsed.ConfusionDetected,
		SuggestedRephrases: parsed.SuggestedRephrases,
		Explanation:        parsed.Explanation,
	}
	if out.SuggestedRephrases == nil {
		out.SuggestedRephrases = []string{}
	}
	return out
}
