// Package llmservice implements the LLMService adapter boundary: free-form
// text generation, best-effort JSON generation, and the typed
// classify-for-archive call the truncate archiver uses.
package llmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ClassificationResult is the typed expectation of classifyForArchive.
type ClassificationResult struct {
	TopicID     *string `json:"topicID"`
	TopicTitle  string  `json:"topicTitle"`
	ThreadID    *string `json:"threadID"`
	ThreadTitle string  `json:"threadTitle"`
	IsNewTopic  bool    `json:"isNewTopic"`
	IsNewThread bool    `json:"isNewThread"`
}

// Service is the LLMService boundary the core calls through.
type Service interface {
	// GenerateSimple returns free-form text for prompt.
	GenerateSimple(ctx context.Context, prompt string) (string, error)

	// GenerateJSON asks the model for a JSON object and best-effort parses
	// it. A nil map (with nil error) means the response failed to parse as
	// JSON; callers apply their own fallback. A non-nil error means the
	// call itself failed (network, rate limit, 5xx).
	GenerateJSON(ctx context.Context, prompt string) (map[string]any, error)

	// ClassifyForArchive is GenerateJSON with the typed expectations of the
	// archive classification prompt. Returns (nil, nil) on parse/schema
	// failure, matching GenerateJSON's "null on parse failure" contract.
	ClassifyForArchive(ctx context.Context, prompt string) (*ClassificationResult, error)
}

var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON pulls the first {...} block out of text, tolerating models
// that wrap JSON in prose or markdown code fences.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		return text
	}
	if m := jsonBlock.FindString(text); m != "" {
		return m
	}
	return text
}

func parseJSONObject(text string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		return nil
	}
	return out
}

func parseClassification(text string) *ClassificationResult {
	var out ClassificationResult
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		return nil
	}
	return &out
}

// NewProvider constructs the Service named by provider ("openai" or
// "anthropic"), configured with apiKey/baseURL/model.
func NewProvider(provider, apiKey, baseURL, model string) (Service, error) {
	switch provider {
	case "", "openai":
		return NewOpenAIService(apiKey, baseURL, model), nil
	case "anthropic":
		return NewAnthropicService(apiKey, baseURL, model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
