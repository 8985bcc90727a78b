package llmservice

import (
	"context"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens int64 = 1024

// AnthropicService is a Service backed by the Anthropic Messages API.
type AnthropicService struct {
	sdk   anthropic.Client
	model string
}

// NewAnthropicService returns a Service backed by the Anthropic SDK.
func NewAnthropicService(apiKey, baseURL, model string) *AnthropicService {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicService{sdk: anthropic.NewClient(opts...), model: model}
}

func (s *AnthropicService) complete(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	resp, err := s.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if tb := block.AsAny(); tb != nil {
			if t, ok := tb.(anthropic.TextBlock); ok {
				text += t.Text
			}
		}
	}
	return text, nil
}

func (s *AnthropicService) GenerateSimple(ctx context.Context, prompt string) (string, error) {
	return s.complete(ctx, prompt)
}

func (s *AnthropicService) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	text, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseJSONObject(text), nil
}

func (s *AnthropicService) ClassifyForArchive(ctx context.Context, prompt string) (*ClassificationResult, error) {
	text, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseClassification(text), nil
}

var _ Service = (*AnthropicService)(nil)
