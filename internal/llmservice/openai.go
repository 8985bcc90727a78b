package llmservice

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIService is a Service backed by the OpenAI chat completions API (or
// any OpenAI-compatible endpoint reachable via baseURL).
type OpenAIService struct {
	client openai.Client
	model  string
}

// NewOpenAIService returns a Service backed by the OpenAI SDK.
func NewOpenAIService(apiKey, baseURL, model string) *OpenAIService {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIService{client: openai.NewClient(opts...), model: model}
}

func (s *OpenAIService) complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *OpenAIService) GenerateSimple(ctx context.Context, prompt string) (string, error) {
	return s.complete(ctx, prompt)
}

func (s *OpenAIService) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	text, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseJSONObject(text), nil
}

func (s *OpenAIService) ClassifyForArchive(ctx context.Context, prompt string) (*ClassificationResult, error) {
	text, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseClassification(text), nil
}

var _ Service = (*OpenAIService)(nil)
