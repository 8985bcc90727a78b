// Package llmtest provides a scriptable fake llmservice.Service for tests in
// other packages (archiver, router, retriever, gateway) that need to exercise
// LLM failure fallbacks without a real API call.
package llmtest

import (
	"context"

	"memoryd/internal/llmservice"
)

// Fake is a scriptable llmservice.Service.
type Fake struct {
	SimpleFn     func(ctx context.Context, prompt string) (string, error)
	JSONFn       func(ctx context.Context, prompt string) (map[string]any, error)
	ClassifyFn   func(ctx context.Context, prompt string) (*llmservice.ClassificationResult, error)
	SimpleCalls  []string
	JSONCalls    []string
	ClassifyCalls []string
}

func (f *Fake) GenerateSimple(ctx context.Context, prompt string) (string, error) {
	f.SimpleCalls = append(f.SimpleCalls, prompt)
	if f.SimpleFn != nil {
		return f.SimpleFn(ctx, prompt)
	}
	return "", nil
}

func (f *Fake) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	f.JSONCalls = append(f.JSONCalls, prompt)
	if f.JSONFn != nil {
		return f.JSONFn(ctx, prompt)
	}
	return nil, nil
}

func (f *Fake) ClassifyForArchive(ctx context.Context, prompt string) (*llmservice.ClassificationResult, error) {
	f.ClassifyCalls = append(f.ClassifyCalls, prompt)
	if f.ClassifyFn != nil {
		return f.ClassifyFn(ctx, prompt)
	}
	return nil, nil
}

var _ llmservice.Service = (*Fake)(nil)
