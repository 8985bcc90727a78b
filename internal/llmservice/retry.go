package llmservice

import (
	"context"

	"memoryd/internal/errs"
)

// retrying decorates a Service with the "one silent retry at the call
// site" policy for TransientExternalError.
type retrying struct {
	inner Service
}

// WithRetry wraps inner so every call retries once on failure before
// returning an error wrapped with errs.Transient.
func WithRetry(inner Service) Service {
	return &retrying{inner: inner}
}

func (r *retrying) GenerateSimple(ctx context.Context, prompt string) (string, error) {
	return errs.RetryValue(ctx, func() (string, error) { return r.inner.GenerateSimple(ctx, prompt) })
}

func (r *retrying) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	return errs.RetryValue(ctx, func() (map[string]any, error) { return r.inner.GenerateJSON(ctx, prompt) })
}

func (r *retrying) ClassifyForArchive(ctx context.Context, prompt string) (*ClassificationResult, error) {
	return errs.RetryValue(ctx, func() (*ClassificationResult, error) { return r.inner.ClassifyForArchive(ctx, prompt) })
}
