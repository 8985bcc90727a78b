package embedding

import (
	"context"

	"memoryd/internal/errs"
)

// retrying decorates a Service with the "one silent retry at the call
// site" policy for TransientExternalError.
type retrying struct {
	inner Service
}

// WithRetry wraps inner so EmbedText retries once on failure before
// returning an error wrapped with errs.Transient.
func WithRetry(inner Service) Service {
	return &retrying{inner: inner}
}

func (r *retrying) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return errs.RetryValue(ctx, func() ([]float32, error) { return r.inner.EmbedText(ctx, text) })
}
