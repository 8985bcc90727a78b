// Package embedtest provides a scriptable fake embedding.Service for tests
// in other packages that need deterministic vectors without a network call.
package embedtest

import (
	"context"

	"memoryd/internal/embedding"
)

// Fake returns vectors from a lookup table keyed by the exact text passed to
// EmbedText, falling back to Default when text is not in the table.
type Fake struct {
	Vectors map[string][]float32
	Default []float32
	Err     error
}

func (f *Fake) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if v, ok := f.Vectors[text]; ok {
		return v, nil
	}
	return f.Default, nil
}

var _ embedding.Service = (*Fake)(nil)
