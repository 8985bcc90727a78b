package embedding

import (
	"context"
	"errors"
	"testing"
)

type flakyEmbed struct {
	failures int
}

func (f *flakyEmbed) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient failure")
	}
	return []float32{1, 0, 0}, nil
}

func TestWithRetryRecoversFromOneFailure(t *testing.T) {
	svc := WithRetry(&flakyEmbed{failures: 1})
	vec, err := svc.EmbedText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected retry to recover, got: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected a 3-dim vector, got %v", vec)
	}
}

func TestWithRetryGivesUpAfterTwoFailures(t *testing.T) {
	svc := WithRetry(&flakyEmbed{failures: 2})
	if _, err := svc.EmbedText(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error after exhausting the single retry")
	}
}
