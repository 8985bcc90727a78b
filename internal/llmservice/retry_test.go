package llmservice

import (
	"context"
	"errors"
	"testing"
)

type flakySimple struct {
	failures int
}

func (f *flakySimple) GenerateSimple(ctx context.Context, prompt string) (string, error) {
	if f.failures > 0 {
		f.failures--
		return "", errors.New("transient failure")
	}
	return "ok", nil
}

func (f *flakySimple) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	return nil, nil
}

func (f *flakySimple) ClassifyForArchive(ctx context.Context, prompt string) (*ClassificationResult, error) {
	return nil, nil
}

func TestWithRetryRecoversFromOneFailure(t *testing.T) {
	svc := WithRetry(&flakySimple{failures: 1})
	out, err := svc.GenerateSimple(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected retry to recover, got: %v", err)
	}
	if out != "ok" {
		t.Fatalf("expected ok, got %q", out)
	}
}

func TestWithRetryGivesUpAfterTwoFailures(t *testing.T) {
	svc := WithRetry(&flakySimple{failures: 2})
	if _, err := svc.GenerateSimple(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error after exhausting the single retry")
	}
}
