package errs

import (
	"context"
	"errors"
	"testing"
)

func TestTransientWrapsSentinel(t *testing.T) {
	base := errors.New("boom")
	wrapped := Transient(base)
	if !errors.Is(wrapped, ErrTransient) {
		t.Fatalf("expected errors.Is(wrapped, ErrTransient)")
	}
	if Transient(nil) != nil {
		t.Fatalf("expected Transient(nil) to be nil")
	}
}

func TestInvalidInputWrapsSentinel(t *testing.T) {
	err := InvalidInput("need")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected errors.Is(err, ErrInvalidInput)")
	}
}

func TestFatalWrapsSentinel(t *testing.T) {
	err := Fatal("stream diverged")
	if !errors.Is(err, ErrFatalInvariant) {
		t.Fatalf("expected errors.Is(err, ErrFatalInvariant)")
	}
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		if attempts == 1 {
			return errors.New("first attempt fails")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryFailsAfterTwoAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		return errors.New("always fails")
	})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryDoesNotRetryPastCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Retry(ctx, func() error {
		attempts++
		return errors.New("fails")
	})
	if attempts != 1 {
		t.Fatalf("expected 1 attempt on a cancelled context, got %d", attempts)
	}
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestRetryValueReturnsSuccessfulValue(t *testing.T) {
	attempts := 0
	v, err := RetryValue(context.Background(), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("first attempt fails")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}
