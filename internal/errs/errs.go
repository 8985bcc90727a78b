// Package errs names the error taxonomy the orchestrator's call sites and
// propagation policy are built around: callers use errors.Is against the
// sentinels here rather than matching on error text, the same
// errors.Is-compatible idiom the persistence layer uses for ErrNotFound.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransient marks a single failed call to an LLM, embedding, or
// persistence backend (network, rate limit, 5xx). One silent retry happens
// at the call site; a second failure surfaces to the caller, except in
// archival paths where it is logged and swallowed.
var ErrTransient = errors.New("transient external error")

// ErrClassificationParse marks an LLM response that was not valid JSON or
// did not match the expected classification schema. Callers fall back to
// the "Unclassified" / "General" defaults and continue.
var ErrClassificationParse = errors.New("classification parse error")

// ErrEmbeddingComputation marks an embedding call failure or an undefined
// cosine similarity. Callers treat similarity as 0 and fall back to the
// lexical score.
var ErrEmbeddingComputation = errors.New("embedding computation error")

// ErrDuplicateMessage marks a messageID already present in the stream or
// persistence layer. Always an idempotent skip, never surfaced to a caller.
var ErrDuplicateMessage = errors.New("duplicate message")

// ErrInvalidInput marks an empty role/content or a missing required
// request field. Dropped silently during commit; returned as a "missing
// field" response at the API boundary.
var ErrInvalidInput = errors.New("invalid input")

// ErrFatalInvariant marks an internal invariant violation (e.g. a stream's
// total token count diverging from the sum of its messages). The request
// aborts; this is a programming error, not a runtime condition to recover
// from.
var ErrFatalInvariant = errors.New("fatal invariant violation")

// Transient wraps err so errors.Is(wrapped, ErrTransient) holds. A nil err
// returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// InvalidInput returns an ErrInvalidInput naming the missing or malformed
// field.
func InvalidInput(field string) error {
	return fmt.Errorf("%w: missing field %q", ErrInvalidInput, field)
}

// Fatal returns an ErrFatalInvariant describing what invariant broke.
func Fatal(msg string) error {
	return fmt.Errorf("%w: %s", ErrFatalInvariant, msg)
}

// Retry calls fn; on failure it calls fn exactly once more (the "one
// silent retry" policy for TransientExternalError), skipping the retry if
// ctx is already done. The final error, if any, is wrapped with Transient.
func Retry(ctx context.Context, fn func() error) error {
	if err := fn(); err != nil {
		if ctx.Err() != nil {
			return Transient(err)
		}
		if err2 := fn(); err2 != nil {
			return Transient(err2)
		}
	}
	return nil
}

// RetryValue is Retry for a call that also returns a value.
func RetryValue[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		var zero T
		return zero, Transient(err)
	}
	v, err = fn()
	if err != nil {
		var zero T
		return zero, Transient(err)
	}
	return v, nil
}
