package llm

import (
	"context"
	"errors"
)

// ErrorKind classifies a failed attempt.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindParse
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindCanceled:
		return "canceled"
	default:
		return "transport"
	}
}

// KindOf maps an attempt error to its kind. Unknown errors count as
// transport failures.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrResponseInvalid), errors.Is(err, ErrEmptyResponse):
		return KindParse
	default:
		return KindTransport
	}
}

// Retryable reports whether an attempt of kind k may be repeated.
func (k ErrorKind) Retryable() bool {
	return k == KindTransport || k == KindParse
}

// Retry calls fn until it succeeds, the context ends, an error of a
// non-retryable kind occurs, or maxAttempts calls have failed. Attempts run
// back to back. It returns the number of calls made and the last error.
func Retry[T any](ctx context.Context, maxAttempts int, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}
		out, err := fn(ctx, attempt)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil || !KindOf(err).Retryable() {
			return zero, attempt, err
		}
	}
	return zero, maxAttempts, lastErr
}
