package transport

import "context"

type ctxKey int

const (
	retriedKey ctxKey = iota
	noRetryKey
)

// WithoutRetry marks requests made with ctx as not eligible for the
// refresh-and-retry path. Authentication endpoints use it.
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey, true)
}

// RetryDisabled reports whether ctx was built with WithoutRetry.
func RetryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey).(bool)
	return v
}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey, true)
}

// Retried reports whether the request carrying ctx is already a replay.
func Retried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey).(bool)
	return v
}
