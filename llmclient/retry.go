package llmclient

import (
	"context"
	"math/rand"
	"time"
)

// sleepFn is swapped out in tests so retry paths run instantly.
var sleepFn = time.Sleep

// Retryable reports whether err is worth another attempt. InvalidInput
// never is; everything unclassified is treated as permanent too.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTimeout, KindUpstream:
		return true
	}
	return false
}

// withRetry runs fn up to maxRetries+1 times total, backing off
// exponentially (1s, 2s, 4s, ...) with jitter between attempts. The
// first non-retryable error aborts immediately; the last error is
// returned once attempts are exhausted.
func withRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return zero, lastErr
			}
			sleepFn(backoffDelay(attempt))
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// backoffDelay returns the delay before the given attempt (1-based for
// retries): base 1s doubled per attempt, plus up to 50% random jitter so
// throttled workers do not retry in lockstep.
func backoffDelay(attempt int) time.Duration {
	base := time.Second << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(base)/2 + 1))
	return base + jitter
}
