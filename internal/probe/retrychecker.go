package probe

import (
	"context"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// RetryChecker repeats a failed check up to Attempts times within a single
// probe. The caller's deadline still bounds the whole series.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, t *domain.Target) CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last CheckResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, t)
		if last.Success || ctx.Err() != nil {
			return last
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return last
			case <-time.After(r.Backoff):
			}
		}
	}
	if attempts > 1 {
		// annotate message so you can see it was a retry series
		last.Message = last.Message + " (after retries)"
	}
	return last
}
