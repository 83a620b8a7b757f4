package probe

import (
	"context"
	"fmt"
	"time"
)

// RetryProber retries failed probes. A probe that answers (true or false) is
// never retried.
type RetryProber struct {
	Inner    Prober
	Attempts int
	Backoff  time.Duration
}

func (r *RetryProber) Probe(ctx context.Context, expression string) (bool, error) {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		found, err := r.Inner.Probe(ctx, expression)
		if err == nil {
			return found, nil
		}
		last = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return false, fmt.Errorf("%w (gave up after %d attempts: %v)", last, i+1, ctx.Err())
			case <-time.After(r.Backoff):
			}
		}
	}
	if attempts == 1 {
		return false, last
	}
	// annotate so the cached value shows it was a retry series
	return false, fmt.Errorf("%w (after %d attempts)", last, attempts)
}
