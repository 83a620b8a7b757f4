package probe

import (
	"context"
	"time"
)

// Timeout bounds each probe to d. A non-positive d returns p unchanged, so a
// hung backend blocks callers until it answers.
func Timeout(p Prober, d time.Duration) Prober {
	if d <= 0 {
		return p
	}
	return Func(func(ctx context.Context, expression string) (bool, error) {
		cctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return p.Probe(cctx, expression)
	})
}
