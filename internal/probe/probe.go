package probe

import "context"

// Prober answers whether a query expression selects anything.
// Implemented by QueryProber and wrapped by RetryProber and Timeout.
type Prober interface {
	Probe(ctx context.Context, expression string) (bool, error)
}

// Func adapts a plain function to Prober.
type Func func(ctx context.Context, expression string) (bool, error)

func (f Func) Probe(ctx context.Context, expression string) (bool, error) {
	return f(ctx, expression)
}
