package probe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeout_BoundsHungProbe(t *testing.T) {
	hung := Func(func(ctx context.Context, _ string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	p := Timeout(hung, 20*time.Millisecond)

	start := time.Now()
	_, err := p.Probe(context.Background(), similarityQuery)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout did not bound the probe")
	}
}

func TestTimeout_DisabledReturnsSameProber(t *testing.T) {
	sp := &scriptedProber{}
	if got := Timeout(sp, 0); got != Prober(sp) {
		t.Fatalf("non-positive timeout should return the prober unchanged")
	}
}
