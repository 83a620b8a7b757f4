// Package cache provides a lazily refreshed, single-flight TTL cache for one
// computed value.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hamed0406/searchcaps/internal/metrics"
)

// Loader computes a fresh value. It is never called concurrently with itself
// for the same TTL.
type Loader[T any] func(ctx context.Context) T

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// TTL caches the result of a Loader for a fixed lifetime.
//
// Reads of a fresh value take no lock. When the value is stale, callers join a
// single flight: exactly one of them runs the loader and all of them get its
// result. A lifetime <= 0 disables caching; every Get recomputes.
type TTL[T any] struct {
	load    Loader[T]
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Cache

	cur   atomic.Pointer[entry[T]]
	group singleflight.Group
}

type Option func(*options)

type options struct {
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Cache
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Cache) Option {
	return func(o *options) { o.metrics = m }
}

func New[T any](load func(ctx context.Context) T, ttl time.Duration, opts ...Option) *TTL[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return &TTL[T]{
		load:    load,
		ttl:     ttl,
		now:     o.now,
		log:     o.log,
		metrics: o.metrics,
	}
}

// Get returns the cached value, recomputing it first if it is missing or stale.
func (c *TTL[T]) Get(ctx context.Context) T {
	if e, ok := c.fresh(); ok {
		c.log.Debug("cache_hit")
		c.metrics.Hit()
		return e.value
	}

	// The flight outlives any single caller, so it must not inherit one
	// caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	v, _, _ := c.group.Do("refresh", func() (any, error) {
		// Another flight may have finished between our check and joining.
		if e, ok := c.fresh(); ok {
			return e.value, nil
		}
		start := c.now()
		val := c.load(flightCtx)
		done := c.now()
		c.cur.Store(&entry[T]{value: val, expiresAt: done.Add(c.ttl)})
		c.metrics.Recomputed(done.Sub(start))
		return val, nil
	})
	return v.(T)
}

// Expire drops the current value so that the next Get recomputes.
func (c *TTL[T]) Expire() {
	c.cur.Store(nil)
}

// ExpiresAt reports when the current value goes stale. ok is false when
// nothing has been computed yet.
func (c *TTL[T]) ExpiresAt() (t time.Time, ok bool) {
	e := c.cur.Load()
	if e == nil {
		return time.Time{}, false
	}
	return e.expiresAt, true
}

func (c *TTL[T]) fresh() (*entry[T], bool) {
	e := c.cur.Load()
	if e == nil || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e, true
}
