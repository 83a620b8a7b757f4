// Package search reports the repository's search capabilities, currently
// whether similarity search is active.
package search

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/searchcaps/internal/cache"
	"github.com/hamed0406/searchcaps/internal/metrics"
	"github.com/hamed0406/searchcaps/internal/probe"
)

const (
	Namespace              = "org.apache.sling.jcr.search"
	SimilaritySearchActive = "similarity.search.active"

	// Subservice is the service identity probes log in as. It only needs
	// read access to index definitions.
	Subservice = "search"

	// DefaultQuery returns at least one node when an index is flagged for
	// similarity search.
	DefaultQuery         = "/jcr:root/oak:index//* [@useInSimilarity = true]"
	DefaultCacheLifetime = 60 * time.Second
)

// Config is fixed at construction. A CacheLifetime <= 0 recomputes on every read.
type Config struct {
	SimilarityIndexQuery string
	CacheLifetime        time.Duration
}

// Source is the capability source for Namespace.
type Source struct {
	query   string
	prober  probe.Prober
	log     *zap.Logger
	metrics *metrics.Cache
	cache   *cache.TTL[string]
}

type Option func(*options)

type options struct {
	log     *zap.Logger
	metrics *metrics.Cache
	now     func() time.Time
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Cache) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New(cfg Config, p probe.Prober, opts ...Option) *Source {
	o := options{log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	s := &Source{
		query:   cfg.SimilarityIndexQuery,
		prober:  p,
		log:     o.log.With(zap.String("capability", SimilaritySearchActive)),
		metrics: o.metrics,
	}
	if s.query == "" {
		s.query = DefaultQuery
	}
	s.cache = cache.New(s.similaritySearchActive, cfg.CacheLifetime,
		cache.WithClock(o.now),
		cache.WithLogger(s.log),
		cache.WithMetrics(o.metrics),
	)
	return s
}

func (s *Source) Namespace() string { return Namespace }

// Capabilities never fails in practice: probe errors are reported as the
// capability value.
func (s *Source) Capabilities(ctx context.Context) (map[string]string, error) {
	return map[string]string{
		SimilaritySearchActive: s.cache.Get(ctx),
	}, nil
}

// Refresh drops the cached value; the next read probes again.
func (s *Source) Refresh() { s.cache.Expire() }

func (s *Source) similaritySearchActive(ctx context.Context) string {
	found, err := s.prober.Probe(ctx, s.query)
	var value string
	if err != nil {
		s.metrics.ProbeFailed()
		value = err.Error()
	} else {
		value = strconv.FormatBool(found)
	}
	s.log.Debug("capability_recomputed",
		zap.String("value", value),
		zap.String("query", s.query),
	)
	return value
}
