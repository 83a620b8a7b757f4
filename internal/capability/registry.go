// Package capability collects namespaced capability values from registered
// sources.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrEmptyNamespace     = errors.New("capability source has an empty namespace")
	ErrDuplicateNamespace = errors.New("capability namespace already registered")
)

// Source contributes key/value capabilities under a namespace.
type Source interface {
	Namespace() string
	Capabilities(ctx context.Context) (map[string]string, error)
}

// Snapshot is one collection pass: namespace -> key -> value.
type Snapshot struct {
	Capabilities map[string]map[string]string `json:"capabilities"`
	Errors       map[string]string            `json:"errors,omitempty"`
}

type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	log     *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{sources: make(map[string]Source), log: log}
}

func (r *Registry) Register(s Source) error {
	ns := s.Namespace()
	if ns == "" {
		return ErrEmptyNamespace
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[ns]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNamespace, ns)
	}
	r.sources[ns] = s
	return nil
}

// Namespaces returns the registered namespaces, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for ns := range r.sources {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the source registered under ns.
func (r *Registry) Lookup(ns string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[ns]
	return s, ok
}

// Collect asks every source for its capabilities. A failing source is listed
// under Errors and does not hide the others.
func (r *Registry) Collect(ctx context.Context) Snapshot {
	r.mu.RLock()
	sources := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		sources = append(sources, s)
	}
	r.mu.RUnlock()

	snap := Snapshot{Capabilities: make(map[string]map[string]string, len(sources))}
	for _, s := range sources {
		ns := s.Namespace()
		caps, err := s.Capabilities(ctx)
		if err != nil {
			r.log.Warn("capability_source_failed", zap.String("namespace", ns), zap.Error(err))
			if snap.Errors == nil {
				snap.Errors = make(map[string]string)
			}
			snap.Errors[ns] = err.Error()
			continue
		}
		snap.Capabilities[ns] = caps
	}
	return snap
}
