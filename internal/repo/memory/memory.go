package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hamed0406/searchcaps/internal/repo"
)

var _ repo.Repository = (*Store)(nil)

// Store is an in-process node tree. With no grants configured every
// subservice may read everything (handy for local dev and tests).
type Store struct {
	mu     sync.RWMutex
	nodes  map[string]map[string]string
	grants map[string][]string

	// sessions opened and not yet closed
	openSessions atomic.Int64
}

func New() *Store {
	return &Store{
		nodes:  map[string]map[string]string{"/": {}},
		grants: make(map[string][]string),
	}
}

// AddNode creates or replaces the node at path, creating missing ancestors.
func (m *Store) AddNode(path string, props map[string]string) error {
	path, err := repo.NodePath(path)
	if err != nil {
		return err
	}
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for p := parent(path); p != "/"; p = parent(p) {
		if _, ok := m.nodes[p]; !ok {
			m.nodes[p] = map[string]string{}
		}
	}
	m.nodes[path] = cp
	return nil
}

// RemoveNode deletes the node at path and its descendants. The root itself
// is never deleted: removing "/" empties the tree and clears the root's
// properties.
func (m *Store) RemoveNode(path string) error {
	path, err := repo.NodePath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if path == "/" {
		m.nodes = map[string]map[string]string{"/": {}}
		return nil
	}
	for p := range m.nodes {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(m.nodes, p)
		}
	}
	return nil
}

// Grant lets subservice read nodes under the given path prefixes.
func (m *Store) Grant(subservice string, prefixes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[subservice] = append(m.grants[subservice], prefixes...)
}

// OpenSessions reports sessions opened and not yet closed.
func (m *Store) OpenSessions() int64 {
	return m.openSessions.Load()
}

func (m *Store) OpenSession(ctx context.Context, cred repo.Credential) (repo.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	prefixes, granted := m.grants[cred.Subservice]
	restricted := len(m.grants) > 0
	m.mu.RUnlock()

	if restricted && !granted {
		return nil, fmt.Errorf("%w: no service user mapped for subservice %q", repo.ErrAccessDenied, cred.Subservice)
	}
	m.openSessions.Add(1)
	return &session{store: m, restricted: restricted, readable: prefixes}, nil
}

type session struct {
	store      *Store
	restricted bool
	readable   []string
	closed     atomic.Bool
}

func (s *session) ExecuteQuery(ctx context.Context, expression string) (repo.NodeIterator, error) {
	if s.closed.Load() {
		return nil, repo.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := repo.ParseQuery(expression)
	if err != nil {
		return nil, err
	}

	s.store.mu.RLock()
	var out []string
	for p, props := range s.store.nodes {
		if s.canRead(p) && q.Matches(p, props) {
			out = append(out, p)
		}
	}
	s.store.mu.RUnlock()

	sort.Strings(out)
	return repo.NewSliceIterator(out), nil
}

func (s *session) canRead(path string) bool {
	if !s.restricted {
		return true
	}
	for _, pre := range s.readable {
		if pre == "/" || path == pre || strings.HasPrefix(path, pre+"/") {
			return true
		}
	}
	return false
}

func (s *session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.store.openSessions.Add(-1)
	return nil
}

func parent(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "/"
	}
	return path[:i]
}
