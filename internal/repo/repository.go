package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccessDenied  = errors.New("access denied")
	ErrInvalidQuery  = errors.New("invalid query")
	ErrSessionClosed = errors.New("session closed")
)

// Credential identifies who a session runs as. Subservice is mapped to a
// backend principal by the adapter (a memory grant, a postgres role).
type Credential struct {
	Subservice string
}

// Ports (interfaces). The memory, sqlite and postgres adapters implement them.
type Repository interface {
	OpenSession(ctx context.Context, cred Credential) (Session, error)
}

// Session is a scoped connection; callers must Close it.
type Session interface {
	ExecuteQuery(ctx context.Context, expression string) (NodeIterator, error)
	Close() error
}

// NodeIterator walks query matches. Close must be called when done.
type NodeIterator interface {
	Next() bool
	Path() string
	Err() error
	Close() error
}

// SliceIterator iterates over an in-memory list of paths.
type SliceIterator struct {
	paths []string
	i     int
}

func NewSliceIterator(paths []string) *SliceIterator {
	return &SliceIterator{paths: paths, i: -1}
}

func (s *SliceIterator) Next() bool {
	if s.i+1 >= len(s.paths) {
		return false
	}
	s.i++
	return true
}

func (s *SliceIterator) Path() string {
	if s.i < 0 || s.i >= len(s.paths) {
		return ""
	}
	return s.paths[s.i]
}

func (s *SliceIterator) Err() error   { return nil }
func (s *SliceIterator) Close() error { return nil }

// NodePath validates an absolute node path and drops trailing slashes, so
// "/a/b/" and "/a/b" name the same node. "/" stays the root.
func NodePath(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("node path %q is not absolute", path)
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "/", nil
	}
	return path, nil
}

// Lineage returns every ancestor of path (excluding "/") followed by path
// itself, in top-down order.
func Lineage(path string) []string {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil
	}
	var out []string
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			out = append(out, path[:i])
		}
	}
	return append(out, path)
}
