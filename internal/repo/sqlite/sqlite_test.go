package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/searchcaps/internal/repo"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nodes.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func paths(t *testing.T, s repo.Session, expr string) []string {
	t.Helper()
	it, err := s.ExecuteQuery(context.Background(), expr)
	if err != nil {
		t.Fatalf("ExecuteQuery(%q): %v", expr, err)
	}
	defer it.Close()
	var out []string
	for it.Next() {
		out = append(out, it.Path())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return out
}

func TestStore_SimilarityQuery(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if err := st.AddNode(ctx, "/oak:index/foo", map[string]string{"useInSimilarity": "true"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := st.AddNode(ctx, "/oak:index/bar", map[string]string{"useInSimilarity": "false"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	s, err := st.OpenSession(ctx, repo.Credential{Subservice: "search"})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer s.Close()

	got := paths(t, s, "/jcr:root/oak:index//* [@useInSimilarity = true]")
	if len(got) != 1 || got[0] != "/oak:index/foo" {
		t.Fatalf("want [/oak:index/foo], got %v", got)
	}
	if got := paths(t, s, "/jcr:root/oak:index"); len(got) != 1 {
		t.Fatalf("ancestor node not created: %v", got)
	}
	if got := paths(t, s, "/jcr:root/missing"); len(got) != 0 {
		t.Fatalf("want no match, got %v", got)
	}
}

func TestStore_AddNodeReplacesProperties(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	_ = st.AddNode(ctx, "/oak:index/foo", map[string]string{"useInSimilarity": "true"})
	_ = st.AddNode(ctx, "/oak:index/foo", map[string]string{"useInSimilarity": "false"})

	s, _ := st.OpenSession(ctx, repo.Credential{})
	defer s.Close()
	if got := paths(t, s, "/jcr:root//* [@useInSimilarity = true]"); len(got) != 0 {
		t.Fatalf("stale property still matched: %v", got)
	}
}

func TestStore_SessionIsReadOnly(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	s, err := st.OpenSession(ctx, repo.Credential{})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	sess := s.(*session)
	if _, err := sess.conn.ExecContext(ctx, `INSERT INTO nodes (path) VALUES ('/x')`); err == nil {
		t.Fatalf("expected write to fail on a query_only session")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.ExecuteQuery(ctx, "/jcr:root"); !errors.Is(err, repo.ErrSessionClosed) {
		t.Fatalf("want ErrSessionClosed, got %v", err)
	}

	// the pooled connection is writable again
	if err := st.AddNode(ctx, "/after", nil); err != nil {
		t.Fatalf("AddNode after session: %v", err)
	}
}

func TestStore_InvalidQuery(t *testing.T) {
	st := openTestStore(t)
	s, _ := st.OpenSession(context.Background(), repo.Credential{})
	defer s.Close()
	if _, err := s.ExecuteQuery(context.Background(), "//*"); !errors.Is(err, repo.ErrInvalidQuery) {
		t.Fatalf("want ErrInvalidQuery, got %v", err)
	}
}

func TestStore_InMemorySharedAcrossConnections(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if err := st.AddNode(ctx, "/oak:index/foo", map[string]string{"useInSimilarity": "true"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	// hold a connection so the session below cannot reuse the one that wrote
	held, err := st.db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	defer held.Close()

	s, err := st.OpenSession(ctx, repo.Credential{Subservice: "search"})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer s.Close()
	got := paths(t, s, "/jcr:root/oak:index//* [@useInSimilarity = true]")
	if len(got) != 1 || got[0] != "/oak:index/foo" {
		t.Fatalf("want [/oak:index/foo], got %v", got)
	}

	// a second in-memory store is a different database
	other, err := Open(ctx, ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("Open other: %v", err)
	}
	defer other.Close()
	otherSess, err := other.OpenSession(ctx, repo.Credential{})
	if err != nil {
		t.Fatalf("OpenSession other: %v", err)
	}
	defer otherSess.Close()
	if got := paths(t, otherSess, "/jcr:root//*"); len(got) != 0 {
		t.Fatalf("in-memory stores leaked into each other: %v", got)
	}
}

func TestStore_TrailingSlashNamesSameNode(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	if err := st.AddNode(ctx, "/oak:index/foo/", map[string]string{"useInSimilarity": "true"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := st.AddNode(ctx, "oak:index", nil); err == nil {
		t.Fatalf("expected error for relative path")
	}

	s, _ := st.OpenSession(ctx, repo.Credential{})
	defer s.Close()
	got := paths(t, s, "/jcr:root/oak:index//* [@useInSimilarity = true]")
	if len(got) != 1 || got[0] != "/oak:index/foo" {
		t.Fatalf("want [/oak:index/foo], got %v", got)
	}
}
