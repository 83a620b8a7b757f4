// Package sqlite stores the node tree in a SQLite file through the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/searchcaps/internal/repo"
)

var _ repo.Repository = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
  path TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS properties (
  path  TEXT NOT NULL REFERENCES nodes(path) ON DELETE CASCADE,
  name  TEXT NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (path, name)
);

CREATE INDEX IF NOT EXISTS idx_properties_name_value ON properties (name, value);

INSERT OR IGNORE INTO nodes (path) VALUES ('/');
`

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

var memorySeq atomic.Int64

// dataSource maps ":memory:" to a named shared-cache in-memory database.
// A plain ":memory:" gives every pooled connection its own empty database,
// so sessions would never see the schema or the nodes. Each Open gets its
// own name, so two in-memory stores stay independent.
func dataSource(path string) string {
	if path != ":memory:" {
		return path
	}
	return fmt.Sprintf("file:searchcaps-mem-%d?mode=memory&cache=shared", memorySeq.Add(1))
}

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" opens a private in-memory database that lives until Close.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dataSource(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// An in-memory database disappears with its last connection; never let
	// the pool drop idle ones.
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// AddNode creates or replaces the node at path and its properties; missing
// ancestors are created empty.
func (s *Store) AddNode(ctx context.Context, path string, props map[string]string) (err error) {
	if path, err = repo.NodePath(path); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	for _, p := range repo.Lineage(path) {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO nodes (path) VALUES (?)`, p); err != nil {
			return fmt.Errorf("insert node %s: %w", p, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM properties WHERE path = ?`, path); err != nil {
		return fmt.Errorf("clear properties: %w", err)
	}
	for k, v := range props {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO properties (path, name, value) VALUES (?, ?, ?)`, path, k, v); err != nil {
			return fmt.Errorf("insert property %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// OpenSession pins one connection and makes it read-only for its lifetime.
func (s *Store) OpenSession(ctx context.Context, cred repo.Credential) (repo.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `PRAGMA query_only = ON`); err != nil {
		return nil, multierr.Append(fmt.Errorf("set query_only: %w", err), conn.Close())
	}
	s.log.Debug("sqlite_session_opened", zap.String("subservice", cred.Subservice))
	return &session{conn: conn}, nil
}

type session struct {
	conn   *sql.Conn
	closed bool
}

func (s *session) ExecuteQuery(ctx context.Context, expression string) (repo.NodeIterator, error) {
	if s.closed {
		return nil, repo.ErrSessionClosed
	}
	q, err := repo.ParseQuery(expression)
	if err != nil {
		return nil, err
	}
	stmt, args := q.SQL(func(int) string { return "?" })
	rows, err := s.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	return &rowsIterator{rows: rows}, nil
}

// Close hands the connection back writable, since the pool reuses it.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, err := s.conn.ExecContext(context.Background(), `PRAGMA query_only = OFF`)
	return multierr.Append(err, s.conn.Close())
}

type rowsIterator struct {
	rows *sql.Rows
	path string
	err  error
}

func (r *rowsIterator) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	if err := r.rows.Scan(&r.path); err != nil {
		r.err = fmt.Errorf("scan node: %w", err)
		return false
	}
	return true
}

func (r *rowsIterator) Path() string { return r.path }

func (r *rowsIterator) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *rowsIterator) Close() error { return r.rows.Close() }
