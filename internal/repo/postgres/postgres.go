package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

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

INSERT INTO nodes (path) VALUES ('/') ON CONFLICT DO NOTHING;
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger

	// subservice -> database role; empty map means sessions keep the pool's login role
	roles map[string]string
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log, roles: make(map[string]string)}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// MapRole makes sessions for subservice run as role. Once any role is mapped,
// unmapped subservices are refused.
func (s *Store) MapRole(subservice, role string) {
	s.roles[subservice] = role
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// AddNode creates or replaces the node at path and its properties.
func (s *Store) AddNode(ctx context.Context, path string, props map[string]string) error {
	path, err := repo.NodePath(path)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, p := range repo.Lineage(path) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO nodes (path) VALUES ($1) ON CONFLICT DO NOTHING`, p); err != nil {
				return fmt.Errorf("insert node %s: %w", p, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM properties WHERE path = $1`, path); err != nil {
			return fmt.Errorf("clear properties: %w", err)
		}
		for k, v := range props {
			if _, err := tx.Exec(ctx,
				`INSERT INTO properties (path, name, value) VALUES ($1, $2, $3)`, path, k, v); err != nil {
				return fmt.Errorf("insert property %s: %w", k, err)
			}
		}
		return nil
	})
}

// OpenSession acquires a pooled connection and, when a role is mapped for the
// credential, switches to it until Close.
func (s *Store) OpenSession(ctx context.Context, cred repo.Credential) (repo.Session, error) {
	role, mapped := s.roles[cred.Subservice]
	if len(s.roles) > 0 && !mapped {
		return nil, fmt.Errorf("%w: no role mapped for subservice %q", repo.ErrAccessDenied, cred.Subservice)
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}
	if role != "" {
		if _, err := conn.Exec(ctx, "SET ROLE "+pgx.Identifier{role}.Sanitize()); err != nil {
			conn.Release()
			return nil, fmt.Errorf("%w: set role %s: %v", repo.ErrAccessDenied, role, err)
		}
	}
	return &session{conn: conn, role: role, log: s.log}, nil
}

type session struct {
	conn   *pgxpool.Conn
	role   string
	log    *zap.Logger
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
	stmt, args := q.SQL(func(n int) string { return "$" + strconv.Itoa(n) })
	rows, err := s.conn.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	return &rowsIterator{rows: rows}, nil
}

// Close resets the role and returns the connection to the pool. A connection
// whose role could not be reset is closed instead of reused.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.role == "" {
		s.conn.Release()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.conn.Exec(ctx, "RESET ROLE"); err != nil {
		s.log.Warn("pg_reset_role_failed", zap.String("role", s.role), zap.Error(err))
		raw := s.conn.Hijack()
		return multierr.Append(fmt.Errorf("reset role: %w", err), raw.Close(ctx))
	}
	s.conn.Release()
	return nil
}

type rowsIterator struct {
	rows pgx.Rows
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

// Close releases the rows. Read errors are reported by Err, not here.
func (r *rowsIterator) Close() error {
	r.rows.Close()
	return nil
}
