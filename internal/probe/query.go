package probe

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/searchcaps/internal/repo"
)

// QueryProber runs the expression in a short-lived session opened with a
// low-privilege credential. The session is released on every path.
type QueryProber struct {
	Repo       repo.Repository
	Credential repo.Credential
	Logger     *zap.Logger
}

func NewQueryProber(r repo.Repository, cred repo.Credential, log *zap.Logger) *QueryProber {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueryProber{Repo: r, Credential: cred, Logger: log}
}

func (p *QueryProber) Probe(ctx context.Context, expression string) (found bool, err error) {
	s, err := p.Repo.OpenSession(ctx, p.Credential)
	if err != nil {
		return false, fmt.Errorf("open session as %q: %w", p.Credential.Subservice, err)
	}
	defer func() { err = p.release(err, "session", s.Close()) }()

	it, err := s.ExecuteQuery(ctx, expression)
	if err != nil {
		return false, fmt.Errorf("execute query: %w", err)
	}
	defer func() { err = p.release(err, "iterator", it.Close()) }()

	found = it.Next()
	if ierr := it.Err(); ierr != nil {
		return false, fmt.Errorf("read results: %w", ierr)
	}
	return found, nil
}

// release folds a close failure into a probe that already failed; after a
// successful probe it is only logged, the answer is still good.
func (p *QueryProber) release(err error, what string, cerr error) error {
	if cerr == nil {
		return err
	}
	if err != nil {
		return multierr.Append(err, fmt.Errorf("close %s: %w", what, cerr))
	}
	p.Logger.Warn("probe_close_failed", zap.String("resource", what), zap.Error(cerr))
	return nil
}
