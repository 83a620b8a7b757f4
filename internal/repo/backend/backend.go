// Package backend opens the repository adapter selected by configuration.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/searchcaps/internal/config"
	"github.com/hamed0406/searchcaps/internal/repo"
	"github.com/hamed0406/searchcaps/internal/repo/memory"
	pg "github.com/hamed0406/searchcaps/internal/repo/postgres"
	"github.com/hamed0406/searchcaps/internal/repo/sqlite"
	"github.com/hamed0406/searchcaps/internal/search"
)

// Open returns the repository and a func that releases it.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Repository, func(), error) {
	switch cfg.StoreDriver {
	case "", "memory":
		log.Info("repository_open", zap.String("driver", "memory"))
		return memory.New(), func() {}, nil

	case "sqlite":
		st, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		log.Info("repository_open", zap.String("driver", "sqlite"), zap.String("path", cfg.SQLitePath))
		return st, func() {
			if err := st.Close(); err != nil {
				log.Warn("repository_close_error", zap.Error(err))
			}
		}, nil

	case "postgres":
		st, err := pg.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		if cfg.ServiceRole != "" {
			st.MapRole(search.Subservice, cfg.ServiceRole)
		}
		log.Info("repository_open", zap.String("driver", "postgres"), zap.String("role", cfg.ServiceRole))
		return st, st.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
