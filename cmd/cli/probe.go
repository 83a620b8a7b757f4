package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/searchcaps/internal/config"
	"github.com/hamed0406/searchcaps/internal/probe"
	"github.com/hamed0406/searchcaps/internal/repo"
	"github.com/hamed0406/searchcaps/internal/repo/backend"
	"github.com/hamed0406/searchcaps/internal/search"
)

var (
	flagProbeQuery   string
	flagProbeTimeout time.Duration
	flagProbeVerbose bool
)

func init() {
	probeCmd.Flags().StringVarP(&flagProbeQuery, "query", "q", "", "query to run instead of SIMILARITY_INDEX_QUERY")
	probeCmd.Flags().DurationVarP(&flagProbeTimeout, "timeout", "t", 0, "bound the probe (0 uses PROBE_TIMEOUT_MS)")
	probeCmd.Flags().BoolVarP(&flagProbeVerbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the configured repository once, bypassing any cache",
	Long: `Run the similarity index query against the repository selected by
STORE_DRIVER and print the capability the way the API would report it:
"true", "false", or the probe error.

	Examples:
	  STORE_DRIVER=sqlite SQLITE_PATH=./nodes.db searchcaps probe
	  searchcaps probe -q "/jcr:root/oak:index/vectors" -t 2s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromEnv()
		if flagProbeQuery != "" {
			cfg.SimilarityIndexQuery = flagProbeQuery
		}
		if flagProbeTimeout > 0 {
			cfg.ProbeTimeout = flagProbeTimeout
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log := zap.NewNop()
		if flagProbeVerbose {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			log = l
		}

		store, closeStore, err := backend.Open(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		return runProbe(cmd.Context(), store, cfg, log, cmd.OutOrStdout())
	},
}

// runProbe builds a zero-lifetime source so every call reaches the repository.
func runProbe(ctx context.Context, store repo.Repository, cfg config.Config, log *zap.Logger, out io.Writer) error {
	var p probe.Prober = probe.NewQueryProber(store, repo.Credential{Subservice: search.Subservice}, log)
	if cfg.RetryAttempts > 1 {
		p = &probe.RetryProber{Inner: p, Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
	}
	p = probe.Timeout(p, cfg.ProbeTimeout)

	src := search.New(search.Config{SimilarityIndexQuery: cfg.SimilarityIndexQuery}, p, search.WithLogger(log))
	caps, err := src.Capabilities(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s/%s=%s\n", src.Namespace(), search.SimilaritySearchActive, caps[search.SimilaritySearchActive])
	return err
}
