// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hamed0406/searchcaps/internal/config"
	"github.com/hamed0406/searchcaps/internal/repo"
)

func main() {
	if !check(os.Stdout, os.Stderr, config.FromEnv(), os.Getenv) {
		os.Exit(1)
	}
}

// check prints findings and reports whether the service can start.
func check(stdout, stderr io.Writer, cfg config.Config, getenv func(string) string) bool {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	if err := cfg.Validate(); err != nil {
		fail(err.Error())
	} else {
		ok("STORE_DRIVER=" + cfg.StoreDriver)
	}

	if _, err := repo.ParseQuery(cfg.SimilarityIndexQuery); err != nil {
		fail("SIMILARITY_INDEX_QUERY: " + err.Error())
	} else {
		ok("SIMILARITY_INDEX_QUERY=" + cfg.SimilarityIndexQuery)
	}

	if cfg.CacheLifetime <= 0 {
		warn("CACHE_LIFETIME_SECONDS <= 0: every read probes the repository.")
	} else {
		ok("CACHE_LIFETIME_SECONDS=" + cfg.CacheLifetime.String())
	}

	if cfg.ProbeTimeout == 0 {
		warn("PROBE_TIMEOUT_MS unset: a hung repository blocks readers until it answers.")
	}

	if cfg.StoreDriver == "postgres" && cfg.ServiceRole == "" {
		warn("SERVICE_ROLE empty: probes run as the login role instead of a read-only role.")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for _, name := range []string{"PUBLIC_API_KEYS", "ALLOWED_ORIGINS"} {
		if strings.Contains(strings.TrimSpace(getenv(name)), " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty: /api/capabilities is open to anyone who can reach it.")
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty: any origin may call the API from a browser.")
	}

	if failed {
		return false
	}
	ok("preflight passed")
	return true
}
