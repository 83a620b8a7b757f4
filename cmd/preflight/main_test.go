package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hamed0406/searchcaps/internal/config"
	"github.com/hamed0406/searchcaps/internal/search"
)

func TestCheck(t *testing.T) {
	env := map[string]string{"PUBLIC_API_KEYS": "a, b"}
	getenv := func(k string) string { return env[k] }

	good := config.Config{
		Addr:                 ":8080",
		LogLevel:             "info",
		StoreDriver:          "memory",
		SimilarityIndexQuery: search.DefaultQuery,
		CacheLifetime:        search.DefaultCacheLifetime,
		PublicAPIKeys:        []string{"a", "b"},
	}

	var out, errOut bytes.Buffer
	if !check(&out, &errOut, good, getenv) {
		t.Fatalf("expected pass, stderr:\n%s", errOut.String())
	}
	if !strings.Contains(out.String(), "preflight passed") {
		t.Fatalf("missing pass line: %s", out.String())
	}
	if !strings.Contains(errOut.String(), "PUBLIC_API_KEYS contains spaces") {
		t.Fatalf("expected spacing warning, got:\n%s", errOut.String())
	}

	bad := good
	bad.StoreDriver = "postgres" // no DATABASE_URL
	bad.SimilarityIndexQuery = "//*"
	out.Reset()
	errOut.Reset()
	if check(&out, &errOut, bad, getenv) {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(errOut.String(), "DATABASE_URL") || !strings.Contains(errOut.String(), "SIMILARITY_INDEX_QUERY") {
		t.Fatalf("missing failure lines:\n%s", errOut.String())
	}
}
