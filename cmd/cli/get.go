package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/searchcaps/internal/capability"
)

var (
	flagGetBase string
	flagGetKey  string
	flagGetJSON bool
)

func init() {
	getCmd.Flags().StringVar(&flagGetBase, "api", "", "API base URL (default $API_BASE or http://localhost:8080)")
	getCmd.Flags().StringVarP(&flagGetKey, "key", "k", "", "API key (default $API_KEY)")
	getCmd.Flags().BoolVar(&flagGetJSON, "json", false, "print the raw JSON snapshot")

	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch the capability snapshot from a running API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base := flagGetBase
		if base == "" {
			base = os.Getenv("API_BASE")
		}
		if base == "" {
			base = "http://localhost:8080"
		}
		key := flagGetKey
		if key == "" {
			key = os.Getenv("API_KEY")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		snap, err := fetchSnapshot(ctx, http.DefaultClient, base, key)
		if err != nil {
			return err
		}
		return printSnapshot(cmd.OutOrStdout(), snap, flagGetJSON)
	},
}

func fetchSnapshot(ctx context.Context, c *http.Client, base, key string) (capability.Snapshot, error) {
	var snap capability.Snapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/capabilities", nil)
	if err != nil {
		return snap, err
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := c.Do(req)
	if err != nil {
		return snap, fmt.Errorf("contact API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("API returned status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// printSnapshot writes one namespace/key=value line per capability, sorted.
func printSnapshot(w io.Writer, snap capability.Snapshot, raw bool) error {
	if raw {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	var lines []string
	for ns, caps := range snap.Capabilities {
		for k, v := range caps {
			lines = append(lines, fmt.Sprintf("%s/%s=%s", ns, k, v))
		}
	}
	for ns, e := range snap.Errors {
		lines = append(lines, fmt.Sprintf("%s: error: %s", ns, e))
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
