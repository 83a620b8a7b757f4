package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "searchcaps",
	Short: "Inspect repository search capabilities",
	Long: `searchcaps reports whether similarity search is active on the configured
repository, either by probing it directly or by asking a running API.

Configuration comes from the same environment variables the API reads
(STORE_DRIVER, SQLITE_PATH, DATABASE_URL, SIMILARITY_INDEX_QUERY, ...).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
