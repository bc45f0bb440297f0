// supportd is the multi-tenant support data API server. It ingests help-desk
// tickets and knowledge base articles, summarizes and indexes them, and serves
// retrieval endpoints for agent-assist clients.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is overridden by ldflags at build time.
	Version = "0.9.0"
	Build   = "dev"
)

var rootCmd = &cobra.Command{
	Use:           "supportd",
	Short:         "Support data ingestion and retrieval server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("supportd %s (build %s)\n", Version, Build)
	},
}

func main() {
	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newIngestCmd(), versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
