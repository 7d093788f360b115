// Command doxstorr is a thin operational shell around the engine: enough
// to create collections, add/get/update/delete documents, run ad-hoc
// queries and transactions, and trigger maintenance, against a data
// directory on disk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "doxstorr",
	Short: "doxstorr is an embedded document database engine",
	Long: `doxstorr stores JSON-like documents in fixed-size block files with
a separate pointer table, a write-ahead journal, secondary indexes and
atomic multi-operation transactions.

This CLI drives a single engine instance against a data directory; it
is meant for operational use and scripting, not as the primary API.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"doxstorr version %s\ncommit: %s\nbuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("data-dir", "", "data directory (required)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (default: <user config dir>/doxstorr/config.yaml)")

	cobra.OnInitialize(func() {
		if err := initConfig(rootCmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	})

	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(documentCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(maintenanceCmd)
}
