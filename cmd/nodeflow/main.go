package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "nodeflow",
	Short: "Declarative dataflow graphs on a task scheduler",
	Long: `Nodeflow builds dataflow graphs from YAML definitions: named nodes
produce and consume values by string key, dependencies are inferred from
which keys a node reads, and values travel through single-assignment
channels.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(runCmd, validateCmd, dumpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
