package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskwright",
	Short: "Goal decomposition and resilient task execution",
	Long: `Taskwright breaks a high-level goal into a dependency graph of tasks
and executes it with a bounded worker pool.

Failed tasks are retried with auto-corrected approaches; tasks downstream of a
terminal failure are skipped, never run. Every terminal status is checkpointed
to SQLite, so an interrupted run can be resumed where it left off.

Remote capabilities are invoked through a resilient client with per-endpoint
circuit breakers, cached health checks, and retry with exponential backoff.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. A run that finished with failures exits 1
// without an extra error line; the report already enumerates them.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
