package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mseverin/taskwright/internal/config"
	"github.com/mseverin/taskwright/internal/engine"
	"github.com/mseverin/taskwright/internal/state"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume an interrupted run from its checkpoint",
	Long: `Resume a run from the state database. Tasks that already reached a
terminal status keep it; anything that was pending or in flight when the run
stopped is executed again.

Without an argument, the most recent run is resumed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: resumeRun,
}

func resumeRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStateDB(cfg)
	if err != nil {
		return err
	}

	runID := ""
	if len(args) == 1 {
		runID = args[0]
	} else {
		latest, err := db.LatestRun()
		if err != nil {
			if errors.Is(err, state.ErrRunNotFound) {
				db.Close()
				return fmt.Errorf("no runs to resume")
			}
			db.Close()
			return err
		}
		runID = latest.ID
	}

	cp, err := db.LoadCheckpoint(runID)
	db.Close() // executeGraph reopens; resume shares the same path
	if err != nil {
		return err
	}

	g, err := engine.RestoreGraph(cp)
	if err != nil {
		return err
	}

	remaining := 0
	for _, t := range g.Tasks() {
		if !t.Status.Terminal() {
			remaining++
		}
	}
	fmt.Printf("resuming run %s: %d of %d tasks remaining\n", runID, remaining, g.Size())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return executeGraph(ctx, cancel, cfg, g, nil, true)
}

func init() {
	resumeCmd.Flags().BoolVar(&runUseTUI, "tui", false, "Show a live terminal UI")
	resumeCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Worker pool size (default from config)")
}
