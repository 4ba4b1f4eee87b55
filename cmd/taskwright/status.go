package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mseverin/taskwright/internal/config"
	"github.com/mseverin/taskwright/internal/state"
)

var (
	statusJSON  bool
	statusWatch bool
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show the state of a run",
	Long: `Display the checkpointed state of a run: each task's status, attempt
count, and last error.

Without an argument, shows the most recent run. --watch re-renders whenever
the state database changes, which tracks a run in another terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit the checkpoint as JSON")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Re-render on state database changes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStateDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runID := ""
	if len(args) == 1 {
		runID = args[0]
	}

	if err := printStatus(db, runID); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}

	w, err := state.NewWatcher(db.Path())
	if err != nil {
		return fmt.Errorf("watch state db: %w", err)
	}
	defer w.Close()

	for range w.Changes() {
		fmt.Println()
		if err := printStatus(db, runID); err != nil {
			return err
		}
	}
	return nil
}

func printStatus(db *state.DB, runID string) error {
	if runID == "" {
		latest, err := db.LatestRun()
		if err != nil {
			fmt.Println("No runs recorded. Run 'taskwright run <goal>' to start.")
			return nil
		}
		runID = latest.ID
	}

	if statusJSON {
		data, err := db.ExportJSON(runID)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}

	cp, err := db.LoadCheckpoint(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run %s [%s]\n", cp.Run.ID, cp.Run.Status)
	fmt.Printf("goal: %s\n", cp.Run.Goal)
	fmt.Printf("started: %s\n\n", cp.Run.StartedAt.Local().Format("2006-01-02 15:04:05"))

	for _, t := range cp.Tasks {
		line := fmt.Sprintf("  %-9s %s", t.Status, t.Description)
		if t.AttemptCount > 1 {
			line += fmt.Sprintf(" (%d attempts)", t.AttemptCount)
		}
		fmt.Println(line)
		if t.LastError != "" {
			fmt.Printf("            %s\n", t.LastError)
		}
	}
	return nil
}
