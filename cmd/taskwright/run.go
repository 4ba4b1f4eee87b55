package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mseverin/taskwright/internal/client"
	"github.com/mseverin/taskwright/internal/config"
	"github.com/mseverin/taskwright/internal/correction"
	"github.com/mseverin/taskwright/internal/decompose"
	"github.com/mseverin/taskwright/internal/engine"
	"github.com/mseverin/taskwright/internal/graph"
	"github.com/mseverin/taskwright/internal/oracle"
	"github.com/mseverin/taskwright/internal/registry"
	"github.com/mseverin/taskwright/internal/state"
	"github.com/mseverin/taskwright/internal/tui"
)

var (
	runPlanFile     string
	runUseTUI       bool
	runConcurrency  int
	runTaskTimeout  time.Duration
	runNoCheckpoint bool
)

// errRunFailed signals a run that finished with failed or unfinished tasks.
// The report already shows the details, so no extra error line is printed.
var errRunFailed = errors.New("run finished with failures")

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Decompose a goal and execute its task graph",
	Long: `Run a goal end to end: an oracle proposes a task breakdown, the
decomposer validates it into an acyclic graph, and the engine executes it
with a bounded worker pool.

By default the breakdown comes from the Anthropic API. Use --plan to execute
a fixed YAML plan file instead, which needs no network or API key:

  goal: ship the release
  tasks:
    - description: tag the commit
    - description: build artifacts
      depends_on: ["0"]

Progress streams to stdout; --tui switches to a live terminal view. Every
terminal task status is checkpointed, so 'taskwright resume' can pick up an
interrupted run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "Execute a YAML plan file instead of asking the oracle")
	runCmd.Flags().BoolVar(&runUseTUI, "tui", false, "Show a live terminal UI")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Worker pool size (default from config)")
	runCmd.Flags().DurationVar(&runTaskTimeout, "task-timeout", 0, "Per-attempt deadline (default from config)")
	runCmd.Flags().BoolVar(&runNoCheckpoint, "no-checkpoint", false, "Skip checkpointing to the state database")
}

func runGoal(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var planner oracle.Oracle
	var reviser correction.Reviser
	if runPlanFile != "" {
		planner = oracle.NewPlanFileOracle(runPlanFile)
	} else {
		llm, err := oracle.NewAnthropicOracle(oracle.AnthropicConfig{
			Model:         anthropic.Model(cfg.Anthropic.Model),
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err != nil {
			return fmt.Errorf("configure oracle: %w", err)
		}
		planner = llm
		reviser = oracle.NewReviser(llm)
	}

	specs, err := planner.Propose(ctx, goal)
	if err != nil {
		return fmt.Errorf("propose breakdown: %w", err)
	}

	g, err := decompose.Decompose(goal, specs, decompose.Options{
		MaxAttempts: cfg.Engine.MaxAttempts,
	})
	if err != nil {
		var derr *decompose.Error
		if errors.As(err, &derr) {
			return fmt.Errorf("decomposition rejected: %w", err)
		}
		return err
	}
	for _, w := range g.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	return executeGraph(ctx, cancel, cfg, g, reviser, false)
}

// executeGraph wires the registry, state store, and renderer around an
// engine run. Shared by run and resume.
func executeGraph(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, g *graph.TaskGraph, reviser correction.Reviser, resume bool) error {
	reg := buildRegistry(cfg)

	concurrency := cfg.Engine.MaxConcurrency
	if runConcurrency > 0 {
		concurrency = runConcurrency
	}
	taskTimeout := cfg.Engine.TaskTimeout
	if runTaskTimeout > 0 {
		taskTimeout = runTaskTimeout
	}

	opts := []engine.Option{}
	if reviser != nil {
		opts = append(opts, engine.WithReviser(reviser))
	}
	if !runNoCheckpoint {
		db, err := openStateDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, engine.WithStore(db))
	}
	if resume {
		opts = append(opts, engine.WithResume())
	}

	e := engine.New(g, reg, engine.Config{
		MaxConcurrency: concurrency,
		TaskTimeout:    taskTimeout,
	}, opts...)

	renderDone := make(chan struct{})
	if runUseTUI {
		app := tui.New(g.Goal(), e.Events(), cancel)
		go func() {
			defer close(renderDone)
			if _, err := tea.NewProgram(app).Run(); err != nil {
				fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
			}
		}()
	} else {
		renderer := tui.NewPlainRenderer(os.Stdout)
		go func() {
			defer close(renderDone)
			renderer.Consume(e.Events())
		}()
	}

	report, err := e.Run(ctx)
	<-renderDone
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Println(tui.RenderReport(report))

	// Returning a sentinel (instead of exiting here) lets deferred cleanup
	// like db.Close run; Execute maps it to exit code 1.
	if report.Failed > 0 || report.Canceled {
		return errRunFailed
	}
	return nil
}

// buildRegistry registers the built-in handlers plus one remote handler per
// configured endpoint, all behind a single resilient client.
func buildRegistry(cfg *config.Config) *registry.Registry {
	reg := registry.New()

	cwd, _ := os.Getwd()
	reg.Register(registry.NewShellHandler(cwd), registry.Meta{
		Keywords: []string{"run", "execute", "command", "script", "build", "compile", "install", "test"},
	})
	reg.Register(registry.EchoHandler{}, registry.Meta{
		Keywords: []string{"echo", "say", "print", "note"},
	})

	if len(cfg.Endpoints) == 0 {
		return reg
	}

	c := client.New(client.NewHTTPTransport(), client.Config{
		Breaker: client.BreakerConfig{
			FailureThreshold: cfg.Client.FailureThreshold,
			RecoveryTimeout:  cfg.Client.RecoveryTimeout,
		},
		Retry: client.RetryConfig{
			MaxAttempts: cfg.Client.RetryAttempts,
			BaseDelay:   cfg.Client.RetryBaseDelay,
			JitterFrac:  0.2,
		},
		HealthTTL:    cfg.Client.HealthTTL,
		ProbeTimeout: cfg.Client.ProbeTimeout,
	})
	for _, ep := range cfg.Endpoints {
		c.AddEndpoint(ep.Name, ep.Address)
		reg.Register(
			registry.NewRemoteHandler(ep.Name, ep.Name, c, ep.Idempotent, cfg.Client.ProbeTimeout*15),
			registry.Meta{Remote: true, Idempotent: ep.Idempotent, Keywords: []string{ep.Name}},
		)
	}
	return reg
}

// openStateDB opens and migrates the checkpoint database, preferring the
// configured path, then a project-local .taskwright/, then the global path.
func openStateDB(cfg *config.Config) (*state.DB, error) {
	path := cfg.State.DBPath
	if path == "" {
		cwd, err := os.Getwd()
		if err == nil {
			if _, statErr := os.Stat(state.ProjectDBPath(cwd)); statErr == nil {
				path = state.ProjectDBPath(cwd)
			}
		}
	}
	if path == "" {
		path = state.GlobalDBPath()
	}

	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return db, nil
}
