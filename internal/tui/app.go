// Package tui provides the terminal user interface for taskwright.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mseverin/taskwright/internal/engine"
	"github.com/mseverin/taskwright/pkg/models"
)

// EventMsg wraps an engine event for the TUI.
type EventMsg engine.Event

// StreamClosedMsg signals that the engine has finished emitting events.
type StreamClosedMsg struct{}

// taskRow is the TUI's view of one task.
type taskRow struct {
	id          string
	description string
	status      models.TaskStatus
	attempt     int
	detail      string
}

// App is the main bubbletea model. It consumes the engine's event stream and
// renders a live task list.
type App struct {
	events  <-chan engine.Event
	cancel  context.CancelFunc
	spinner spinner.Model

	goal     string
	rows     []taskRow
	index    map[string]int
	started  time.Time
	done     bool
	doneMsg  string
	quitting bool
	width    int
}

// New creates a TUI over the given event stream. The cancel function is
// invoked when the user quits mid-run, so the engine can wind down.
func New(goal string, events <-chan engine.Event, cancel context.CancelFunc) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &App{
		events:  events,
		cancel:  cancel,
		spinner: sp,
		goal:    goal,
		index:   make(map[string]int),
		started: time.Now(),
		width:   80,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.waitForEvent())
}

// waitForEvent blocks on the engine's event channel.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-a.events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg(ev)
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			if a.cancel != nil {
				a.cancel()
			}
			if a.done {
				return a, tea.Quit
			}
			// Keep consuming events so the engine can finish.
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(engine.Event(msg))
		return a, a.waitForEvent()

	case StreamClosedMsg:
		a.done = true
		return a, tea.Quit
	}

	return a, nil
}

// apply folds one engine event into the view state.
func (a *App) apply(ev engine.Event) {
	switch ev.Type {
	case engine.EventRunStarted:
		a.goal = ev.Message
	case engine.EventRunDone:
		a.done = true
		a.doneMsg = ev.Message
	case engine.EventRunCanceled:
		a.doneMsg = "canceling..."
	case engine.EventTaskReady, engine.EventTaskStarted, engine.EventTaskSucceeded,
		engine.EventTaskRetrying, engine.EventTaskFailed, engine.EventTaskSkipped:
		i, ok := a.index[ev.TaskID]
		if !ok {
			a.index[ev.TaskID] = len(a.rows)
			a.rows = append(a.rows, taskRow{id: ev.TaskID, description: ev.Description})
			i = len(a.rows) - 1
		}
		a.rows[i].status = ev.NewStatus
		if ev.Attempt > 0 {
			a.rows[i].attempt = ev.Attempt
		}
		a.rows[i].detail = ev.Message
		if ev.Type == engine.EventTaskRetrying {
			a.rows[i].detail = "retrying: " + ev.Strategy
		}
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	statusStyle = map[models.TaskStatus]lipgloss.Style{
		models.TaskStatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		models.TaskStatusReady:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		models.TaskStatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.TaskStatusSucceeded: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.TaskStatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.TaskStatusSkipped:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("taskwright"))
	b.WriteString(dimStyle.Render("  " + a.goal))
	b.WriteString("\n\n")

	for _, row := range a.rows {
		marker := "  "
		if row.status == models.TaskStatusRunning {
			marker = a.spinner.View()
		}
		style, ok := statusStyle[row.status]
		if !ok {
			style = dimStyle
		}
		line := fmt.Sprintf("%s %-9s %s", marker, row.status, truncate(row.description, a.width-14))
		if row.attempt > 1 {
			line += dimStyle.Render(fmt.Sprintf(" (attempt %d)", row.attempt))
		}
		if row.detail != "" && row.status != models.TaskStatusSucceeded {
			line += dimStyle.Render("  " + truncate(row.detail, 48))
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if a.done {
		b.WriteString(titleStyle.Render("done: ") + a.doneMsg + "\n")
	} else {
		b.WriteString(dimStyle.Render(fmt.Sprintf("elapsed %s  ·  q to cancel", time.Since(a.started).Round(time.Second))))
		b.WriteString("\n")
	}

	return b.String()
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
