package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mseverin/taskwright/internal/engine"
	"github.com/mseverin/taskwright/pkg/models"
)

var (
	reportHeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	reportBoxStyle    = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("63")).
				Padding(0, 1)
)

// RenderReport formats a final run report for the terminal.
func RenderReport(r *engine.Report) string {
	var b strings.Builder

	b.WriteString(reportHeaderStyle.Render("Run Report"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(r.Goal))
	b.WriteString("\n\n")

	for _, t := range r.Tasks {
		style, ok := statusStyle[t.Status]
		if !ok {
			style = dimStyle
		}
		b.WriteString(style.Render(fmt.Sprintf("%-9s", t.Status)))
		b.WriteString(" " + t.Description)
		if n := len(t.Attempts); n > 1 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d attempts)", n)))
		}
		b.WriteString("\n")
		if t.Status == models.TaskStatusFailed && t.Error != "" {
			b.WriteString(dimStyle.Render("          " + truncate(t.Error, 70)))
			b.WriteString("\n")
		}
		for _, a := range t.Attempts {
			if a.Strategy == "" {
				continue
			}
			b.WriteString(dimStyle.Render(fmt.Sprintf("          attempt %d: %s", a.Number, a.Strategy)))
			b.WriteString("\n")
		}
	}

	summary := fmt.Sprintf("%s  ·  %s", r.Summary(), r.Duration.Round(time.Millisecond).String())
	b.WriteString("\n")
	b.WriteString(reportBoxStyle.Render(summary))
	b.WriteString("\n")

	for _, w := range r.Warnings {
		b.WriteString(dimStyle.Render("warning: " + w))
		b.WriteString("\n")
	}

	return b.String()
}
