package tui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/mseverin/taskwright/internal/engine"
)

// PlainRenderer streams engine events as colored log lines. It is the
// default output when the full TUI is off or stdout is not a terminal.
type PlainRenderer struct {
	w io.Writer
}

// NewPlainRenderer creates a renderer writing to w.
func NewPlainRenderer(w io.Writer) *PlainRenderer {
	return &PlainRenderer{w: w}
}

var (
	plainOK    = color.New(color.FgGreen)
	plainFail  = color.New(color.FgRed)
	plainWarn  = color.New(color.FgYellow)
	plainInfo  = color.New(color.FgCyan)
	plainFaint = color.New(color.Faint)
)

// Consume drains the event stream, printing one line per event. It returns
// when the stream closes.
func (p *PlainRenderer) Consume(events <-chan engine.Event) {
	for ev := range events {
		switch ev.Type {
		case engine.EventRunStarted:
			plainInfo.Fprintf(p.w, "==> %s\n", ev.Message)
		case engine.EventTaskStarted:
			fmt.Fprintf(p.w, "  run   %s (attempt %d)\n", ev.Description, ev.Attempt)
		case engine.EventTaskSucceeded:
			plainOK.Fprintf(p.w, "  ok    %s\n", ev.Description)
		case engine.EventTaskRetrying:
			plainWarn.Fprintf(p.w, "  retry %s: %s (%s)\n", ev.Description, ev.Message, ev.Strategy)
		case engine.EventTaskFailed:
			plainFail.Fprintf(p.w, "  fail  %s: %s\n", ev.Description, ev.Message)
		case engine.EventTaskSkipped:
			plainFaint.Fprintf(p.w, "  skip  %s: %s\n", ev.Description, ev.Message)
		case engine.EventRunCanceled:
			plainWarn.Fprintf(p.w, "==> %s\n", ev.Message)
		case engine.EventRunDone:
			plainInfo.Fprintf(p.w, "==> %s\n", ev.Message)
		}
	}
}
