package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/desertthunder/rulemig/internal/models"
)

// TerminalNotifier writes notifications to a terminal, one line (plus optional hint) each.
type TerminalNotifier struct {
	mu      sync.Mutex
	w       io.Writer
	painter Painter
}

// NewTerminalNotifier creates a TerminalNotifier writing to w (default [os.Stderr]) with p (default [DefaultPalette]).
func NewTerminalNotifier(w io.Writer, p Painter) *TerminalNotifier {
	if w == nil {
		w = os.Stderr
	}
	if p == nil {
		p = DefaultPalette()
	}
	return &TerminalNotifier{w: w, painter: p}
}

// Notify renders n. Write failures are ignored.
func (t *TerminalNotifier) Notify(n models.Notification) {
	msg := Render(t.painter, n)
	if msg == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, msg)
}

// Render formats n with p. Unknown kinds render as an empty string.
func Render(p Painter, n models.Notification) string {
	label := migrationLabel(n)

	switch n.Kind {
	case models.NotifyMigrationFinished:
		return p.OK("✓ "+label+" finished") + "\n" + p.Help("  Review the translated rules before installing them.")
	case models.NotifyMissingCapabilities:
		missing := strings.Join(n.MissingCapabilities, ", ")
		return p.Err("✗ Cannot start "+label) + ": missing privileges " + missing
	case models.NotifyMissingConnector:
		return p.Warn("! Cannot start "+label+": no connector selected") + "\n" +
			p.Help("  Run `rulemig prefs set connector_id <id>` to choose one.")
	default:
		return ""
	}
}

func migrationLabel(n models.Notification) string {
	switch {
	case n.JobName != "":
		return fmt.Sprintf("migration %q", n.JobName)
	case n.JobNumber > 0:
		return fmt.Sprintf("migration #%d", n.JobNumber)
	case n.JobID != "":
		return "migration " + n.JobID
	default:
		return "migration"
	}
}
