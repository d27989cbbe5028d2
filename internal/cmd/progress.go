package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/dsstar/internal/event"
	"github.com/Iron-Ham/dsstar/internal/util"
)

// defaultWidth is used when the output is not a terminal.
const defaultWidth = 100

var (
	iterationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// progressRenderer prints one line per session event.
type progressRenderer struct {
	mu     sync.Mutex
	w      io.Writer
	styled bool
	width  int
}

// newProgressRenderer styles output only when w is a terminal.
func newProgressRenderer(w io.Writer) *progressRenderer {
	r := &progressRenderer{w: w, width: defaultWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.styled = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			r.width = width
		}
	}
	return r
}

// Handle renders e. It is an event.Handler.
func (r *progressRenderer) Handle(e event.Event) {
	line := r.line(e)
	if line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.w, util.TruncateANSI(line, r.width))
}

func (r *progressRenderer) line(e event.Event) string {
	switch e := e.(type) {
	case event.SessionStartedEvent:
		return r.muted(fmt.Sprintf("session %s: %d data file(s)", e.SessionID(), e.DataFiles))
	case event.FilesAnalyzedEvent:
		return r.muted(fmt.Sprintf("analyzed %d of %d file(s)", e.Described, e.Requested))
	case event.StepAddedEvent:
		return fmt.Sprintf("%s step %d: %s", r.iteration(e.Iteration), e.Index, util.TruncateString(util.FirstLine(e.Description), r.width))
	case event.ExecutionFinishedEvent:
		if e.Success {
			return fmt.Sprintf("%s %s after %d attempt(s) in %.1fs",
				r.iteration(e.Iteration), r.ok("execution succeeded"), e.Attempts, e.Duration.Seconds())
		}
		return fmt.Sprintf("%s %s after %d attempt(s)", r.iteration(e.Iteration), r.fail("execution failed"), e.Attempts)
	case event.VerificationCompletedEvent:
		if e.Sufficient {
			return fmt.Sprintf("%s %s", r.iteration(e.Iteration), r.ok("answer verified"))
		}
		return fmt.Sprintf("%s %s", r.iteration(e.Iteration), r.muted("not sufficient yet"))
	case event.PlanBacktrackedEvent:
		return fmt.Sprintf("%s backtracked to step %d, discarded %d step(s)", r.iteration(e.Iteration), e.Target, e.Discarded)
	case event.SessionCompletedEvent:
		return r.muted(fmt.Sprintf("session %s after %d iteration(s) in %.1fs", e.Outcome, e.Iterations, e.Duration.Seconds()))
	}
	return ""
}

func (r *progressRenderer) iteration(i int) string {
	return r.render(iterationStyle, fmt.Sprintf("[%d]", i+1))
}

func (r *progressRenderer) ok(s string) string    { return r.render(okStyle, s) }
func (r *progressRenderer) fail(s string) string  { return r.render(failStyle, s) }
func (r *progressRenderer) muted(s string) string { return r.render(mutedStyle, s) }

func (r *progressRenderer) render(style lipgloss.Style, s string) string {
	if !r.styled {
		return s
	}
	return style.Render(s)
}
