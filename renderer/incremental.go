package renderer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a2y-d5l/pyfreeze/engine"
)

// Incremental renders events directly to a writer without clearing the
// screen or buffering. This is the renderer for non-TTY environments such as
// CI/CD pipelines, log files, and piped output.
//
// Output format (Prefix "[%s]", Name "pyinstaller"):
//
//	[pyinstaller] 123 INFO: PyInstaller: 6.3.0
//	[pyinstaller] 456 INFO: Building EXE from EXE-00.toc completed successfully.
//	[pyinstaller] --- build succeeded ---
//
// Output format (with timestamps):
//
//	[2024-11-20T15:30:45Z] [pyinstaller] 123 INFO: PyInstaller: 6.3.0
//
// Prefix format examples:
//   - "[%s]": [pyinstaller] line
//   - "%s:": pyinstaller: line
//   - "": line (no prefix)
type Incremental struct {
	Out     io.Writer
	Palette Palette

	// Name fills the %s of Prefix.
	Name string

	// Prefix is a format string with one %s; empty disables the prefix.
	Prefix string

	// Timestamps prefixes every line with an RFC3339 UTC timestamp.
	Timestamps bool

	now func() time.Time
}

// NewIncremental returns an Incremental writing plain lines to w.
func NewIncremental(w io.Writer, palette Palette) *Incremental {
	return &Incremental{Out: w, Palette: palette}
}

// WriteEvent renders one engine event. Outcome messages are styled by the
// palette; the completion event itself prints nothing because the caller
// decides which outcome message to show.
func (r *Incremental) WriteEvent(pl engine.ProcessLine) {
	if pl.IsComplete {
		return
	}
	if pl.Line == engine.CancelledMessage {
		r.WriteLine(r.Palette.Cancel.Sprint(pl.Line))
		return
	}
	r.WriteLine(pl.Line)
}

// WriteLine writes a single line with the configured prefix.
func (r *Incremental) WriteLine(line string) {
	line = strings.TrimRight(line, "\r\n")

	var b strings.Builder
	if r.Timestamps {
		now := time.Now
		if r.now != nil {
			now = r.now
		}
		fmt.Fprintf(&b, "[%s] ", now().UTC().Format(time.RFC3339))
	}
	if r.Prefix != "" {
		b.WriteString(fmt.Sprintf(r.Prefix, r.Name))
		b.WriteByte(' ')
	}
	b.WriteString(line)

	fmt.Fprintln(r.Out, b.String())
}

// WriteOutcome writes the outcome message for res, if any.
func (r *Incremental) WriteOutcome(res engine.Result) {
	msg := OutcomeMessage(res)
	if msg == "" {
		return
	}
	r.WriteLine(r.Palette.ForResult(res).Sprint(msg))
}
