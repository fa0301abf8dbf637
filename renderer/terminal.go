package renderer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/a2y-d5l/pyfreeze/engine"
)

// Status symbols shown in the full-screen header and the summary.
const (
	SymbolRunning   = "●"
	SymbolSucceeded = "✓"
	SymbolFailed    = "✗"
	SymbolCancelled = "⚠"
)

// Palette colours the status lines. Output lines of the packaging tool are
// never coloured.
type Palette struct {
	Running   *color.Color
	Success   *color.Color
	Failure   *color.Color
	Cancel    *color.Color
	Secondary *color.Color
}

// NewPalette returns the status colours. When enabled is false every colour
// renders plain text; when true, fatih/color still drops colours if stdout is
// not a terminal or NO_COLOR is set.
func NewPalette(enabled bool) Palette {
	p := Palette{
		Running:   color.New(color.FgHiGreen),
		Success:   color.New(color.FgGreen),
		Failure:   color.New(color.FgRed),
		Cancel:    color.New(color.FgYellow),
		Secondary: color.New(color.Faint),
	}
	if !enabled {
		for _, c := range []*color.Color{p.Running, p.Success, p.Failure, p.Cancel, p.Secondary} {
			c.DisableColor()
		}
	}
	return p
}

// ForResult picks the colour for a terminal state.
func (p Palette) ForResult(res engine.Result) *color.Color {
	switch res.State {
	case engine.StateSucceeded:
		return p.Success
	case engine.StateCancelled:
		return p.Cancel
	case engine.StateRunning, engine.StateIdle:
		return p.Running
	default:
		return p.Failure
	}
}

// OutcomeMessage is the console line announcing how a build ended. It is
// empty for a cancelled build, whose notice comes from the session itself.
func OutcomeMessage(res engine.Result) string {
	switch res.State {
	case engine.StateSucceeded:
		return "--- build succeeded ---"
	case engine.StateFailed:
		return fmt.Sprintf("--- build failed, exit code %d ---", res.ExitCode)
	default:
		return ""
	}
}

// FormatStatus formats a session state as a short human-readable string.
//
// Return values:
//   - "running": the session has not finished
//   - "ok": exit code 0
//   - "exit code N": the packaging process failed with code N
//   - "error: <msg>": the process could not be run or its output not read
//   - "cancelled": the user cancelled the build
func FormatStatus(c *Console) string {
	if !c.Done {
		return "running"
	}
	res := c.Result
	switch res.State {
	case engine.StateSucceeded:
		return "ok"
	case engine.StateCancelled:
		return "cancelled"
	}
	if res.ExitCode == engine.NoExitStatus && res.Err != nil {
		return fmt.Sprintf("error: %v", res.Err)
	}
	return fmt.Sprintf("exit code %d", res.ExitCode)
}

func statusSymbol(c *Console) string {
	if !c.Done {
		return SymbolRunning
	}
	switch c.Result.State {
	case engine.StateSucceeded:
		return SymbolSucceeded
	case engine.StateCancelled:
		return SymbolCancelled
	default:
		return SymbolFailed
	}
}

// clearScreen clears the terminal screen and moves the cursor to the top-left.
//
// ANSI codes used:
//   - \x1b[H: Move cursor to home position (1,1)
//   - \x1b[2J: Clear entire screen
func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\x1b[H\x1b[2J")
}

// RenderScreen performs a full-screen re-render of the console.
// This is the renderer for interactive TTY mode.
//
// Behavior:
//  1. Skip if the console is not dirty
//  2. Clear the entire screen with ANSI codes
//  3. Header: "● Running <Name>… [<status>]"
//  4. The last lines of output that fit in height (all lines if height <= 0)
//  5. Footer with instructions; clear the dirty flag
//
// Output format example:
//
//	● Running pyinstaller… [running]
//	    123 INFO: Analyzing main.py
//	    456 INFO: Processing module hooks...
//
//	Press Ctrl+C to cancel. Output updates in real time.
func RenderScreen(w io.Writer, c *Console, palette Palette, height int) {
	if !c.Dirty {
		return
	}

	clearScreen(w)

	header := fmt.Sprintf("%s Running %s… [%s]", statusSymbol(c), c.Name, FormatStatus(c))
	fmt.Fprintln(w, palette.ForResult(headerResult(c)).Sprint(header))

	lines := c.Lines
	// Header, blank separator and footer take three rows.
	if room := height - 3; height > 0 && room >= 0 && len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintf(w, "    %s\n", line)
	}

	fmt.Fprintln(w)
	if c.Done {
		fmt.Fprintln(w, palette.Secondary.Sprint("Build finished."))
	} else {
		fmt.Fprintln(w, palette.Secondary.Sprint("Press Ctrl+C to cancel. Output updates in real time."))
	}
	c.Dirty = false
}

func headerResult(c *Console) engine.Result {
	if !c.Done {
		return engine.Result{State: engine.StateRunning}
	}
	return c.Result
}

// WriteFinalSummary prints a concise summary of the build to w (normally
// stderr, so it stays visible when stdout is redirected).
//
// Format:
//
//	Summary:
//	  ✓ pyinstaller: ok (12.4s)
//	    dist: /work/app/output/dist
func WriteFinalSummary(w io.Writer, c *Console, palette Palette, distDir string) {
	fmt.Fprintln(w, "\nSummary:")
	line := fmt.Sprintf("  %s %s: %s (%s)", statusSymbol(c), c.Name, FormatStatus(c),
		c.Result.Duration.Round(100*time.Millisecond))
	fmt.Fprintln(w, palette.ForResult(headerResult(c)).Sprint(line))
	if c.Done && c.Result.State == engine.StateSucceeded && distDir != "" {
		fmt.Fprintf(w, "    dist: %s\n", distDir)
	}
}

// IsTTY reports whether f is an interactive terminal. This is used to choose
// between the full-screen and incremental renderers.
//
// Returns false for piped output, redirected output and CI environments
// without a TTY.
func IsTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalHeight returns the number of rows of the terminal behind f, or 0
// when it cannot be determined.
func TerminalHeight(f *os.File) int {
	_, h, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return h
}
