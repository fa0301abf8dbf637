// Package renderer turns the event stream of one build session into console
// output. It consumes engine.ProcessLine events and produces formatted output
// for different environments.
//
// The renderer supports two modes:
//   - Full-screen TTY mode: a live tail of the build log under a status header
//   - Incremental non-TTY mode: line-by-line output for CI/logs
//
// Architecture:
//   - Console: renderable state of the session (bounded line buffer + result)
//   - ApplyEvent: folds engine events into the Console
//   - Incremental / RenderScreen: format and display state
//
// Basic usage with engine events:
//
//	console := renderer.NewConsole("pyinstaller", 1000, 0)
//	out := renderer.NewIncremental(os.Stdout, renderer.NewPalette(true))
//
//	for pl := range events {
//	    console.ApplyEvent(pl)
//	    out.WriteEvent(pl)
//	}
package renderer

import (
	"github.com/a2y-d5l/pyfreeze/engine"
)

// Exit codes reported by the CLI for a finished build.
const (
	ExitSuccess   = 0
	ExitFailure   = 1
	ExitCancelled = 130
)

// Console holds the renderable state of one build session.
//
// The state is updated by ApplyEvent() as engine events arrive, and consumed
// by renderers (RenderScreen, WriteFinalSummary) to produce formatted output.
//
// Memory management:
//   - Lines are stored in a slice (FIFO queue)
//   - Oldest lines are evicted when MaxLines or MaxBytes is exceeded
//   - ByteSize tracks total bytes to enforce byte limit
//
// Example initialization:
//
//	console := &Console{
//	    Name:     "pyinstaller",
//	    Running:  true,
//	    MaxLines: 1000,
//	    MaxBytes: 100000,
//	    Dirty:    true,
//	}
type Console struct {
	// Name is the display name of the session (header and line prefix).
	Name string

	// Lines contains the captured output (stdout + stderr merged).
	// This is a FIFO queue: oldest lines are removed first.
	Lines []string

	// Result is the terminal result. Only meaningful when Done is true.
	Result engine.Result

	// ByteSize is the total number of bytes currently stored in Lines.
	ByteSize int

	// MaxLines is the maximum number of lines to keep. 0 means no limit.
	MaxLines int

	// MaxBytes is the maximum number of bytes to keep. 0 means no limit.
	// When both MaxLines and MaxBytes are set, lines are evicted when
	// EITHER limit is exceeded.
	MaxBytes int

	// Done is true once the completion event has been applied.
	Done bool

	// Running is true from session start until completion.
	Running bool

	// Dirty indicates whether the state has changed since the last render.
	Dirty bool
}

// NewConsole returns a running Console with the given limits.
func NewConsole(name string, maxLines, maxBytes int) *Console {
	return &Console{
		Name:     name,
		MaxLines: maxLines,
		MaxBytes: maxBytes,
		Running:  true,
		Dirty:    true,
	}
}

// ApplyEvent updates the console from an engine event.
//
// Behavior:
//   - Output line: appended, memory limits enforced, marked dirty
//   - Completion: Done=true, Running=false, result stored, marked dirty
//
// Events after the completion event are ignored.
func (c *Console) ApplyEvent(pl engine.ProcessLine) {
	if c.Done {
		return
	}
	if pl.IsComplete {
		c.Done = true
		c.Running = false
		c.Result = pl.Result
		c.Dirty = true
		return
	}
	c.Append(pl.Line)
}

// Append adds a line that did not come from the session, such as the
// executed command echo or an outcome message.
//
// Memory limit enforcement:
//  1. Append new line to Lines slice
//  2. Add line byte count to ByteSize
//  3. While (lines > MaxLines OR bytes > MaxBytes): remove the oldest line
//  4. Mark state as Dirty
func (c *Console) Append(line string) {
	c.Lines = append(c.Lines, line)
	c.ByteSize += len(line)

	for {
		exceedsLineLimit := c.MaxLines > 0 && len(c.Lines) > c.MaxLines
		exceedsByteLimit := c.MaxBytes > 0 && c.ByteSize > c.MaxBytes

		if !exceedsLineLimit && !exceedsByteLimit {
			break
		}
		if len(c.Lines) == 0 {
			break
		}

		oldest := c.Lines[0]
		c.Lines = c.Lines[1:]
		c.ByteSize -= len(oldest)
	}

	c.Dirty = true
}

// ExitCode maps a session result to the CLI exit code.
//
// Logic:
//   - Succeeded: 0
//   - Cancelled: 130 (the shell convention for SIGINT)
//   - Anything else: 1
func ExitCode(res engine.Result) int {
	switch res.State {
	case engine.StateSucceeded:
		return ExitSuccess
	case engine.StateCancelled:
		return ExitCancelled
	default:
		return ExitFailure
	}
}
