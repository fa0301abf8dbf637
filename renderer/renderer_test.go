package renderer

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/pyfreeze/engine"
)

func line(s string) engine.ProcessLine {
	return engine.ProcessLine{Line: s}
}

func done(state engine.State, code int) engine.ProcessLine {
	return engine.ProcessLine{IsComplete: true, Result: engine.Result{State: state, ExitCode: code}}
}

func TestApplyEventLine(t *testing.T) {
	c := NewConsole("pyinstaller", 0, 0)
	c.Dirty = false

	c.ApplyEvent(line("123 INFO: PyInstaller: 6.3.0"))

	assert.Equal(t, []string{"123 INFO: PyInstaller: 6.3.0"}, c.Lines)
	assert.Equal(t, len("123 INFO: PyInstaller: 6.3.0"), c.ByteSize)
	assert.True(t, c.Dirty)
	assert.True(t, c.Running)
	assert.False(t, c.Done)
}

func TestApplyEventCompletion(t *testing.T) {
	c := NewConsole("pyinstaller", 0, 0)

	c.ApplyEvent(done(engine.StateFailed, 2))
	c.ApplyEvent(line("late"))
	c.ApplyEvent(done(engine.StateSucceeded, 0))

	assert.True(t, c.Done)
	assert.False(t, c.Running)
	assert.Equal(t, engine.StateFailed, c.Result.State)
	assert.Empty(t, c.Lines)
}

func TestApplyEventMaxLinesEviction(t *testing.T) {
	c := NewConsole("p", 3, 0)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		c.ApplyEvent(line(s))
	}
	assert.Equal(t, []string{"c", "d", "e"}, c.Lines)
	assert.Equal(t, 3, c.ByteSize)
}

func TestApplyEventMaxBytesEviction(t *testing.T) {
	c := NewConsole("p", 0, 10)
	c.ApplyEvent(line("12345"))
	c.ApplyEvent(line("67890"))
	c.ApplyEvent(line("abc"))

	assert.Equal(t, []string{"67890", "abc"}, c.Lines)
	assert.Equal(t, 8, c.ByteSize)
}

func TestApplyEventDualConstraintEviction(t *testing.T) {
	c := NewConsole("p", 10, 6)
	c.ApplyEvent(line("a"))
	c.ApplyEvent(line("b"))
	c.ApplyEvent(line("oversized"))

	// A single line over the byte limit evicts everything, itself included.
	assert.Empty(t, c.Lines)
	assert.Equal(t, 0, c.ByteSize)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(engine.Result{State: engine.StateSucceeded}))
	assert.Equal(t, ExitFailure, ExitCode(engine.Result{State: engine.StateFailed, ExitCode: 2}))
	assert.Equal(t, ExitCancelled, ExitCode(engine.Result{State: engine.StateCancelled}))
}

func TestOutcomeMessage(t *testing.T) {
	assert.Equal(t, "--- build succeeded ---", OutcomeMessage(engine.Result{State: engine.StateSucceeded}))
	assert.Equal(t, "--- build failed, exit code 1 ---",
		OutcomeMessage(engine.Result{State: engine.StateFailed, ExitCode: 1}))
	assert.Equal(t, "--- build failed, exit code -1 ---",
		OutcomeMessage(engine.Result{State: engine.StateFailed, ExitCode: engine.NoExitStatus}))
	assert.Empty(t, OutcomeMessage(engine.Result{State: engine.StateCancelled}))
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name string
		c    *Console
		want string
	}{
		{"Running", &Console{}, "running"},
		{"Succeeded", &Console{Done: true, Result: engine.Result{State: engine.StateSucceeded}}, "ok"},
		{"Cancelled", &Console{Done: true, Result: engine.Result{State: engine.StateCancelled}}, "cancelled"},
		{"ExitCode", &Console{Done: true, Result: engine.Result{State: engine.StateFailed, ExitCode: 3}}, "exit code 3"},
		{"SpawnError", &Console{Done: true, Result: engine.Result{
			State: engine.StateFailed, ExitCode: engine.NoExitStatus, Err: errors.New("not found"),
		}}, "error: not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatStatus(tt.c))
		})
	}
}

func TestIncrementalWriteLine(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewIncremental(&buf, NewPalette(false))
		r.WriteLine("hello\r\n")
		assert.Equal(t, "hello\n", buf.String())
	})

	t.Run("Prefix", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewIncremental(&buf, NewPalette(false))
		r.Name = "pyinstaller"
		r.Prefix = "[%s]"
		r.WriteLine("hello")
		assert.Equal(t, "[pyinstaller] hello\n", buf.String())
	})

	t.Run("Timestamps", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewIncremental(&buf, NewPalette(false))
		r.Timestamps = true
		r.now = func() time.Time { return time.Date(2024, 11, 20, 15, 30, 45, 0, time.UTC) }
		r.WriteLine("hello")
		assert.Equal(t, "[2024-11-20T15:30:45Z] hello\n", buf.String())
	})
}

func TestIncrementalWriteEventAndOutcome(t *testing.T) {
	var buf bytes.Buffer
	r := NewIncremental(&buf, NewPalette(false))

	r.WriteEvent(line("building"))
	r.WriteEvent(line(engine.CancelledMessage))
	r.WriteEvent(done(engine.StateCancelled, -1))
	r.WriteOutcome(engine.Result{State: engine.StateCancelled})
	r.WriteOutcome(engine.Result{State: engine.StateFailed, ExitCode: 1})

	assert.Equal(t, "building\n"+engine.CancelledMessage+"\n--- build failed, exit code 1 ---\n", buf.String())
}

func TestRenderScreen(t *testing.T) {
	c := NewConsole("pyinstaller", 0, 0)
	for _, s := range []string{"one", "", "two", "three"} {
		c.ApplyEvent(line(s))
	}

	var buf bytes.Buffer
	RenderScreen(&buf, c, NewPalette(false), 0)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\x1b[H\x1b[2J"))
	assert.Contains(t, out, "● Running pyinstaller… [running]")
	assert.Contains(t, out, "    one\n\n    two\n    three\n")
	assert.Contains(t, out, "Press Ctrl+C to cancel.")
	assert.False(t, c.Dirty)

	buf.Reset()
	RenderScreen(&buf, c, NewPalette(false), 0)
	assert.Empty(t, buf.String(), "clean console must not re-render")
}

func TestRenderScreenTailsToHeight(t *testing.T) {
	c := NewConsole("pyinstaller", 0, 0)
	for _, s := range []string{"l1", "l2", "l3", "l4", "l5"} {
		c.ApplyEvent(line(s))
	}
	c.ApplyEvent(done(engine.StateSucceeded, 0))

	var buf bytes.Buffer
	RenderScreen(&buf, c, NewPalette(false), 5)

	out := buf.String()
	assert.NotContains(t, out, "l3")
	assert.Contains(t, out, "    l4\n    l5\n")
	assert.Contains(t, out, "✓ Running pyinstaller… [ok]")
	assert.Contains(t, out, "Build finished.")
}

func TestWriteFinalSummary(t *testing.T) {
	c := NewConsole("pyinstaller", 0, 0)
	c.ApplyEvent(engine.ProcessLine{IsComplete: true, Result: engine.Result{
		State:    engine.StateSucceeded,
		Duration: 12400 * time.Millisecond,
	}})

	var buf bytes.Buffer
	WriteFinalSummary(&buf, c, NewPalette(false), "/work/app/output/dist")

	assert.Equal(t, "\nSummary:\n  ✓ pyinstaller: ok (12.4s)\n    dist: /work/app/output/dist\n", buf.String())
}

func TestPaletteDisabled(t *testing.T) {
	p := NewPalette(false)
	assert.Equal(t, "plain", p.Failure.Sprint("plain"))
	assert.Same(t, p.Cancel, p.ForResult(engine.Result{State: engine.StateCancelled}))
	assert.Same(t, p.Failure, p.ForResult(engine.Result{State: engine.StateFailed}))
}

func TestIsTTY(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTTY(f))
	assert.Equal(t, 0, TerminalHeight(f))
}
