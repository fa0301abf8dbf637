package runner_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/pyfreeze/command"
	"github.com/a2y-d5l/pyfreeze/engine"
	"github.com/a2y-d5l/pyfreeze/history"
	"github.com/a2y-d5l/pyfreeze/runner"
	"github.com/a2y-d5l/pyfreeze/toolchain"
)

// fakeCommand is a test double for engine.Command. It writes its lines after
// Start and exits with code unless it hangs, in which case it exits when
// terminated.
type fakeCommand struct {
	lines   []string
	code    int
	hang    bool
	onStart func()

	pr       *io.PipeReader
	pw       *io.PipeWriter
	exited   chan struct{}
	exitOnce sync.Once
}

func newFakeCommand(code int, lines ...string) *fakeCommand {
	pr, pw := io.Pipe()
	return &fakeCommand{lines: lines, code: code, pr: pr, pw: pw, exited: make(chan struct{})}
}

func (f *fakeCommand) OutputPipe() (io.ReadCloser, error) { return f.pr, nil }

func (f *fakeCommand) Start() error {
	go func() {
		for _, line := range f.lines {
			if _, err := f.pw.Write([]byte(line + "\n")); err != nil {
				return
			}
		}
		if f.onStart != nil {
			f.onStart()
		}
		if !f.hang {
			f.exit()
		}
	}()
	return nil
}

func (f *fakeCommand) exit() {
	f.exitOnce.Do(func() {
		_ = f.pw.Close()
		close(f.exited)
	})
}

func (f *fakeCommand) Wait() error {
	<-f.exited
	if f.code != 0 {
		return &exitError{code: f.code}
	}
	return nil
}

func (f *fakeCommand) Process() engine.ProcessHandle { return fakeHandle{f} }

type fakeHandle struct{ cmd *fakeCommand }

func (h fakeHandle) Terminate() error { h.cmd.exit(); return nil }
func (h fakeHandle) Kill() error      { h.cmd.exit(); return nil }

type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *exitError) ExitCode() int { return e.code }

// factory hands out commands by purpose and records every spec it sees.
type factory struct {
	mu      sync.Mutex
	specs   []engine.ProcessSpec
	build   func() *fakeCommand
	install func() *fakeCommand
}

func (f *factory) create(_ context.Context, spec engine.ProcessSpec) (engine.Command, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	if slices.Contains(spec.Args, "install") && f.install != nil {
		return f.install(), nil
	}
	return f.build(), nil
}

type recorder struct {
	entries []history.Entry
	err     error
}

func (r *recorder) Record(e history.Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func workspace(t *testing.T) command.BuildConfiguration {
	t.Helper()
	dir := t.TempDir()
	python := filepath.Join(dir, "python")
	script := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(python, nil, 0o755))
	require.NoError(t, os.WriteFile(script, []byte("print('hi')\n"), 0o644))
	return command.BuildConfiguration{
		InterpreterPath:  python,
		ScriptPath:       script,
		Mode:             command.SingleFile,
		CleanBeforeBuild: true,
	}
}

func testConfig(t *testing.T, f *factory) (runner.Config, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	tty := false
	cfg := runner.DefaultConfig()
	cfg.Build = workspace(t)
	cfg.CommandFactory = f.create
	cfg.Out = &out
	cfg.ErrOut = &errOut
	cfg.IsTTY = &tty
	cfg.Color = false
	cfg.ShutdownTimeout = time.Second
	return cfg, &out, &errOut
}

func runWithTimeout(t *testing.T, ctx context.Context, cfg runner.Config) (runner.Report, error) {
	t.Helper()
	type outcome struct {
		report runner.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := runner.Run(ctx, cfg)
		done <- outcome{r, err}
	}()
	select {
	case o := <-done:
		return o.report, o.err
	case <-time.After(5 * time.Second):
		t.Fatal("build did not finish")
		return runner.Report{}, nil
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := runner.DefaultConfig()

	assert.Equal(t, 1000, cfg.MaxLines)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.ShowSummary)
	assert.True(t, cfg.Color)
	assert.False(t, cfg.FullScreen)
}

func TestRunSuccess(t *testing.T) {
	f := &factory{build: func() *fakeCommand {
		return newFakeCommand(0, "123 INFO: PyInstaller: 6.3.0", "456 INFO: Build complete!")
	}}
	rec := &recorder{}
	cfg, out, errOut := testConfig(t, f)
	cfg.History = rec

	report, err := runWithTimeout(t, context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, report.ExitCode)
	assert.Equal(t, engine.StateSucceeded, report.Result.State)
	require.NotNil(t, report.CommandLine)
	assert.NotEmpty(t, report.SessionID)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, runner.MsgExecuting+report.CommandLine.String(), lines[0])
	assert.Equal(t, "123 INFO: PyInstaller: 6.3.0", lines[1])
	assert.Equal(t, "456 INFO: Build complete!", lines[2])
	assert.Equal(t, "--- build succeeded ---", lines[3])
	assert.Contains(t, errOut.String(), report.CommandLine.DistDir)

	require.Len(t, f.specs, 1)
	spec := f.specs[0]
	assert.Equal(t, cfg.Build.InterpreterPath, spec.Command)
	assert.Equal(t, report.CommandLine.Args, spec.Args)

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, report.SessionID, e.ID)
	assert.Equal(t, "succeeded", e.State)
	assert.Equal(t, report.CommandLine.DistDir, e.DistDir)
	assert.Equal(t, cfg.Build.ScriptPath, e.Script)
	assert.False(t, e.FinishedAt.Before(e.StartedAt))
}

func TestRunFailure(t *testing.T) {
	f := &factory{build: func() *fakeCommand {
		return newFakeCommand(2, "ERROR: Script file 'app.py' does not exist.")
	}}
	cfg, out, _ := testConfig(t, f)
	cfg.ShowSummary = false

	report, err := runWithTimeout(t, context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ExitCode)
	assert.Equal(t, engine.StateFailed, report.Result.State)
	assert.Equal(t, 2, report.Result.ExitCode)
	assert.Contains(t, out.String(), "--- build failed, exit code 2 ---")
}

func TestRunValidationError(t *testing.T) {
	f := &factory{build: func() *fakeCommand { return newFakeCommand(0) }}
	cfg, out, _ := testConfig(t, f)
	cfg.Build.ScriptPath = ""

	report, err := runWithTimeout(t, context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, command.ErrNoScript)
	assert.Equal(t, runner.ExitUsage, report.ExitCode)
	assert.Nil(t, report.CommandLine)
	assert.Empty(t, out.String())
	assert.Empty(t, f.specs)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &factory{build: func() *fakeCommand {
		cmd := newFakeCommand(0, "building...")
		cmd.hang = true
		cmd.onStart = cancel
		return cmd
	}}
	rec := &recorder{}
	cfg, out, _ := testConfig(t, f)
	cfg.History = rec

	report, err := runWithTimeout(t, ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 130, report.ExitCode)
	assert.Equal(t, engine.StateCancelled, report.Result.State)
	assert.Contains(t, out.String(), runner.MsgCancelling)
	assert.Contains(t, out.String(), engine.CancelledMessage)
	assert.NotContains(t, out.String(), "--- build failed")
	assert.Equal(t, 1, strings.Count(out.String(), runner.MsgCancelling))

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "cancelled", rec.entries[0].State)
}

func TestRunLogOptions(t *testing.T) {
	f := &factory{build: func() *fakeCommand { return newFakeCommand(0, "hello") }}
	cfg, out, _ := testConfig(t, f)
	cfg.LogPrefix = "[%s]"
	cfg.ShowSummary = false

	_, err := runWithTimeout(t, context.Background(), cfg)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "[pyinstaller] hello\n")
}

func TestRunHistoryErrorIsNotFatal(t *testing.T) {
	f := &factory{build: func() *fakeCommand { return newFakeCommand(0) }}
	cfg, _, _ := testConfig(t, f)
	cfg.History = &recorder{err: errors.New("disk full")}

	report, err := runWithTimeout(t, context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ExitCode)
}

func TestRunFullScreenFallsBackWithoutTTY(t *testing.T) {
	f := &factory{build: func() *fakeCommand { return newFakeCommand(0, "line") }}
	cfg, out, _ := testConfig(t, f)
	cfg.FullScreen = true

	_, err := runWithTimeout(t, context.Background(), cfg)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "line\n")
}

func TestRunFullScreen(t *testing.T) {
	f := &factory{build: func() *fakeCommand { return newFakeCommand(0, "line") }}
	cfg, out, _ := testConfig(t, f)
	tty := true
	cfg.IsTTY = &tty
	cfg.FullScreen = true

	report, err := runWithTimeout(t, context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ExitCode)
	assert.Contains(t, out.String(), "Build finished.")
	assert.Contains(t, out.String(), "--- build succeeded ---")
}

func notInstalled(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return []byte("WARNING: Package(s) not found: pyinstaller\n"), &exitError{code: 1}
}

func TestRunPreflight(t *testing.T) {
	t.Run("Installed", func(t *testing.T) {
		f := &factory{build: func() *fakeCommand { return newFakeCommand(0) }}
		cfg, _, _ := testConfig(t, f)
		cfg.Toolchain = &toolchain.Toolchain{
			Output: func(_ context.Context, _ string, _ ...string) ([]byte, error) {
				return []byte("Name: pyinstaller\nVersion: 6.3.0\n"), nil
			},
		}

		report, err := runWithTimeout(t, context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, 0, report.ExitCode)
		assert.Len(t, f.specs, 1)
	})

	t.Run("Declined", func(t *testing.T) {
		f := &factory{build: func() *fakeCommand { return newFakeCommand(0) }}
		cfg, _, _ := testConfig(t, f)
		cfg.Toolchain = &toolchain.Toolchain{Output: notInstalled}
		var asked string
		cfg.Confirm = func(q string) bool { asked = q; return false }

		report, err := runWithTimeout(t, context.Background(), cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, runner.ErrDeclined)
		assert.ErrorIs(t, err, toolchain.ErrNotInstalled)
		assert.Equal(t, 1, report.ExitCode)
		assert.Contains(t, asked, cfg.Build.InterpreterPath)
		assert.Empty(t, f.specs)
	})

	t.Run("AutoInstall", func(t *testing.T) {
		f := &factory{
			build:   func() *fakeCommand { return newFakeCommand(0) },
			install: func() *fakeCommand { return newFakeCommand(0, "Successfully installed pyinstaller-6.3.0") },
		}
		cfg, out, _ := testConfig(t, f)
		cfg.Toolchain = &toolchain.Toolchain{Output: notInstalled}
		cfg.AutoInstall = true

		report, err := runWithTimeout(t, context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, 0, report.ExitCode)
		assert.Contains(t, out.String(), runner.MsgInstalling)
		assert.Contains(t, out.String(), "Successfully installed pyinstaller-6.3.0")
		assert.Contains(t, out.String(), runner.MsgInstalled)

		require.Len(t, f.specs, 2)
		assert.Equal(t, []string{"-m", "pip", "install", "pyinstaller"}, f.specs[0].Args)
		assert.Equal(t, cfg.Build.InterpreterPath, f.specs[0].Command)
	})

	t.Run("InstallFails", func(t *testing.T) {
		f := &factory{
			build:   func() *fakeCommand { return newFakeCommand(0) },
			install: func() *fakeCommand { return newFakeCommand(1, "ERROR: No matching distribution") },
		}
		cfg, out, _ := testConfig(t, f)
		cfg.Toolchain = &toolchain.Toolchain{Output: notInstalled}
		cfg.Confirm = func(string) bool { return true }

		report, err := runWithTimeout(t, context.Background(), cfg)
		require.Error(t, err)
		assert.Equal(t, 1, report.ExitCode)
		assert.Contains(t, out.String(), runner.MsgInstallFailed)
		assert.Len(t, f.specs, 1)
	})

	t.Run("CheckErrorOnlyWarns", func(t *testing.T) {
		f := &factory{build: func() *fakeCommand { return newFakeCommand(0) }}
		cfg, _, _ := testConfig(t, f)
		cfg.Toolchain = &toolchain.Toolchain{
			Output: func(_ context.Context, _ string, _ ...string) ([]byte, error) {
				return nil, os.ErrPermission
			},
		}

		report, err := runWithTimeout(t, context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, 0, report.ExitCode)
	})
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.env")
	require.NoError(t, os.WriteFile(base, []byte("B=2\nA=1\n# comment\n"), 0o600))

	env, err := runner.LoadEnvFiles(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=2"}, env)

	env, err = runner.LoadEnvFiles()
	require.NoError(t, err)
	assert.Nil(t, env)

	_, err = runner.LoadEnvFiles(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}
