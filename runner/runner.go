// Package runner orchestrates one build: it turns a configuration into a
// command line, makes sure PyInstaller is available, runs the session, renders
// its output and records the outcome.
//
// Basic usage:
//
//	cfg := runner.DefaultConfig()
//	cfg.Build = buildConfiguration
//	report, err := runner.Run(ctx, cfg)
//	if err != nil {
//	    // configuration or preflight problem, nothing was built
//	}
//	os.Exit(report.ExitCode)
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/a2y-d5l/pyfreeze/command"
	"github.com/a2y-d5l/pyfreeze/engine"
	"github.com/a2y-d5l/pyfreeze/history"
	"github.com/a2y-d5l/pyfreeze/logger"
	"github.com/a2y-d5l/pyfreeze/renderer"
	"github.com/a2y-d5l/pyfreeze/toolchain"
)

const (
	// defaultMaxLines is the default number of output lines kept for the
	// full-screen view.
	defaultMaxLines = 1000

	// defaultShutdownTimeout is the default time a cancelled build has to exit.
	defaultShutdownTimeout = 5 * time.Second

	// eventChannelBuffer is the buffer size for session events.
	eventChannelBuffer = 128

	// redrawInterval limits full-screen redraws during bursts of output.
	redrawInterval = 50 * time.Millisecond

	// ExitUsage is the exit code for a configuration that cannot be built.
	ExitUsage = 2

	// SessionName labels the build in the console and in log records.
	SessionName = "pyinstaller"
)

// Messages written to the console around a build.
const (
	MsgExecuting     = "executing command: "
	MsgCancelling    = "cancelling build..."
	MsgInstalling    = "PyInstaller is not installed, attempting to install it..."
	MsgInstalled     = "PyInstaller installed, starting the build."
	MsgInstallFailed = "--- PyInstaller installation failed ---"
)

// ErrDeclined is returned when PyInstaller is missing and the user declined
// to install it.
var ErrDeclined = errors.New("PyInstaller is required to build")

// Recorder persists finished builds. *history.Store implements it.
type Recorder interface {
	Record(e history.Entry) error
}

// Config controls a build run.
type Config struct {
	// Build is the user's configuration.
	Build command.BuildConfiguration

	// Builder validates Build and produces the command line.
	// If nil, command.NewBuilder() is used.
	Builder *command.Builder

	// Toolchain enables the PyInstaller presence check when non-nil. Empty
	// Python, Factory and Encoding fields are filled from this Config.
	Toolchain *toolchain.Toolchain

	// AutoInstall installs a missing PyInstaller without asking.
	AutoInstall bool

	// Confirm asks the user a yes/no question. nil answers no.
	Confirm func(question string) bool

	// CommandFactory creates the processes. If nil, engine.DefaultCommandFactory.
	CommandFactory engine.CommandFactory

	// History receives the finished session. nil disables recording.
	History Recorder

	// Out receives the console. Defaults to os.Stdout.
	Out io.Writer

	// ErrOut receives the final summary. Defaults to os.Stderr.
	ErrOut io.Writer

	// IsTTY overrides TTY detection of Out.
	IsTTY *bool

	// LogPrefix is the per-line prefix format in incremental mode (one %s).
	LogPrefix string

	// Encoding is the output encoding label of the packaging tool.
	Encoding string

	// Env is appended to the inherited environment of the build process.
	Env []string

	// MaxLines bounds the lines kept for the full-screen view.
	MaxLines int

	// ShutdownTimeout bounds how long a cancelled build may take to exit.
	ShutdownTimeout time.Duration

	// FullScreen enables the full-screen view when Out is a terminal.
	FullScreen bool

	// ShowSummary writes a summary to ErrOut after the build.
	ShowSummary bool

	// ShowTimestamps prefixes incremental lines with a timestamp.
	ShowTimestamps bool

	// Color enables coloured status lines.
	Color bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxLines:        defaultMaxLines,
		ShutdownTimeout: defaultShutdownTimeout,
		ShowSummary:     true,
		Color:           true,
	}
}

// Report describes a finished run.
type Report struct {
	// CommandLine is nil when the configuration was rejected.
	CommandLine *command.CommandLine
	SessionID   string
	Result      engine.Result
	ExitCode    int
}

// Run builds the command line, runs the preflight check and the build, and
// returns once the build session has finished.
//
// Errors are returned only when no build was attempted: an invalid
// configuration (ExitUsage) or a missing PyInstaller that was not installed
// (exit code 1). Build failures and cancellation are reported through the
// Report.
func Run(ctx context.Context, cfg Config) (Report, error) {
	cfg = withDefaults(cfg)
	log := logger.FromContext(ctx)

	cl, err := cfg.Builder.Build(cfg.Build)
	if err != nil {
		return Report{ExitCode: ExitUsage}, err
	}

	palette := renderer.NewPalette(cfg.Color)
	out := renderer.NewIncremental(cfg.Out, palette)
	out.Name = SessionName
	out.Prefix = cfg.LogPrefix
	out.Timestamps = cfg.ShowTimestamps

	if err := preflight(ctx, cfg, out); err != nil {
		return Report{CommandLine: cl, ExitCode: renderer.ExitFailure}, err
	}

	spec := engine.ProcessSpec{
		Name:     SessionName,
		Command:  cl.Executable,
		Args:     cl.Argv()[1:],
		Encoding: cfg.Encoding,
		Env:      cfg.Env,
	}
	session := engine.NewSession(spec, cfg.ShutdownTimeout)
	if cfg.CommandFactory != nil {
		session = session.WithCommandFactory(cfg.CommandFactory)
	}
	log.Info("Starting build", "session", session.ID, "script", cfg.Build.ScriptPath, "mode", cfg.Build.Mode)

	console := renderer.NewConsole(SessionName, cfg.MaxLines, 0)
	fullScreen := cfg.FullScreen && *cfg.IsTTY
	height := 0
	if f, ok := cfg.Out.(*os.File); ok && fullScreen {
		height = renderer.TerminalHeight(f)
	}

	emit := func(line string) {
		console.Append(line)
		if !fullScreen {
			out.WriteLine(line)
		}
	}
	emit(MsgExecuting + cl.String())

	startedAt := time.Now()
	events := make(chan engine.ProcessLine, eventChannelBuffer)
	if err := session.Start(ctx, events); err != nil {
		return Report{CommandLine: cl, ExitCode: renderer.ExitFailure}, err
	}

	limiter := rate.NewLimiter(rate.Every(redrawInterval), 1)
	if fullScreen {
		renderer.RenderScreen(cfg.Out, console, palette, height)
	}

	var result engine.Result
	ctxDone := ctx.Done()
	announced := false
	announce := func() {
		if !announced {
			announced = true
			ctxDone = nil
			emit(palette.Cancel.Sprint(MsgCancelling))
		}
	}
loop:
	for {
		select {
		case pl, ok := <-events:
			if !ok {
				break loop
			}
			// The session reacts to ctx on its own goroutine, so its events may
			// win the select against ctx.Done.
			if ctx.Err() != nil && !pl.IsComplete {
				announce()
			}
			console.ApplyEvent(pl)
			if pl.IsComplete {
				result = pl.Result
				continue
			}
			if fullScreen {
				if limiter.Allow() {
					renderer.RenderScreen(cfg.Out, console, palette, height)
				}
			} else {
				out.WriteEvent(pl)
			}

		case <-ctxDone:
			announce()
		}
	}
	finishedAt := time.Now()

	if msg := renderer.OutcomeMessage(result); msg != "" {
		console.Append(msg)
		if !fullScreen {
			out.WriteOutcome(result)
		}
	}
	if fullScreen {
		console.Dirty = true
		renderer.RenderScreen(cfg.Out, console, palette, height)
	}
	if cfg.ShowSummary {
		renderer.WriteFinalSummary(cfg.ErrOut, console, palette, cl.DistDir)
	}

	record(ctx, cfg.History, history.Entry{
		ID:         session.ID,
		Command:    cl.String(),
		Script:     cfg.Build.ScriptPath,
		DistDir:    cl.DistDir,
		State:      result.State.String(),
		ExitCode:   result.ExitCode,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	})

	log.Info("Build finished", "session", session.ID, "state", result.State, "exitCode", result.ExitCode,
		"duration", result.Duration)

	return Report{
		CommandLine: cl,
		SessionID:   session.ID,
		Result:      result,
		ExitCode:    renderer.ExitCode(result),
	}, nil
}

func withDefaults(cfg Config) Config {
	base := DefaultConfig()
	if cfg.Builder == nil {
		cfg.Builder = command.NewBuilder()
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = base.MaxLines
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = base.ShutdownTimeout
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.ErrOut == nil {
		cfg.ErrOut = os.Stderr
	}
	if cfg.IsTTY == nil {
		val := false
		if f, ok := cfg.Out.(*os.File); ok {
			val = renderer.IsTTY(f)
		}
		cfg.IsTTY = &val
	}
	return cfg
}

// preflight makes sure PyInstaller is importable, installing it when allowed.
// An interpreter that cannot be run at all is left to the build, which
// reports it on the console.
func preflight(ctx context.Context, cfg Config, out *renderer.Incremental) error {
	if cfg.Toolchain == nil {
		return nil
	}
	tc := *cfg.Toolchain
	if tc.Python == "" {
		tc.Python = cfg.Build.InterpreterPath
	}
	if tc.Factory == nil {
		tc.Factory = cfg.CommandFactory
	}
	if tc.Encoding == "" {
		tc.Encoding = cfg.Encoding
	}

	version, err := tc.Check(ctx)
	switch {
	case err == nil:
		logger.Debug(ctx, "PyInstaller found", "version", version)
		return nil
	case !errors.Is(err, toolchain.ErrNotInstalled):
		logger.Warn(ctx, "PyInstaller check failed", "err", err)
		return nil
	}

	question := fmt.Sprintf("PyInstaller is not installed for %s. Install it now?", tc.Python)
	if !cfg.AutoInstall && (cfg.Confirm == nil || !cfg.Confirm(question)) {
		return fmt.Errorf("%w: %w", ErrDeclined, err)
	}

	out.WriteLine(MsgInstalling)
	res, err := tc.Install(ctx, engine.ListenerFuncs{Progress: out.WriteLine})
	if err != nil {
		return err
	}
	if res.State != engine.StateSucceeded {
		out.WriteLine(out.Palette.Failure.Sprint(MsgInstallFailed))
		return fmt.Errorf("install %s: exit code %d", toolchain.Package, res.ExitCode)
	}
	out.WriteLine(out.Palette.Success.Sprint(MsgInstalled))
	return nil
}

func record(ctx context.Context, r Recorder, e history.Entry) {
	if r == nil {
		return
	}
	if err := r.Record(e); err != nil {
		logger.Warn(ctx, "Failed to record build history", "session", e.ID, "err", err)
	}
}
