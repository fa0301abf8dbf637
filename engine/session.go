package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"github.com/a2y-d5l/pyfreeze/logger"
)

const (
	// defaultShutdownTimeout is the default time to wait for graceful process termination.
	defaultShutdownTimeout = 5 * time.Second

	// scannerInitialBufferSize is the initial buffer size for the line scanner.
	scannerInitialBufferSize = 64 * 1024 // 64KB

	// scannerMaxBufferSize is the maximum buffer size for the line scanner.
	// Longer lines are delivered in chunks of this size.
	scannerMaxBufferSize = 1024 * 1024 // 1MB

	// CancelledMessage is the last output line of a cancelled session.
	CancelledMessage = "--- build cancelled by user ---"
)

// CommandFactory creates Command instances from a ProcessSpec.
// This abstraction enables dependency injection for testing.
//
// Testing with mocks:
//
//	factory := func(ctx context.Context, spec ProcessSpec) (Command, error) {
//	    return &MockCommand{stdout: []string{"line1", "line2"}}, nil
//	}
type CommandFactory func(ctx context.Context, spec ProcessSpec) (Command, error)

// Session owns the lifecycle of one external command execution.
//
// A Session is single-use: Start moves it from Idle to Running exactly once,
// and the worker it launches always ends in exactly one terminal state. The
// caller is responsible for not running two sessions at once when that
// matters (e.g. two builds writing the same output directory).
//
// NewSession is the usual constructor, but a Session literal works too; its
// ID is assigned by Start when empty.
//
// Concurrency:
//   - One worker goroutine per session reads the output strictly in order
//   - Cancel may be called from any goroutine; it only flips a flag and
//     wakes the worker
//   - The output channel has exactly one producer (the worker) and is closed
//     after the completion event
type Session struct {
	// CommandFactory creates the command. If nil, DefaultCommandFactory is used.
	CommandFactory CommandFactory

	// ID identifies the session in logs and history (UUIDv7, time ordered).
	ID string

	// Spec describes the process to run.
	Spec ProcessSpec

	// ShutdownTimeout bounds how long a cancelled process may take to exit
	// after the termination request before it is killed.
	// If zero or negative, defaults to 5 seconds.
	ShutdownTimeout time.Duration

	state           atomic.Int32
	cancelRequested atomic.Bool
	initOnce        sync.Once
	cancelCh        chan struct{}
	done            chan struct{}
	result          Result

	// mu guards the cancel request against the worker settling the outcome.
	mu      sync.Mutex
	settled bool
}

// NewSession creates an Idle session for spec.
func NewSession(spec ProcessSpec, shutdownTimeout time.Duration) *Session {
	return &Session{
		ID:              newSessionID(),
		Spec:            spec,
		ShutdownTimeout: shutdownTimeout,
	}
}

func (s *Session) init() {
	s.initOnce.Do(func() {
		s.cancelCh = make(chan struct{})
		s.done = make(chan struct{})
	})
}

// WithCommandFactory returns a fresh Idle copy of the session that uses
// factory to create its command.
func (s *Session) WithCommandFactory(factory CommandFactory) *Session {
	ns := NewSession(s.Spec, s.ShutdownTimeout)
	ns.ID = s.ID
	ns.CommandFactory = factory
	return ns
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the completion event has been delivered. It stays
// open for a session that is never started.
func (s *Session) Done() <-chan struct{} {
	s.init()
	return s.done
}

// Wait blocks until the session reaches a terminal state and returns its
// result. On a session that has not been started it returns at once with
// State StateIdle.
func (s *Session) Wait() Result {
	s.init()
	if s.State() == StateIdle {
		return Result{State: StateIdle, ExitCode: NoExitStatus}
	}
	<-s.done
	return s.result
}

// Start launches the worker and returns immediately.
//
// Behavior:
//   - Returns ErrSessionStarted if the session has left Idle
//   - Every other failure (executable not found, pipe errors, non-zero exit,
//     read faults) is reported on output as a diagnostic line followed by
//     the completion event; Start itself does not fail for them
//   - Cancelling ctx is equivalent to calling Cancel
//
// The output channel is closed by the worker after the completion event.
// Callers should buffer it; the worker blocks when the channel is full, which
// in turn applies back-pressure to the subprocess through the OS pipe.
func (s *Session) Start(ctx context.Context, output chan<- ProcessLine) error {
	s.init()
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrSessionStarted
	}
	if s.ID == "" {
		s.ID = newSessionID()
	}
	go s.run(ctx, output)
	return nil
}

// Cancel requests cooperative cancellation. It returns immediately; the
// worker asks the process to terminate, emits CancelledMessage, stops
// relaying output and ends in StateCancelled.
//
// A cancel takes effect while the process has not been reaped yet, even
// after its output has ended. Calls on a session that is not Running, calls
// after the process exit was observed, and repeated calls are no-ops.
func (s *Session) Cancel() {
	s.requestCancel()
}

// requestCancel reports whether the call turned the session into a
// cancelled one.
func (s *Session) requestCancel() bool {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled || s.cancelRequested.Load() || s.State() != StateRunning {
		return false
	}
	s.cancelRequested.Store(true)
	close(s.cancelCh)
	return true
}

// settle fixes the outcome of the run: later cancel requests are ignored.
// It reports whether a cancel took effect before that point.
func (s *Session) settle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled = true
	return s.cancelRequested.Load()
}

// CancelRequested reports whether Cancel took effect for this session. It is
// never true for a session that ended in StateSucceeded or StateFailed after
// a normal exit.
func (s *Session) CancelRequested() bool {
	return s.cancelRequested.Load()
}

func (s *Session) shutdownTimeout() time.Duration {
	if s.ShutdownTimeout <= 0 {
		return defaultShutdownTimeout
	}
	return s.ShutdownTimeout
}

// run is the worker. It always emits exactly one completion event, even if
// the execution panics.
func (s *Session) run(ctx context.Context, output chan<- ProcessLine) {
	started := time.Now()
	log := logger.FromContext(ctx).With("session", s.ID, "name", s.Spec.Name)
	completed := false

	complete := func(res Result) {
		s.settle()
		res.Duration = time.Since(started)
		s.result = res
		s.state.Store(int32(res.State))
		completed = true
		output <- ProcessLine{IsComplete: true, Result: res}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Session worker panicked", "panic", r)
			if !completed {
				output <- ProcessLine{Line: fmt.Sprintf("--- unexpected error: %v ---", r)}
				complete(Result{State: StateFailed, ExitCode: NoExitStatus, Err: fmt.Errorf("panic: %v", r)})
			}
		}
		close(output)
		close(s.done)
	}()

	res := s.execute(ctx, log, output)
	log.Info("Session finished", "state", res.State, "exitCode", res.ExitCode)
	complete(res)
}

// execute runs the process and returns its terminal result.
//
// Lifecycle:
//  1. Create the command and its merged output pipe
//  2. Start the process (spawn failures end here as StateFailed)
//  3. Watch for cancellation concurrently
//  4. Relay decoded lines in order until EOF, cancel or read fault
//  5. Wait for the process and map its status
func (s *Session) execute(ctx context.Context, log *slog.Logger, output chan<- ProcessLine) Result {
	factory := s.CommandFactory
	if factory == nil {
		factory = DefaultCommandFactory
	}

	enc, err := LookupEncoding(s.Spec.Encoding)
	if err != nil {
		log.Warn("Falling back to UTF-8 output decoding", "err", err)
		enc = unicode.UTF8
	}

	if s.cancelRequested.Load() {
		output <- ProcessLine{Line: CancelledMessage}
		return Result{State: StateCancelled, ExitCode: NoExitStatus}
	}

	cmd, err := factory(ctx, s.Spec)
	if err != nil {
		return s.spawnFailed(output, fmt.Errorf("create command: %w", err))
	}

	reader, err := cmd.OutputPipe()
	if err != nil {
		return s.spawnFailed(output, fmt.Errorf("output pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		_ = reader.Close()
		return s.spawnFailed(output, err)
	}
	log.Debug("Process started", "command", s.Spec.Command, "args", s.Spec.Args)

	exited := make(chan struct{})
	go s.watch(ctx, log, cmd, exited)

	scanErr := s.relay(newDecodingReader(reader, enc), output)

	// Keep the pipe drained so a process that is shutting down never blocks
	// on a full buffer. Returns at once after a normal EOF.
	go func() {
		_, _ = io.Copy(io.Discard, reader)
	}()

	noticeSent := false
	if s.cancelRequested.Load() {
		output <- ProcessLine{Line: CancelledMessage}
		noticeSent = true
	}

	waitErr := cmd.Wait()
	cancelled := s.settle()
	close(exited)
	_ = reader.Close()

	if cancelled {
		if !noticeSent {
			output <- ProcessLine{Line: CancelledMessage}
		}
		return Result{State: StateCancelled, ExitCode: exitCode(waitErr)}
	}

	if scanErr != nil {
		output <- ProcessLine{Line: fmt.Sprintf("--- unexpected error: reading output: %v ---", scanErr)}
		return Result{State: StateFailed, ExitCode: exitCode(waitErr), Err: fmt.Errorf("read output: %w", scanErr)}
	}

	if waitErr == nil {
		return Result{State: StateSucceeded, ExitCode: 0}
	}

	code := exitCode(waitErr)
	if !hasExitCode(waitErr) {
		output <- ProcessLine{Line: fmt.Sprintf("--- unexpected error: %v ---", waitErr)}
	}
	return Result{State: StateFailed, ExitCode: code, Err: waitErr}
}

// relay reads lines in order and delivers each one before reading the next.
// It stops at EOF, at a read fault, or at the first line read after a cancel
// request; that line is dropped.
func (s *Session) relay(r io.Reader, output chan<- ProcessLine) error {
	scanner := bufio.NewScanner(r)

	// Increase buffer size for long lines.
	buf := make([]byte, 0, scannerInitialBufferSize)
	scanner.Buffer(buf, scannerMaxBufferSize)
	scanner.Split(splitLines(scannerMaxBufferSize))

	for scanner.Scan() {
		if s.cancelRequested.Load() {
			return nil
		}
		output <- ProcessLine{Line: scanner.Text()}
	}

	if s.cancelRequested.Load() {
		return nil
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// splitLines is a bufio.SplitFunc that ends lines at "\n", "\r\n" or a lone
// "\r", so progress bars that redraw with carriage returns arrive as separate
// lines. A line longer than maxLine is delivered in chunks of at most maxLine
// bytes, cut at a rune boundary, instead of failing the scan.
func splitLines(maxLine int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			switch {
			case data[i] == '\n':
				return i + 1, data[:i], nil
			case i+1 < len(data) && data[i+1] == '\n':
				return i + 2, data[:i], nil
			case i+1 < len(data), atEOF, len(data) >= maxLine:
				return i + 1, data[:i], nil
			default:
				// A trailing "\r" may be the first half of "\r\n".
				return 0, nil, nil
			}
		}

		if atEOF {
			return len(data), data, nil
		}
		if len(data) >= maxLine {
			n := maxLine
			for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
				if utf8.RuneStart(data[i]) {
					if !utf8.FullRune(data[i:n]) && i > 0 {
						n = i
					}
					break
				}
			}
			return n, data[:n], nil
		}
		return 0, nil, nil
	}
}

// watch turns a cancel request (or ctx cancellation) into a termination
// request, and kills the process if it has not exited within the shutdown
// timeout.
func (s *Session) watch(ctx context.Context, log *slog.Logger, cmd Command, exited <-chan struct{}) {
	select {
	case <-exited:
		return
	case <-ctx.Done():
		if s.requestCancel() {
			log.Info("Context cancelled, cancelling session", "cause", context.Cause(ctx))
		} else if !s.CancelRequested() {
			// The outcome was already settled.
			return
		}
	case <-s.cancelCh:
	}

	proc := cmd.Process()
	if proc == nil {
		return
	}

	log.Info("Requesting process termination")
	if err := proc.Terminate(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Warn("Failed to terminate process", "err", err)
	}

	timeout := s.shutdownTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-exited:
	case <-timer.C:
		log.Warn("Shutdown timeout exceeded, killing process", "timeout", timeout)
		if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Warn("Failed to kill process", "err", err)
		}
	}
}

func (s *Session) spawnFailed(output chan<- ProcessLine, err error) Result {
	if s.settle() {
		output <- ProcessLine{Line: CancelledMessage}
		return Result{State: StateCancelled, ExitCode: NoExitStatus}
	}
	output <- ProcessLine{Line: spawnDiagnostic(s.Spec.Command, err)}
	return Result{State: StateFailed, ExitCode: NoExitStatus, Err: err}
}

func spawnDiagnostic(command string, err error) string {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("error: command not found. Is '%s' a valid Python interpreter?", command)
	}
	return fmt.Sprintf("error: failed to start '%s': %v", command, err)
}

type exitCoder interface {
	ExitCode() int
}

func hasExitCode(err error) bool {
	var ec exitCoder
	return errors.As(err, &ec)
}

// exitCode extracts the status from a Wait error. *exec.ExitError reports -1
// for signal-terminated processes, which matches NoExitStatus.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return NoExitStatus
}
