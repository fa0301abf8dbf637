// Package engine supervises one external command execution at a time. It is
// completely decoupled from any UI/rendering logic: progress and completion
// are delivered as ProcessLine values on a channel that any front end can
// drain from its own execution context.
//
// The engine handles:
//   - Process creation with merged stdout/stderr and no console window
//   - Tolerant byte-to-text decoding (malformed input becomes U+FFFD)
//   - Cooperative cancellation checked at line boundaries
//   - Bounded shutdown after a cancel (terminate → timeout → kill)
//   - Mapping of spawn errors, exit statuses and read faults to terminal states
//
// Basic usage:
//
//	sess := engine.NewSession(engine.ProcessSpec{
//	    Name:    "build",
//	    Command: "/envs/app/bin/python",
//	    Args:    []string{"-m", "PyInstaller", "main.py", "-F"},
//	}, 5*time.Second)
//	output := make(chan engine.ProcessLine, 128)
//
//	if err := sess.Start(ctx, output); err != nil {
//	    return err
//	}
//	for pl := range output {
//	    if pl.IsComplete {
//	        fmt.Printf("done: %s (status %d)\n", pl.Result.State, pl.Result.ExitCode)
//	    } else {
//	        fmt.Println(pl.Line)
//	    }
//	}
package engine

import (
	"errors"
	"io"
	"time"
)

// NoExitStatus is the sentinel exit status reported when the process never
// ran or its status could not be observed.
const NoExitStatus = -1

// State is the lifecycle position of a Session.
//
//	Idle → Running → {Succeeded, Failed, Cancelled}
//
// The three right-hand states are terminal.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// ErrSessionStarted is returned by Start when the session has left Idle.
var ErrSessionStarted = errors.New("session already started")

// Result is the terminal outcome of a session.
type Result struct {
	// Err holds the underlying failure for Failed sessions: the spawn error,
	// the *exec.ExitError or the read fault. nil for Succeeded.
	Err error

	// State is one of StateSucceeded, StateFailed or StateCancelled.
	State State

	// ExitCode is the process exit status, or NoExitStatus when the process
	// never started or was terminated by a signal.
	ExitCode int

	// Duration is the wall time from Start to the terminal notification.
	Duration time.Duration
}

// ProcessLine is a single line of output or the completion event of a session.
//
// ProcessLines are emitted in the following sequence:
//  1. Zero or more line events (IsComplete=false, Line contains output)
//  2. Exactly one completion event (IsComplete=true, Result is set)
//
// The channel is closed right after the completion event.
type ProcessLine struct {
	// Result is only meaningful when IsComplete is true.
	Result Result

	// Line contains the decoded output text without its line ending.
	// Only meaningful when IsComplete is false.
	Line string

	// IsComplete indicates whether this is the final event of the session.
	IsComplete bool
}

// ProcessSpec describes the subprocess to run.
type ProcessSpec struct {
	// Name is a logical label used in logs and console prefixes.
	Name string

	// Command is the executable, an absolute path or a name on PATH.
	Command string

	// Dir is the working directory. Empty means the current one.
	Dir string

	// Encoding is the WHATWG label of the subprocess output encoding
	// (e.g. "utf-8", "gbk"). Empty means UTF-8.
	Encoding string

	// Args are the arguments after the executable.
	Args []string

	// Env is appended to the inherited environment.
	Env []string
}

// Command is an abstraction over os/exec.Cmd to enable testing and alternative
// implementations. The standard implementation wraps os/exec.Cmd with a merged
// output pipe; tests provide mocks through a CommandFactory.
type Command interface {
	// OutputPipe returns a reader carrying stdout and stderr interleaved in
	// the order the process wrote them. It must be called before Start.
	OutputPipe() (io.ReadCloser, error)

	// Start begins execution without waiting for completion. It fails if
	// the executable cannot be located or spawned.
	Start() error

	// Wait blocks until the process exits. It returns nil for status 0,
	// an error with an ExitCode() int method for non-zero statuses, and
	// other errors for unexpected failures.
	Wait() error

	// Process returns the running process, or nil before Start.
	Process() ProcessHandle
}

// ProcessHandle is an abstraction over a running process for termination.
type ProcessHandle interface {
	// Terminate asks the process (and its children) to exit.
	// SIGTERM to the process group on Unix, tree termination on Windows.
	Terminate() error

	// Kill forcefully ends the process and its children. Used as the last
	// resort after the shutdown timeout expires.
	Kill() error
}
