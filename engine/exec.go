package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// DefaultCommandFactory creates real os/exec commands for process execution.
//
// The factory:
//   - Creates an exec.Cmd from the spec's Command, Args, Dir and Env
//   - Applies PrepareCommand (own process group on Unix, hidden console
//     window on Windows)
//   - Does not tie the process to ctx; cancellation is driven by the Session
//     so that it can emit its own notice before terminating the process
//
// This factory is used automatically when Session.CommandFactory is nil.
func DefaultCommandFactory(_ context.Context, spec ProcessSpec) (Command, error) {
	cmd := exec.Command(spec.Command, spec.Args...) //nolint:gosec // the command is the user's interpreter
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	PrepareCommand(cmd)
	return &execCommand{cmd: cmd}, nil
}

// execCommand wraps exec.Cmd to implement the Command interface.
type execCommand struct {
	cmd    *exec.Cmd
	writer *os.File
}

// OutputPipe points both stdout and stderr at the write end of one OS pipe,
// so the kernel preserves the interleaving the process produced.
func (e *execCommand) OutputPipe() (io.ReadCloser, error) {
	if e.writer != nil {
		return nil, errors.New("output pipe already set")
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	e.cmd.Stdout = w
	e.cmd.Stderr = w
	e.writer = w
	return r, nil
}

// Start spawns the process and releases the parent's copy of the write end,
// so the reader sees EOF once the process and its children exit.
func (e *execCommand) Start() error {
	err := e.cmd.Start()
	if e.writer != nil {
		_ = e.writer.Close()
		e.writer = nil
	}
	return err
}

func (e *execCommand) Wait() error {
	return e.cmd.Wait()
}

func (e *execCommand) Process() ProcessHandle {
	if e.cmd.Process == nil {
		return nil
	}
	return &processWrapper{process: e.cmd.Process}
}

// processWrapper wraps os.Process to implement ProcessHandle.
type processWrapper struct {
	process *os.Process
}

func (p *processWrapper) Terminate() error {
	return terminateProcess(p.process)
}

func (p *processWrapper) Kill() error {
	return killProcess(p.process)
}
