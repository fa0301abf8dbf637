//go:build windows

package engine

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/windows"
)

// PrepareCommand keeps Windows from flashing a console window for the
// spawned process.
func PrepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

// terminateProcess ends the process tree. Windows has no SIGTERM, so the
// children are terminated first and the root last.
func terminateProcess(p *os.Process) error {
	return walkTree(int32(p.Pid), func(proc *process.Process) error {
		return proc.Terminate()
	})
}

func killProcess(p *os.Process) error {
	return walkTree(int32(p.Pid), func(proc *process.Process) error {
		return proc.Kill()
	})
}

func walkTree(pid int32, fn func(*process.Process) error) error {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return os.ErrProcessDone
	}
	children, _ := proc.Children()
	for _, child := range children {
		_ = walkTree(child.Pid, fn)
	}
	return fn(proc)
}
