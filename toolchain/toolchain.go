// Package toolchain checks that PyInstaller is importable under an interpreter
// and installs it with pip when it is not.
package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/a2y-d5l/pyfreeze/engine"
	"github.com/a2y-d5l/pyfreeze/envs"
	"github.com/a2y-d5l/pyfreeze/logger"
)

// Package is the pip distribution name of the packaging tool.
const Package = "pyinstaller"

// ErrNotInstalled is returned by Check when pip does not know the package.
var ErrNotInstalled = errors.New(Package + " is not installed")

// Toolchain is the packaging tool as seen from one interpreter.
type Toolchain struct {
	// Python is the interpreter path.
	Python string

	// Output runs the presence check. Defaults to envs.CommandOutput.
	Output envs.OutputFunc

	// Factory creates the install process. Defaults to engine.DefaultCommandFactory.
	Factory engine.CommandFactory

	// Encoding is the install output encoding label (empty means UTF-8).
	Encoding string
}

// Check runs "python -m pip show pyinstaller" and returns the installed
// version. A non-zero exit of pip maps to ErrNotInstalled; failing to run the
// interpreter at all is returned as is.
func (t Toolchain) Check(ctx context.Context) (string, error) {
	output := t.Output
	if output == nil {
		output = envs.CommandOutput
	}

	out, err := output(ctx, t.Python, "-m", "pip", "show", Package)
	if err != nil {
		var ec interface{ ExitCode() int }
		if errors.As(err, &ec) && ec.ExitCode() > 0 {
			logger.Debug(ctx, "Package check failed", "python", t.Python, "exitCode", ec.ExitCode())
			return "", fmt.Errorf("%w under %s", ErrNotInstalled, t.Python)
		}
		return "", fmt.Errorf("run %s: %w", t.Python, err)
	}

	version := parseVersion(out)
	logger.Debug(ctx, "Package present", "python", t.Python, "version", version)
	return version, nil
}

// parseVersion extracts the "Version:" field of pip show output.
func parseVersion(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "Version:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// InstallSpec describes "python -m pip install pyinstaller".
func (t Toolchain) InstallSpec() engine.ProcessSpec {
	return engine.ProcessSpec{
		Name:     "pip install " + Package,
		Command:  t.Python,
		Args:     []string{"-m", "pip", "install", Package},
		Encoding: t.Encoding,
	}
}

// Install runs pip in a session and relays its output to l. The install is
// not cancellable: cancellation of ctx is ignored.
func (t Toolchain) Install(ctx context.Context, l engine.Listener) (engine.Result, error) {
	s := engine.NewSession(t.InstallSpec(), 0)
	if t.Factory != nil {
		s = s.WithCommandFactory(t.Factory)
	}
	logger.Info(ctx, "Installing package", "python", t.Python, "session", s.ID)
	return s.Run(context.WithoutCancel(ctx), l)
}
