// Package reveal asks the operating system to show a directory in its file
// manager.
package reveal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/a2y-d5l/pyfreeze/logger"
)

// ErrNotExist is returned for a directory that has not been created (for
// example when the build failed before producing output).
var ErrNotExist = errors.New("output location does not exist")

// StartFunc launches a helper program without waiting for it.
type StartFunc func(ctx context.Context, name string, args ...string) error

// Opener reveals directories with the platform's file manager.
type Opener struct {
	// GOOS selects the helper. Defaults to runtime.GOOS.
	GOOS string
	// Start launches the helper. Defaults to a detached exec.Cmd.
	Start StartFunc
}

// Command returns the helper invocation for goos.
func Command(goos, dir string) (string, []string) {
	switch goos {
	case "windows":
		return "explorer", []string{dir}
	case "darwin":
		return "open", []string{dir}
	default:
		return "xdg-open", []string{dir}
	}
}

// Open reveals dir. It fails with ErrNotExist when dir is missing or is not
// a directory.
func (o Opener) Open(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotExist, dir)
	}

	goos := o.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	start := o.Start
	if start == nil {
		start = startDetached
	}

	name, args := Command(goos, dir)
	logger.Debug(ctx, "Revealing directory", "dir", dir, "helper", name)
	if err := start(ctx, name, args...); err != nil {
		return fmt.Errorf("open %s with %s: %w", dir, name, err)
	}
	return nil
}

// Open reveals dir with the default Opener.
func Open(ctx context.Context, dir string) error {
	return Opener{}.Open(ctx, dir)
}

// startDetached starts the helper and reaps it in the background. Helpers
// such as explorer exit non-zero even on success, so their status is ignored.
func startDetached(_ context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...) //nolint:gosec // fixed helper names
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
