// Package envs discovers named Python environments through the conda
// environment manager and derives interpreter and search paths from them.
package envs

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/a2y-d5l/pyfreeze/engine"
	"github.com/a2y-d5l/pyfreeze/logger"
)

// DefaultManager is the environment-manager executable used when none is configured.
const DefaultManager = "conda"

// Environment is one entry of the environment manager's listing.
type Environment struct {
	Name string
	Path string
	// Active marks the environment flagged with "*" (the current one).
	Active bool
}

// envLine matches "<name> [*] <path>"; the path may contain spaces.
var envLine = regexp.MustCompile(`^(\S+)\s+(?:(\*)\s+)?(.+)$`)

// Parse reads the tabular output of "conda env list". Comment lines starting
// with "#" and blank lines are skipped, as are lines that do not match.
func Parse(out []byte) []Environment {
	var envs []Environment
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		m := envLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		envs = append(envs, Environment{
			Name:   strings.TrimSpace(m[1]),
			Path:   filepath.Clean(strings.TrimSpace(m[3])),
			Active: m[2] == "*",
		})
	}
	return envs
}

// ToMap converts a listing to a name → path mapping. Later duplicates win.
func ToMap(envs []Environment) map[string]string {
	m := make(map[string]string, len(envs))
	for _, e := range envs {
		m[e.Name] = e.Path
	}
	return m
}

// Names returns the sorted environment names of m.
func Names(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputFunc runs a command and returns its standard output.
type OutputFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandOutput runs name without flashing a console window on Windows.
func CommandOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	engine.PrepareCommand(cmd)
	return cmd.Output()
}

// Discoverer lists environments by invoking the environment manager.
type Discoverer struct {
	// Manager is the executable to run. Defaults to DefaultManager.
	Manager string
	// Output runs the command. Defaults to CommandOutput.
	Output OutputFunc
}

// List invokes "<manager> env list". Any failure yields an empty listing;
// the cause is only logged.
func (d Discoverer) List(ctx context.Context) []Environment {
	manager := d.Manager
	if manager == "" {
		manager = DefaultManager
	}
	output := d.Output
	if output == nil {
		output = CommandOutput
	}

	out, err := output(ctx, manager, "env", "list")
	if err != nil {
		logger.Warn(ctx, "Environment discovery failed", "manager", manager, "err", err)
		return nil
	}
	envs := Parse(out)
	logger.Debug(ctx, "Discovered environments", "manager", manager, "count", len(envs))
	return envs
}

// Discover returns the name → path mapping of the environments known to
// manager, or an empty mapping when the manager cannot be run.
func Discover(ctx context.Context, manager string) map[string]string {
	return ToMap(Discoverer{Manager: manager}.List(ctx))
}

// Interpreter returns the Python interpreter path inside an environment.
func Interpreter(envPath string) string {
	return interpreterFor(runtime.GOOS, envPath)
}

func interpreterFor(goos, envPath string) string {
	if goos == "windows" {
		return filepath.Join(envPath, "python.exe")
	}
	return filepath.Join(envPath, "bin", "python")
}

// SitePackages returns the site-packages directories of an environment,
// suitable as extra module search paths. It returns nil when there are none.
func SitePackages(envPath string) []string {
	return sitePackagesFor(runtime.GOOS, envPath)
}

func sitePackagesFor(goos, envPath string) []string {
	if goos == "windows" {
		dir := filepath.Join(envPath, "Lib", "site-packages")
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return []string{dir}
		}
		return nil
	}

	matches, err := doublestar.Glob(os.DirFS(envPath), "lib/python*/site-packages")
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	var dirs []string
	for _, m := range matches {
		dir := filepath.Join(envPath, filepath.FromSlash(m))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
