// Package command maps a build configuration to the PyInstaller command line.
//
// The builder is a pure function of its input: it performs no writes, spawns
// nothing and returns byte-identical output for identical configurations, so
// front ends can call it on every edit to refresh a live preview.
//
// Basic usage:
//
//	cfg := command.BuildConfiguration{
//	    InterpreterPath: "/opt/conda/envs/app/bin/python",
//	    ScriptPath:      "/home/me/app/main.py",
//	    Mode:            command.SingleFile,
//	    CleanBeforeBuild: true,
//	}
//	cl, err := command.Build(cfg)
//	if err != nil {
//	    var verr *command.ValidationError
//	    if errors.As(err, &verr) {
//	        fmt.Println("not buildable:", verr.Reason)
//	    }
//	    return
//	}
//	fmt.Println(cl.String())
package command

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects how PyInstaller lays out the artifact.
type Mode int

const (
	// SingleFile bundles everything into one executable (-F).
	SingleFile Mode = iota

	// SingleDirectory produces a folder with the executable and its
	// dependencies (-D).
	SingleDirectory
)

// String returns the profile spelling of the mode.
func (m Mode) String() string {
	switch m {
	case SingleFile:
		return "onefile"
	case SingleDirectory:
		return "onedir"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Flag returns the PyInstaller flag that selects the mode.
func (m Mode) Flag() string {
	if m == SingleDirectory {
		return "-D"
	}
	return "-F"
}

// ParseMode accepts "onefile"/"onedir" and the short flag spellings.
// An empty string selects SingleFile.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "onefile", "-f", "file", "single-file":
		return SingleFile, nil
	case "onedir", "-d", "dir", "single-directory":
		return SingleDirectory, nil
	default:
		return SingleFile, fmt.Errorf("unknown mode %q (want onefile or onedir)", s)
	}
}

// DataEntry is one --add-data pair. Both fields are required.
type DataEntry struct {
	// Source is the file or directory on disk.
	Source string

	// Destination is the path relative to the bundle root.
	Destination string
}

// BuildConfiguration is the full set of user-chosen options for one build.
// It is a plain value owned by the caller; the builder never retains it.
type BuildConfiguration struct {
	// InterpreterPath is the Python executable that runs PyInstaller.
	// It must exist on disk.
	InterpreterPath string

	// ScriptPath is the entry script. Required.
	ScriptPath string

	// Mode is SingleFile or SingleDirectory.
	Mode Mode

	// OutputName overrides the artifact name when non-empty.
	OutputName string

	// ShowConsole keeps the console window of the built program.
	// When false --noconsole is emitted.
	ShowConsole bool

	// CleanBeforeBuild emits --clean.
	CleanBeforeBuild bool

	// IconPath overrides the executable icon when non-empty.
	IconPath string

	// ExtraSearchPaths is forwarded verbatim to --paths.
	ExtraSearchPaths string

	// AdditionalData is emitted as --add-data flags in order.
	AdditionalData []DataEntry

	// HiddenImports is emitted as --hidden-import flags in order.
	// Empty entries are skipped.
	HiddenImports []string
}

var (
	// ErrInvalidInterpreter reports a missing or non-existent interpreter.
	ErrInvalidInterpreter = errors.New("invalid interpreter")

	// ErrNoScript reports an empty script path.
	ErrNoScript = errors.New("no script selected")

	// ErrIncompleteData reports an additional-data entry with an empty side.
	ErrIncompleteData = errors.New("additional data entry requires source and destination")
)

// ValidationError describes the first configuration field that prevents a
// build. It wraps one of the Err* sentinels.
type ValidationError struct {
	Err    error
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
