package command

import (
	"fmt"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/shell"
	"mvdan.cc/sh/v3/syntax"
)

// CommandLine is the builder's output: an executable plus ordered arguments.
// Treat it as immutable once produced.
type CommandLine struct {
	// Executable is the interpreter path.
	Executable string

	// Args are the arguments after the executable.
	Args []string

	// DistDir is where PyInstaller writes the finished artifact. Front ends
	// hand it to the output-location opener after a successful build.
	DistDir string
}

// Argv returns the executable followed by the arguments.
func (c *CommandLine) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Executable)
	return append(argv, c.Args...)
}

// String renders the command with every token shell-escaped so that
// ParseCommandLine(c.String()) reproduces Argv exactly.
func (c *CommandLine) String() string {
	argv := c.Argv()
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = quoteArg(arg)
	}
	return strings.Join(quoted, " ")
}

func quoteArg(arg string) string {
	q, err := syntax.Quote(arg, syntax.LangBash)
	if err != nil {
		// Only reachable for invalid UTF-8; Go quoting keeps the preview
		// readable even though it will not round-trip.
		return strconv.Quote(arg)
	}
	return q
}

// ParseCommandLine tokenizes a shell-style command string. Variables are not
// expanded from the process environment.
func ParseCommandLine(s string) ([]string, error) {
	fields, err := shell.Fields(s, func(string) string { return "" })
	if err != nil {
		return nil, fmt.Errorf("parse command line: %w", err)
	}
	return fields, nil
}
