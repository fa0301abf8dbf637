package command_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/pyfreeze/command"
)

func TestCommandLineRoundTrip(t *testing.T) {
	scripts := []string{
		"/home/me/my project/main.py",
		"/tmp/it's here/run.py",
		`/tmp/dollar $HOME/app.py`,
		`C:\Users\Some One\app.py`,
		"/tmp/glob*[x]?/a.py",
		"~/relative.py",
		"/tmp/tabs\tand\"quotes\"/x.py",
	}

	for _, script := range scripts {
		t.Run(script, func(t *testing.T) {
			cfg := baseConfig()
			cfg.InterpreterPath = "/opt/conda/envs/with space/bin/python"
			cfg.ScriptPath = script
			cfg.OutputName = "My App"
			cfg.ExtraSearchPaths = "/a b/site-packages"

			cl, err := newBuilder().Build(cfg)
			require.NoError(t, err)

			fields, err := command.ParseCommandLine(cl.String())
			require.NoError(t, err)
			assert.Equal(t, cl.Argv(), fields)
			assert.Equal(t, script, fields[3])
		})
	}
}

func TestCommandLineStringLeavesPlainTokensUnquoted(t *testing.T) {
	cl := &command.CommandLine{
		Executable: "/usr/bin/python3",
		Args:       []string{"-m", "PyInstaller", "main.py", "-F", "--clean"},
	}
	assert.Equal(t, "/usr/bin/python3 -m PyInstaller main.py -F --clean", cl.String())
}

func TestCommandLineArgvDoesNotAlias(t *testing.T) {
	cl := &command.CommandLine{Executable: "py", Args: []string{"-m", "PyInstaller"}}
	argv := cl.Argv()
	argv[1] = "changed"
	assert.Equal(t, "-m", cl.Args[0])
}
