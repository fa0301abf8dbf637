package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/a2y-d5l/pyfreeze/engine"
	"github.com/a2y-d5l/pyfreeze/envs"
	"github.com/a2y-d5l/pyfreeze/history"
	"github.com/a2y-d5l/pyfreeze/renderer"
	"github.com/a2y-d5l/pyfreeze/reveal"
	"github.com/a2y-d5l/pyfreeze/toolchain"
)

var envHeader = table.Row{"Name", "Path", "Active"}

func renderEnvironments(w io.Writer, list []envs.Environment) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(envHeader)
	for _, e := range list {
		active := ""
		if e.Active {
			active = "*"
		}
		t.AppendRow(table.Row{e.Name, e.Path, active})
	}
	t.Render()
}

func envsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List the conda environments",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			list := envs.Discoverer{Manager: a.cfg.Conda}.List(cmd.Context())
			if len(list) == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "no environments found (is %s installed?)\n", a.cfg.Conda)
				return
			}
			renderEnvironments(cmd.OutOrStdout(), list)
		},
	}
}

// interpreterFlags adds --python/--env for the commands that only need an
// interpreter.
func interpreterFlags(cmd *cobra.Command, python, env *string) {
	cmd.Flags().StringVar(python, "python", "", "Python interpreter path")
	cmd.Flags().StringVar(env, "env", "", "conda environment name or path")
	cmd.MarkFlagsMutuallyExclusive("python", "env")
}

func checkCmd(a *app) *cobra.Command {
	var python, env string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that PyInstaller is installed for an interpreter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interpreter, _ := a.interpreter(cmd.Context(), python, env)
			tc := toolchain.Toolchain{Python: interpreter}
			installed, err := tc.Check(cmd.Context())
			if errors.Is(err, toolchain.ErrNotInstalled) {
				fmt.Fprintln(cmd.OutOrStdout(), err)
				return &exitError{code: renderer.ExitFailure}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", toolchain.Package, installed, interpreter)
			return nil
		},
	}
	interpreterFlags(cmd, &python, &env)
	return cmd
}

func installCmd(a *app) *cobra.Command {
	var python, env string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install PyInstaller for an interpreter with pip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interpreter, _ := a.interpreter(cmd.Context(), python, env)
			tc := toolchain.Toolchain{Python: interpreter, Encoding: a.cfg.OutputEncoding}
			out := renderer.NewIncremental(cmd.OutOrStdout(), renderer.NewPalette(a.cfg.Console.Color))

			res, err := tc.Install(cmd.Context(), engine.ListenerFuncs{Progress: out.WriteLine})
			if err != nil {
				return err
			}
			if res.State != engine.StateSucceeded {
				return &exitError{code: renderer.ExitCode(res), err: fmt.Errorf("pip exited with code %d", res.ExitCode)}
			}
			return nil
		},
	}
	interpreterFlags(cmd, &python, &env)
	return cmd
}

var historyHeader = table.Row{"Started At", "State", "Exit", "Duration", "Script", "Dist"}

func renderHistory(w io.Writer, entries []history.Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(historyHeader)
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.StartedAt.Local().Format(time.DateTime),
			e.State,
			e.ExitCode,
			e.Duration().Round(100 * time.Millisecond),
			e.Script,
			e.DistDir,
		})
	}
	t.Render()
}

func historyCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := history.Open(a.cfg.HistoryFile)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no builds recorded yet")
				return nil
			}
			renderHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of builds to show (0 for all)")
	return cmd
}

func openCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open [dir]",
		Short: "Reveal a directory, by default the output of the last successful build",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return reveal.Open(cmd.Context(), args[0])
			}

			store, err := history.Open(a.cfg.HistoryFile)
			if err != nil {
				return err
			}
			defer store.Close()

			last, ok, err := store.Last(true)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no successful build recorded yet")
			}
			return reveal.Open(cmd.Context(), last.DistDir)
		},
	}
}
