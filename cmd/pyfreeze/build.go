package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/a2y-d5l/pyfreeze/command"
	"github.com/a2y-d5l/pyfreeze/envs"
	"github.com/a2y-d5l/pyfreeze/history"
	"github.com/a2y-d5l/pyfreeze/logger"
	"github.com/a2y-d5l/pyfreeze/profile"
	"github.com/a2y-d5l/pyfreeze/runner"
	"github.com/a2y-d5l/pyfreeze/toolchain"
)

// buildOptions are the configuration flags shared by build and preview.
type buildOptions struct {
	profile       string
	python        string
	env           string
	onedir        bool
	onefile       bool
	name          string
	console       bool
	clean         bool
	icon          string
	paths         string
	addData       []string
	hiddenImports []string
}

func (o *buildOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.profile, "profile", "", "YAML build profile")
	f.StringVar(&o.python, "python", "", "Python interpreter path")
	f.StringVar(&o.env, "env", "", "conda environment name or path")
	f.BoolVar(&o.onedir, "onedir", false, "build a one-folder bundle")
	f.BoolVar(&o.onefile, "onefile", false, "build a one-file executable (default)")
	f.StringVar(&o.name, "name", "", "name of the bundled app")
	f.BoolVar(&o.console, "console", false, "keep the console window of the app")
	f.BoolVar(&o.clean, "clean", true, "clean PyInstaller caches before building")
	f.StringVar(&o.icon, "icon", "", "icon file for the executable")
	f.StringVar(&o.paths, "paths", "", "extra module search paths, separated by "+string(os.PathListSeparator))
	f.StringArrayVar(&o.addData, "add-data", nil,
		"additional data as source"+string(os.PathListSeparator)+"dest (repeatable)")
	f.StringArrayVar(&o.hiddenImports, "hidden-import", nil, "comma-separated hidden imports (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("onedir", "onefile")
	cmd.MarkFlagsMutuallyExclusive("python", "env")
}

// loadProfile returns the --profile contents, or an empty profile.
func (o *buildOptions) loadProfile() (*profile.Profile, error) {
	if o.profile == "" {
		return &profile.Profile{}, nil
	}
	return profile.Load(o.profile)
}

// apply overrides profile values with the flags that were set explicitly.
func (o *buildOptions) apply(cmd *cobra.Command, args []string, p *profile.Profile) error {
	changed := cmd.Flags().Changed

	if len(args) > 0 {
		script, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		p.Script = script
	}
	if changed("python") {
		p.Python, p.Env = o.python, ""
	}
	if changed("env") {
		p.Env, p.Python = o.env, ""
	}
	switch {
	case o.onedir:
		p.Mode = command.SingleDirectory.String()
	case o.onefile:
		p.Mode = command.SingleFile.String()
	}
	if changed("name") {
		p.Name = o.name
	}
	if changed("console") {
		p.Console = &o.console
	}
	if changed("clean") {
		p.Clean = &o.clean
	}
	if changed("icon") {
		p.Icon = o.icon
	}
	if changed("paths") {
		p.Paths = filepath.SplitList(o.paths)
	}
	if changed("add-data") {
		p.Data = nil
		for _, s := range o.addData {
			d, err := command.ParseDataEntry(s)
			if err != nil {
				return err
			}
			p.Data = append(p.Data, profile.DataEntry{Source: d.Source, Dest: d.Destination})
		}
	}
	if changed("hidden-import") {
		p.HiddenImports = nil
		for _, s := range o.hiddenImports {
			p.HiddenImports = append(p.HiddenImports, command.ParseHiddenImports(s)...)
		}
	}
	return nil
}

// configuration resolves the interpreter of p and converts it into a build
// configuration. A selected environment pre-fills the search paths with its
// site-packages when none were given.
func (a *app) configuration(ctx context.Context, p *profile.Profile) (command.BuildConfiguration, error) {
	interpreter, envPath := a.interpreter(ctx, p.Python, p.Env)
	cfg, err := p.Configuration(interpreter)
	if err != nil {
		return cfg, err
	}
	if envPath != "" && cfg.ExtraSearchPaths == "" {
		cfg.ExtraSearchPaths = strings.Join(envs.SitePackages(envPath), string(os.PathListSeparator))
	}
	return cfg, nil
}

// interpreter picks the Python executable: an explicit path, then an
// environment (by name or path), then python3/python from PATH.
func (a *app) interpreter(ctx context.Context, python, env string) (string, string) {
	if python != "" {
		if !strings.ContainsAny(python, `/\`) {
			if found, err := exec.LookPath(python); err == nil {
				return found, ""
			}
		}
		return python, ""
	}
	if env != "" {
		envPath := env
		if !strings.ContainsAny(env, `/\`) {
			if p, ok := envs.Discover(ctx, a.cfg.Conda)[env]; ok {
				envPath = p
			} else {
				logger.Warn(ctx, "Unknown environment", "env", env, "manager", a.cfg.Conda)
			}
		}
		return envs.Interpreter(envPath), envPath
	}
	for _, name := range []string{"python3", "python"} {
		if found, err := exec.LookPath(name); err == nil {
			return found, ""
		}
	}
	return "", ""
}

func buildCmd(a *app) *cobra.Command {
	var (
		opts       buildOptions
		envFiles   []string
		yes        bool
		timestamps bool
		fullScreen bool
		noSummary  bool
	)

	cmd := &cobra.Command{
		Use:   "build [flags] [script]",
		Short: "Package a Python script with PyInstaller",
		Long: `pyfreeze build [--profile=build.yaml] [--env=myenv] [--onedir] main.py

Runs PyInstaller and streams its output. Press Ctrl+C to cancel the build.

Exit codes: 0 success, 1 failure, 130 cancelled, 2 invalid configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := opts.loadProfile()
			if err != nil {
				return &exitError{code: runner.ExitUsage, err: err}
			}
			if err := opts.apply(cmd, args, p); err != nil {
				return &exitError{code: runner.ExitUsage, err: err}
			}
			build, err := a.configuration(ctx, p)
			if err != nil {
				return &exitError{code: runner.ExitUsage, err: err}
			}
			env, err := runner.LoadEnvFiles(envFiles...)
			if err != nil {
				return &exitError{code: runner.ExitUsage, err: err}
			}

			cfg := runner.DefaultConfig()
			cfg.Build = build
			cfg.Out = cmd.OutOrStdout()
			cfg.ErrOut = cmd.ErrOrStderr()
			cfg.Toolchain = &toolchain.Toolchain{}
			cfg.AutoInstall = yes || a.cfg.AutoInstall
			cfg.Confirm = confirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
			cfg.Env = env
			cfg.Encoding = a.cfg.OutputEncoding
			cfg.ShutdownTimeout = a.cfg.ShutdownTimeout
			cfg.MaxLines = a.cfg.Console.MaxLines
			cfg.LogPrefix = a.cfg.Console.Prefix
			cfg.Color = a.cfg.Console.Color
			cfg.FullScreen = fullScreen || a.cfg.Console.FullScreen
			cfg.ShowTimestamps = timestamps || a.cfg.Console.Timestamps
			cfg.ShowSummary = !noSummary && a.cfg.Console.Summary

			if store, err := history.Open(a.cfg.HistoryFile); err != nil {
				logger.Warn(ctx, "Build history unavailable", "file", a.cfg.HistoryFile, "err", err)
			} else {
				defer store.Close()
				cfg.History = store
			}

			report, err := runner.Run(ctx, cfg)
			if err != nil || report.ExitCode != 0 {
				return &exitError{code: report.ExitCode, err: err}
			}
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().StringArrayVar(&envFiles, "env-file", nil, "dotenv file with extra build environment (repeatable)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "install PyInstaller without prompting when it is missing")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "prefix output lines with a timestamp")
	cmd.Flags().BoolVar(&fullScreen, "full-screen", false, "full-screen output view on a terminal")
	cmd.Flags().BoolVar(&noSummary, "no-summary", false, "do not print the summary after the build")
	return cmd
}

// confirmer asks yes/no questions on w and reads the answer from r.
// Anything but y/yes, including end of input, is a no.
func confirmer(r io.Reader, w io.Writer) func(string) bool {
	in := bufio.NewReader(r)
	return func(question string) bool {
		fmt.Fprintf(w, "%s [y/N] ", question)
		answer, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || answer == "") {
			fmt.Fprintln(w)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

func previewCmd(a *app) *cobra.Command {
	var (
		opts  buildOptions
		argv  bool
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "preview [flags] [script]",
		Short: "Print the PyInstaller command without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			show := func(p *profile.Profile) {
				if err := opts.apply(cmd, args, p); err != nil {
					fmt.Fprintf(out, "<error: %v>\n", err)
					return
				}
				build, err := a.configuration(ctx, p)
				if err != nil {
					fmt.Fprintf(out, "<error: %v>\n", err)
					return
				}
				if !argv {
					fmt.Fprintln(out, command.Preview(build))
					return
				}
				cl, err := command.Build(build)
				if err != nil {
					fmt.Fprintf(out, "<error: %v>\n", err)
					return
				}
				for _, tok := range cl.Argv() {
					fmt.Fprintln(out, tok)
				}
			}

			if !watch {
				p, err := opts.loadProfile()
				if err != nil {
					return &exitError{code: runner.ExitUsage, err: err}
				}
				show(p)
				return nil
			}

			if opts.profile == "" {
				return &exitError{code: runner.ExitUsage, err: errors.New("--watch requires --profile")}
			}
			return profile.Watch(ctx, opts.profile, func(p *profile.Profile, err error) {
				if err != nil {
					fmt.Fprintf(out, "<error: %v>\n", err)
					return
				}
				show(p)
			})
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&argv, "argv", false, "print one argument per line")
	cmd.Flags().BoolVar(&watch, "watch", false, "print again whenever the profile changes")
	return cmd
}
