package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/a2y-d5l/pyfreeze/config"
	"github.com/a2y-d5l/pyfreeze/logger"
)

// app is the state shared by all commands once the configuration is loaded.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logFile io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   config.AppSlug,
		Short: "Package Python scripts with PyInstaller",
		Long: `pyfreeze builds standalone executables from Python scripts with PyInstaller.

It assembles the PyInstaller command line from flags or a YAML profile, runs
the build with live output and Ctrl+C cancellation, and keeps a history of
finished builds.
`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initialize(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logFile != nil {
				_ = a.logFile.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default is $XDG_CONFIG_HOME/pyfreeze/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = a.v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(buildCmd(a))
	rootCmd.AddCommand(previewCmd(a))
	rootCmd.AddCommand(envsCmd(a))
	rootCmd.AddCommand(checkCmd(a))
	rootCmd.AddCommand(installCmd(a))
	rootCmd.AddCommand(historyCmd(a))
	rootCmd.AddCommand(openCmd(a))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// initialize loads the configuration and attaches the logger to the
// command's context.
func (a *app) initialize(cmd *cobra.Command) error {
	var opts []config.LoaderOption
	if a.cfgFile != "" {
		opts = append(opts, config.WithConfigFile(a.cfgFile))
	}
	cfg, err := config.NewLoader(a.v, opts...).Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logOpts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.Debug {
		logOpts = append(logOpts, logger.WithDebug())
	}
	if cfg.LogFile != "" {
		f, err := logger.OpenFile(cfg.LogFile)
		if err != nil {
			return err
		}
		a.logFile = f
		logOpts = append(logOpts, logger.WithWriter(f))
	}
	log := logger.NewLogger(logOpts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logger.WithLogger(ctx, log))

	if cfg.ConfigFileUsed != "" {
		log.Debug("Configuration loaded", slog.String("file", cfg.ConfigFileUsed))
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the binary version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
