// Command timetrack records which window is in front, folds the samples into
// sessions tagged with project codes, and serves a small local API for
// toggling, confirming, and reporting.
//
// `timetrack run` is the daemon; the other subcommands are clients of its API
// or read the data directory directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	rootpkg "tools.zach/dev/timetrack"
	"tools.zach/dev/timetrack/internal/config"
	"tools.zach/dev/timetrack/internal/logger"
	"tools.zach/dev/timetrack/internal/paths"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// ///////////////////////////////////////////////
// Root Command
// ///////////////////////////////////////////////

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	dataDir string
	addr    string
}

func (g *globalFlags) dirs() (paths.DataDir, error) {
	if g.dataDir != "" {
		return paths.DataDir{Root: g.dataDir}, nil
	}
	return paths.Default()
}

// client resolves the daemon address from --addr or the config.
func (g *globalFlags) client() (*apiClient, error) {
	if g.addr != "" {
		return newAPIClient(g.addr), nil
	}
	dp, err := g.dirs()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(dp)
	if err != nil {
		return nil, err
	}
	if !cfg.API.Enabled {
		return nil, errors.New("the API is disabled in config (api.enabled = false)")
	}
	return newAPIClient(cfg.API.Listen), nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   paths.BinaryName,
		Short: "Track time per window and project",
		Long: `timetrack samples the frontmost window, groups consecutive samples into
sessions, and tags sessions with project codes found in titles and paths.

Examples:
  timetrack run                         # start the daemon
  timetrack status                      # what is being tracked right now
  timetrack pause                       # stop tracking until resume
  timetrack confirm <session> BMS1180   # approve a project code
  timetrack sessions --from 2026-10-01 --coded`,
		SilenceUsage: true,
		Version:      resolveVersion(),
	}
	root.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "data directory (default $TIMETRACK_HOME or ~/"+paths.DataDirRel+")")
	root.PersistentFlags().StringVar(&g.addr, "addr", "", "daemon API address (default api.listen from config)")

	root.AddCommand(
		runCmd(g),
		initCmd(g),
		statusCmd(g),
		toggleCmd(g),
		setTrackingCmd(g, "pause", false),
		setTrackingCmd(g, "resume", true),
		confirmCmd(g),
		sessionsCmd(g),
		logsCmd(g),
		versionCmd(),
	)
	return root
}

// ///////////////////////////////////////////////
// Config
// ///////////////////////////////////////////////

// seedConfig writes the documented default config on first run.
func seedConfig(dp paths.DataDir) (bool, error) {
	if _, err := os.Stat(dp.Config()); !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := dp.Ensure(); err != nil {
		return false, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(dp.Config(), rootpkg.DefaultConfigTOML, 0o644); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}

// loadConfig reads config.toml and applies .env and environment overrides.
func loadConfig(dp paths.DataDir) (*config.Config, error) {
	cfg, err := config.Load(dp.Root)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(dp.Env()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// run
// ///////////////////////////////////////////////

func runCmd(g *globalFlags) *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tracking daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dp, err := g.dirs()
			if err != nil {
				return err
			}
			var console io.Writer
			if foreground {
				console = cmd.ErrOrStderr()
			}
			return runDaemon(cmd.Context(), dp, console)
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "also log to stderr")
	return cmd
}

// runDaemon is `timetrack run`: single-instance checks, logging, then the
// daemon until a shutdown signal. console, when set, mirrors the log.
func runDaemon(ctx context.Context, dp paths.DataDir, console io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := dp.Ensure(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if alive, pid := runningPID(dp); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	if _, err := seedConfig(dp); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	cfg, err := loadConfig(dp)
	if err != nil {
		return err
	}

	log, logCloser := logger.New(logger.Options{
		Path:      dp.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Console:   console,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("timetrack starting",
		"version", resolveVersion(),
		"data_dir", dp.Root,
		"store", cfg.Store.Driver,
		"source", cfg.Source.Kind,
		"poll", cfg.PollInterval(),
	)

	token := pidToken()
	pidFile, err := writePID(dp, token)
	if err != nil {
		logger.Fail(log, "failed to write PID file", "error", err)
		return err
	}
	defer removePID(dp, token, pidFile)

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	d, err := newDaemon(ctx, dp, cfg)
	if err != nil {
		logger.Fail(log, "daemon setup failed", "error", err)
		return err
	}
	defer d.close()

	err = d.run(ctx)
	if err != nil {
		slog.Error("daemon stopped with error", "error", err)
	} else {
		slog.Info("timetrack stopped")
	}
	return err
}

// ///////////////////////////////////////////////
// init / version
// ///////////////////////////////////////////////

func initCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dp, err := g.dirs()
			if err != nil {
				return err
			}
			created, err := seedConfig(dp)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", dp.Config())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", dp.Config())
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveVersion())
		},
	}
}
