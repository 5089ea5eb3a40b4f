package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zenodev/zeno/internal/config"
	"github.com/zenodev/zeno/internal/engine"
	"github.com/zenodev/zeno/internal/zlog"
)

var runFlags struct {
	configPath string
	verbose    bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the hot-reload supervisor",
	Long:  "Build, supervise, and hot-reload a binary as source files change.",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.configPath, "config", "", "path to zeno.yml (auto-discovered if not set)")
	runCmd.Flags().BoolVarP(&runFlags.verbose, "verbose", "v", false, "enable per-event debug logging")
}

func runRun(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return withExitCode(ExitStartupFailure, fmt.Errorf("get working directory: %w", err))
	}

	path := runFlags.configPath
	if path == "" {
		discovered, err := config.Discover(dir)
		if err != nil {
			return withExitCode(ExitStartupFailure, err)
		}
		path = discovered
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return withExitCode(ExitStartupFailure, fmt.Errorf("load config: %w", err))
	}
	if cfg.Root == config.DefaultRoot {
		cfg.Root = dir
	} else if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(dir, cfg.Root)
	}

	zlog.Configure(cfg.Log.Silent, cfg.Log.AddTime, cfg.Log.MainOnly)

	zlog.Section("zeno")
	zlog.Info(fmt.Sprintf("watching %s", cfg.Root))
	zlog.Debug(runFlags.verbose, fmt.Sprintf("resolved config:\n%s", cfg.String()))

	e := engine.New(cfg, runFlags.verbose)
	if err := e.Start(); err != nil {
		return withExitCode(ExitStartupFailure, fmt.Errorf("start engine: %w", err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlog.Info("shutting down")
	e.Stop()
	return nil
}
