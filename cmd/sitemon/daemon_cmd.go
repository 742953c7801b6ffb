package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/infra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the background daemon",
	Long: `Starts the sitemon daemon in the background. The daemon re-evaluates
focus every few minutes, whenever the CLI changes something, and whenever
the rules file changes.`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	Long:  `Stops the daemon. Installed blocking rules are removed on the way out.`,
	RunE:  runStop,
}

// Hidden daemon command - used for self-exec when spawning the daemon
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(daemonCmd)
}

// daemonArgs forwards the settings that locate state to the spawned daemon.
func daemonArgs() []string {
	var args []string
	if dir := viper.GetString(keyDataDir); dir != "" {
		args = append(args, "--"+keyDataDir, dir)
	}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	return args
}

func runStart(cmd *cobra.Command, args []string) error {
	mode := execMode()
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(mode.DataDir, pm)

	if alive, _ := registry.IsAlive(); alive {
		fmt.Println("sitemon is already running")
		return nil
	}

	if err := daemon.StartDaemon(daemonArgs()...); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait a moment for the daemon to register
	time.Sleep(500 * time.Millisecond)

	entry, _ := registry.GetAll()
	if entry == nil || !pm.IsRunning(entry.PID) {
		return fmt.Errorf("daemon did not come up, see %s", mode.LogFile)
	}
	fmt.Printf("sitemon started (pid %d, mode %s)\n", entry.PID, mode.Mode)
	fmt.Printf("Data: %s\n", mode.DataDir)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	mode := execMode()
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(mode.DataDir, pm)

	sent, err := daemon.StopDaemon(registry, pm)
	if err != nil {
		return err
	}
	if !sent {
		fmt.Println("sitemon is not running")
		return nil
	}
	fmt.Println("sitemon stopping")
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	mode := execMode()
	logger := createDaemonLogger(mode)
	defer func() { _ = logger.Sync() }()

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	a, err := openApp(ctx, logger)
	if err != nil {
		logger.Error("failed to open state", zap.Error(err))
		return err
	}
	defer a.Close()

	d := domain.Daemon{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		AppVersion: Version,
	}
	scheduler := daemon.NewScheduler(daemon.SchedulerConfig{
		EvaluationInterval: viper.GetDuration(keyInterval),
	}, a.engine, a.registry, d, logger)
	scheduler.OnStop = func(ctx context.Context) {
		if err := a.engine.Teardown(ctx); err != nil {
			logger.Warn("failed to remove rules on shutdown", zap.Error(err))
		}
	}

	daemon.ForwardSignals(ctx, scheduler, logger)

	if path := viper.GetString(keyRulesDocument); path != "" {
		watchRulesDocument(ctx, a, scheduler, path)
	}
	go pruneHistory(ctx, a)

	err = scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("daemon stopped")
		return nil
	}
	return err
}

// watchRulesDocument imports path now and again on every change.
func watchRulesDocument(ctx context.Context, a *app, scheduler *daemon.Scheduler, path string) {
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	reload := func() error {
		if _, err := importRules(ctx, a.state, path); err != nil {
			return err
		}
		scheduler.Trigger("rules file")
		return nil
	}
	if err := reload(); err != nil {
		a.logger.Warn("failed to import rules file", zap.String("path", path), zap.Error(err))
	}

	watcher := daemon.NewConfigWatcher(path, reload, a.logger)
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("rules file watcher stopped", zap.Error(err))
		}
	}()
}

// pruneHistory drops old transitions at startup and once a day.
func pruneHistory(ctx context.Context, a *app) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := a.history.Prune(ctx, time.Now().Add(-historyRetention))
		if err != nil {
			a.logger.Warn("failed to prune history", zap.Error(err))
		} else if n > 0 {
			a.logger.Info("pruned history", zap.Int64("removed", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
