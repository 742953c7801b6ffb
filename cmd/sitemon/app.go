package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/site_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/site_mon/internal/infra"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

// app is the wired object graph shared by every command.
type app struct {
	mode     *infra.ExecModeConfig
	logger   *zap.Logger
	store    *infra.EncryptedStore
	state    *infra.StateStore
	filter   *infra.FileFilterEngine
	history  *infra.SQLiteHistory
	pm       *infra.ProcessManagerImpl
	registry *infra.FileRegistry
	budget   *usecase.ExceptionBudgetTracker
	engine   *usecase.FocusEngine
}

func execMode() *infra.ExecModeConfig {
	if dir := viper.GetString(keyDataDir); dir != "" {
		return infra.ConfigForDataDir(dir)
	}
	return infra.DetectExecMode()
}

func budgetLimits() usecase.BudgetLimits {
	return usecase.BudgetLimits{
		DailyTotal:     viper.GetDuration(keyBudgetDaily),
		NightlyLimit:   viper.GetDuration(keyBudgetNightly),
		NightStartHour: viper.GetInt(keyNightStart),
		NightEndHour:   viper.GetInt(keyNightEnd),
	}
}

// openApp opens the stores and builds the focus engine.
func openApp(ctx context.Context, logger *zap.Logger) (*app, error) {
	mode := execMode()

	key, err := infra.EnsureKey(infra.NewFileKeyProvider(mode.DataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load store key: %w", err)
	}
	store, err := infra.NewEncryptedStore(mode.DataDir, key)
	if err != nil {
		return nil, err
	}
	history, err := infra.NewSQLiteHistory(mode.DataDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	ruleFile := viper.GetString(keyRuleFile)
	if ruleFile == "" {
		ruleFile = mode.RuleFile
	}

	a := &app{
		mode:    mode,
		logger:  logger,
		store:   store,
		state:   infra.NewStateStore(store),
		filter:  infra.NewFileFilterEngine(ruleFile, viper.GetInt(keyEngineCapacity), logger),
		history: history,
		pm:      infra.NewProcessManager(),
	}
	a.registry = infra.NewFileRegistry(mode.DataDir, a.pm)

	clock := infra.SystemClock{}
	a.budget = usecase.NewExceptionBudgetTracker(a.state, budgetLimits(), clock, logger)
	calendar := infra.NewGoogleCalendar(http.DefaultClient, viper.GetString(keyCalendarAPI), viper.GetString(keyCalendarID), logger)

	a.engine = usecase.NewFocusEngine(usecase.FocusEngineDeps{
		Configs:  a.state,
		Sessions: a.state,
		Budget:   a.budget,
		Matcher:  usecase.NewCalendarMatcher(a.state, calendar, logger),
		Compiler: usecase.NewRuleCompiler(logger),
		Syncer:   usecase.NewRuleSynchronizer(a.filter, logger),
		History:  history,
		Clock:    clock,
		Logger:   logger,
		OnReauthRequired: func() {
			logger.Warn("calendar rejected the access token, run 'sitemon auth set-token'")
		},
	}, usecase.EngineSettings{
		RedirectURL:     viper.GetString(keyRedirectURL),
		FallbackMessage: viper.GetString(keyFallbackMessage),
	})
	if err := a.engine.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.history.Close(); err != nil {
		a.logger.Warn("failed to close history", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
}

// notifyDaemon asks a running daemon to pick up a change made by the CLI.
func (a *app) notifyDaemon() {
	sent, err := daemon.SignalDaemon(a.registry, a.pm)
	if err != nil {
		a.logger.Warn("failed to notify daemon", zap.Error(err))
		return
	}
	if !sent {
		a.logger.Debug("no running daemon to notify")
	}
}

// withApp runs fn against a freshly opened app.
func withApp(fn func(ctx context.Context, a *app) error) error {
	logger := createCLILogger()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	a, err := openApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func logLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(viper.GetString(keyLogLevel))
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func createCLILogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(logLevel())
	if logLevel() > zapcore.DebugLevel {
		config.DisableCaller = true
		config.DisableStacktrace = true
	}
	logger, err := config.Build()
	if err != nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

func createDaemonLogger(mode *infra.ExecModeConfig) *zap.Logger {
	if err := os.MkdirAll(mode.DataDir, 0700); err != nil {
		logger, _ := zap.NewProduction()
		return logger
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(logLevel())
	config.OutputPaths = []string{mode.LogFile}
	config.ErrorOutputPaths = []string{mode.LogFile}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
