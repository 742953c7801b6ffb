// Package daemon runs the focus engine in the background: scheduling,
// signal and file-change triggers, and self-spawning.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// Evaluator is the part of the focus engine the scheduler drives.
type Evaluator interface {
	EvaluateOnce(ctx context.Context) (domain.FocusSession, error)
}

// SchedulerConfig holds scheduler timing.
type SchedulerConfig struct {
	EvaluationInterval time.Duration // periodic re-evaluation (default 5 min)
	HeartbeatInterval  time.Duration // registry liveness updates
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		EvaluationInterval: 5 * time.Minute,
		HeartbeatInterval:  30 * time.Second,
	}
}

// Scheduler serializes evaluations on one goroutine.
// Triggers that arrive while an evaluation runs collapse into one follow-up run.
type Scheduler struct {
	config    SchedulerConfig
	evaluator Evaluator
	registry  domain.DaemonRegistry // optional
	daemon    domain.Daemon
	logger    *zap.Logger
	trigger   chan string
	// OnStop runs after the loop exits, with a fresh context.
	OnStop func(ctx context.Context)
}

// NewScheduler creates a scheduler. registry may be nil when running in-process.
func NewScheduler(config SchedulerConfig, evaluator Evaluator, registry domain.DaemonRegistry, daemon domain.Daemon, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultSchedulerConfig()
	if config.EvaluationInterval <= 0 {
		config.EvaluationInterval = defaults.EvaluationInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	return &Scheduler{
		config:    config,
		evaluator: evaluator,
		registry:  registry,
		daemon:    daemon,
		logger:    logger,
		trigger:   make(chan string, 1),
	}
}

// Trigger requests an evaluation. It never blocks.
func (s *Scheduler) Trigger(reason string) {
	select {
	case s.trigger <- reason:
	default:
		s.logger.Debug("evaluation already pending", zap.String("reason", reason))
	}
}

// Run evaluates immediately, then on every tick and trigger, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.registry != nil {
		if err := s.registry.Register(s.daemon); err != nil {
			s.logger.Error("failed to register daemon", zap.Error(err))
			return err
		}
		defer func() {
			if err := s.registry.Clear(); err != nil {
				s.logger.Warn("failed to clear registry", zap.Error(err))
			}
		}()
	}

	s.logger.Info("scheduler started",
		zap.Int("pid", s.daemon.PID),
		zap.Duration("interval", s.config.EvaluationInterval))

	s.evaluate(ctx, "startup")

	evalTicker := time.NewTicker(s.config.EvaluationInterval)
	heartbeatTicker := time.NewTicker(s.config.HeartbeatInterval)
	defer func() {
		evalTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			if s.OnStop != nil {
				s.OnStop(context.Background())
			}
			return ctx.Err()

		case <-evalTicker.C:
			s.evaluate(ctx, "timer")

		case reason := <-s.trigger:
			s.evaluate(ctx, reason)

		case <-heartbeatTicker.C:
			if s.registry == nil {
				continue
			}
			if err := s.registry.UpdateHeartbeat(); err != nil {
				s.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context, reason string) {
	start := time.Now()
	session, err := s.evaluator.EvaluateOnce(ctx)
	if err != nil {
		s.logger.Error("evaluation failed",
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	s.logger.Debug("evaluation completed",
		zap.String("reason", reason),
		zap.String("state", string(session.State)),
		zap.String("profile", session.ActiveProfile),
		zap.Duration("took", time.Since(start)))
}
