package daemon

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// countingEvaluator implements Evaluator for testing
type countingEvaluator struct {
	calls   atomic.Int32
	block   chan struct{}
	err     error
	running atomic.Int32
	overlap atomic.Bool
}

func (e *countingEvaluator) EvaluateOnce(ctx context.Context) (domain.FocusSession, error) {
	if e.running.Add(1) > 1 {
		e.overlap.Store(true)
	}
	defer e.running.Add(-1)
	e.calls.Add(1)
	if e.block != nil {
		<-e.block
	}
	return domain.FocusSession{State: domain.StateInactive}, e.err
}

// mockDaemonRegistry is a test double for domain.DaemonRegistry
type mockDaemonRegistry struct {
	mu          sync.Mutex
	entry       *domain.RegistryEntry
	heartbeats  int
	cleared     bool
	registerErr error
}

func (m *mockDaemonRegistry) Register(d domain.Daemon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	m.entry = &domain.RegistryEntry{Version: 1, PID: d.PID, AppVersion: d.AppVersion}
	return nil
}

func (m *mockDaemonRegistry) UpdateHeartbeat() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	return nil
}

func (m *mockDaemonRegistry) IsAlive() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry != nil, nil
}

func (m *mockDaemonRegistry) GetAll() (*domain.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry, nil
}

func (m *mockDaemonRegistry) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = nil
	m.cleared = true
	return nil
}

func (m *mockDaemonRegistry) GetRegistryPath() string { return "/tmp/mock-registry" }

func (m *mockDaemonRegistry) heartbeatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeats
}

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.Equal(t, 5*time.Minute, config.EvaluationInterval)
	assert.Equal(t, 30*time.Second, config.HeartbeatInterval)

	s := NewScheduler(SchedulerConfig{}, &countingEvaluator{}, nil, domain.Daemon{}, nil)
	assert.Equal(t, config, s.config)
}

func TestScheduler_EvaluatesOnStartupAndTrigger(t *testing.T) {
	eval := &countingEvaluator{}
	s := NewScheduler(SchedulerConfig{EvaluationInterval: time.Hour, HeartbeatInterval: time.Hour}, eval, nil, domain.Daemon{PID: os.Getpid()}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return eval.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.Trigger("config")
	assert.Eventually(t, func() bool { return eval.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestScheduler_CoalescesTriggers(t *testing.T) {
	eval := &countingEvaluator{block: make(chan struct{})}
	s := NewScheduler(SchedulerConfig{EvaluationInterval: time.Hour, HeartbeatInterval: time.Hour}, eval, nil, domain.Daemon{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	// Startup evaluation is now blocked; pile up triggers.
	require.Eventually(t, func() bool { return eval.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 10; i++ {
		s.Trigger("burst")
	}

	eval.block <- struct{}{} // release startup run
	eval.block <- struct{}{} // release the single follow-up

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), eval.calls.Load())
	assert.False(t, eval.overlap.Load(), "evaluations must not overlap")
}

func TestScheduler_PeriodicAndHeartbeat(t *testing.T) {
	eval := &countingEvaluator{}
	reg := &mockDaemonRegistry{}
	s := NewScheduler(SchedulerConfig{EvaluationInterval: 10 * time.Millisecond, HeartbeatInterval: 10 * time.Millisecond},
		eval, reg, domain.Daemon{PID: 42, AppVersion: "test"}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return eval.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return reg.heartbeatCount() >= 2 }, time.Second, 5*time.Millisecond)

	entry, _ := reg.GetAll()
	require.NotNil(t, entry)
	assert.Equal(t, 42, entry.PID)

	cancel()
	<-done
	assert.True(t, reg.cleared)
}

func TestScheduler_RegisterFailureStops(t *testing.T) {
	eval := &countingEvaluator{}
	reg := &mockDaemonRegistry{registerErr: errors.New("daemon already running with pid 1")}
	s := NewScheduler(DefaultSchedulerConfig(), eval, reg, domain.Daemon{PID: 2}, zap.NewNop())

	err := s.Run(context.Background())

	assert.ErrorContains(t, err, "already running")
	assert.Zero(t, eval.calls.Load())
}

func TestScheduler_EvaluationErrorsKeepRunning(t *testing.T) {
	eval := &countingEvaluator{err: errors.New("sync failed")}
	s := NewScheduler(SchedulerConfig{EvaluationInterval: 10 * time.Millisecond, HeartbeatInterval: time.Hour}, eval, nil, domain.Daemon{}, zap.NewNop())

	var stopped atomic.Bool
	s.OnStop = func(ctx context.Context) { stopped.Store(true) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return eval.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.True(t, stopped.Load())
}
