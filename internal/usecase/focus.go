package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
)

// Status texts shown to the user.
const (
	StatusDisabled          = "Disabled"
	StatusInactive          = "Inactive"
	StatusAuthRequired      = "Auth Required"
	StatusError             = "Error"
	StatusRuleLimitExceeded = "Rule Limit Exceeded"
)

const clockLayout = "15:04"

// maxDecideAttempts bounds how often a cycle re-decides after another process
// changed the session timers underneath it.
const maxDecideAttempts = 3

// EngineSettings are the process-level knobs of the focus engine.
type EngineSettings struct {
	// RedirectURL is the block page; any query string is replaced.
	RedirectURL string
	// FallbackMessage is used when neither the rule nor the configuration has a message.
	FallbackMessage string
}

// FocusEngineDeps groups the engine collaborators.
type FocusEngineDeps struct {
	Configs  domain.ConfigStore
	Sessions domain.SessionStore
	Budget   *ExceptionBudgetTracker
	Matcher  *CalendarMatcher
	Compiler *RuleCompiler
	Syncer   *RuleSynchronizer
	History  domain.HistoryRecorder // optional
	Clock    domain.Clock
	Logger   *zap.Logger

	// OnReauthRequired is called when the calendar rejects the token.
	OnReauthRequired func()
}

// FocusEngine decides which profile is active and keeps the filter engine in step.
type FocusEngine struct {
	deps     FocusEngineDeps
	settings EngineSettings
	logger   *zap.Logger

	version atomic.Uint64

	mu             sync.Mutex
	appliedVersion uint64
	session        domain.FocusSession
}

// NewFocusEngine creates an engine. Call Load before the first evaluation.
func NewFocusEngine(deps FocusEngineDeps, settings EngineSettings) *FocusEngine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Compiler == nil {
		deps.Compiler = NewRuleCompiler(logger)
	}
	return &FocusEngine{deps: deps, settings: settings, logger: logger}
}

// Load restores the persisted session.
func (e *FocusEngine) Load(ctx context.Context) error {
	s, err := e.deps.Sessions.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = *s
	return nil
}

// Session returns the most recent decision.
func (e *FocusEngine) Session() domain.FocusSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// decision is the outcome of the decide phase.
type decision struct {
	state   domain.FocusState
	profile string
	status  string
	auth    bool
}

// EvaluateOnce runs one full decide-and-apply cycle.
// A cycle superseded by a newer one that already applied is discarded.
// The filter engine is always reconciled against the rules it actually holds,
// so rules installed by another process are corrected here too.
func (e *FocusEngine) EvaluateOnce(ctx context.Context) (domain.FocusSession, error) {
	v := e.version.Add(1)
	now := e.deps.Clock.Now()

	cfg, err := e.deps.Configs.LoadConfig(ctx)
	if err != nil {
		return e.Session(), fmt.Errorf("load config: %w", err)
	}
	reg, err := policy.NewRegistry(cfg)
	if err != nil {
		return e.Session(), fmt.Errorf("invalid configuration: %w", err)
	}

	for attempt := 1; ; attempt++ {
		stored, err := e.deps.Sessions.LoadSession(ctx)
		if err != nil {
			return e.Session(), fmt.Errorf("load session: %w", err)
		}
		next := *stored

		d, err := e.decide(ctx, cfg, reg, &next, now)
		if err != nil {
			return e.Session(), err
		}

		s, stale, err := e.apply(ctx, v, cfg, reg, stored, &next, d, now, attempt >= maxDecideAttempts)
		if stale {
			e.logger.Debug("session changed during evaluation, deciding again",
				zap.Int("attempt", attempt))
			continue
		}
		return s, err
	}
}

// apply installs the decision and persists it.
// The session is re-read under the lock and only the decision fields, plus
// timers this cycle saw expire, are written back. When the timers the decision
// was based on changed meanwhile, apply reports stale unless final is set.
func (e *FocusEngine) apply(ctx context.Context, v uint64, cfg *domain.Configuration, reg *policy.Registry,
	stored, decided *domain.FocusSession, d decision, now time.Time, final bool) (domain.FocusSession, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v < e.appliedVersion {
		e.logger.Debug("discarding superseded evaluation",
			zap.Uint64("version", v),
			zap.Uint64("applied", e.appliedVersion))
		return e.session, false, nil
	}

	latest, err := e.deps.Sessions.LoadSession(ctx)
	if err != nil {
		return e.session, false, fmt.Errorf("load session: %w", err)
	}
	if !sameTimers(stored, latest) && !final {
		return e.session, true, nil
	}
	prev := *latest

	var desired []domain.CompiledFilterRule
	if d.profile != "" {
		desired = e.deps.Compiler.Compile(reg.RulesFor(d.profile), e.fallbackMessage(cfg), e.settings.RedirectURL)
	}

	syncErr := e.deps.Syncer.Sync(ctx, desired)
	if syncErr != nil {
		e.logger.Error("rule sync failed",
			zap.String("profile", d.profile),
			zap.Error(syncErr))
		d.state = domain.StateError
		d.status = StatusError
		if errors.Is(syncErr, domain.ErrRuleLimitExceeded) {
			d.status = StatusRuleLimitExceeded
		}
		// The engine applies changes atomically, so what is installed is still
		// what the last successful cycle recorded.
		d.profile = latest.ActiveProfile
	}

	clearExpiredTimers(latest, stored, decided)
	latest.State = d.state
	latest.ActiveProfile = d.profile
	latest.StatusText = d.status
	latest.AuthRequired = d.auth
	latest.EvaluatedAt = now

	if err := e.deps.Sessions.SaveSession(ctx, latest); err != nil {
		e.logger.Warn("failed to persist session", zap.Error(err))
	}
	e.recordTransition(ctx, &prev, latest, now)

	e.appliedVersion = v
	e.session = *latest

	if d.auth && e.deps.OnReauthRequired != nil {
		e.deps.OnReauthRequired()
	}

	return *latest, false, syncErr
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// sameTimers reports whether the user-set timers of two session snapshots agree.
func sameTimers(a, b *domain.FocusSession) bool {
	return a.ManualProfile == b.ManualProfile &&
		sameTime(a.ManualFocusEndTime, b.ManualFocusEndTime) &&
		sameTime(a.ExceptionEndTime, b.ExceptionEndTime)
}

// clearExpiredTimers copies onto latest the timers decide cleared from stored,
// leaving alone any timer that was set again in the meantime.
func clearExpiredTimers(latest, stored, decided *domain.FocusSession) {
	if stored.ManualFocusEndTime != nil && decided.ManualFocusEndTime == nil &&
		sameTime(latest.ManualFocusEndTime, stored.ManualFocusEndTime) {
		latest.ManualFocusEndTime = nil
		latest.ManualProfile = decided.ManualProfile
	}
	if stored.ExceptionEndTime != nil && decided.ExceptionEndTime == nil &&
		sameTime(latest.ExceptionEndTime, stored.ExceptionEndTime) {
		latest.ExceptionEndTime = nil
	}
}

// decide applies the decision order and clears expired or irrelevant timers on s.
func (e *FocusEngine) decide(ctx context.Context, cfg *domain.Configuration, reg *policy.Registry, s *domain.FocusSession, now time.Time) (decision, error) {
	if !cfg.Enabled {
		s.ManualFocusEndTime = nil
		s.ExceptionEndTime = nil
		return decision{state: domain.StateDisabled, status: StatusDisabled}, nil
	}

	if s.ManualActive(now) {
		profile := s.ManualProfile
		if profile == "" {
			profile = domain.ManualProfileName
		}
		return decision{
			state:   domain.StateManualFocus,
			profile: profile,
			status:  fmt.Sprintf("Focus: %s (manual until %s)", profile, s.ManualFocusEndTime.Format(clockLayout)),
		}, nil
	}
	if s.ManualFocusEndTime != nil {
		e.logger.Info("manual focus expired", zap.String("profile", s.ManualProfile))
		s.ManualFocusEndTime = nil
		s.ManualProfile = ""
	}

	if s.ExceptionActive(now) {
		return decision{
			state:  domain.StateExceptionGranted,
			status: fmt.Sprintf("Exception until %s", s.ExceptionEndTime.Format(clockLayout)),
		}, nil
	}
	if s.ExceptionEndTime != nil {
		e.logger.Info("exception expired")
		s.ExceptionEndTime = nil
	}

	profile, err := e.deps.Matcher.Match(ctx, reg.Profiles(), now)
	if err != nil {
		if errors.Is(err, domain.ErrCalendarUnauthorized) {
			e.logger.Warn("calendar authorization required", zap.Error(err))
			return decision{state: domain.StateInactive, status: StatusAuthRequired, auth: true}, nil
		}
		return decision{}, err
	}
	if profile != "" {
		return decision{
			state:   domain.StateCalendarFocus,
			profile: profile,
			status:  fmt.Sprintf("Focus: %s (calendar)", profile),
		}, nil
	}

	return decision{state: domain.StateInactive, status: StatusInactive}, nil
}

func (e *FocusEngine) fallbackMessage(cfg *domain.Configuration) string {
	if cfg.GlobalMessage != "" {
		return cfg.GlobalMessage
	}
	return e.settings.FallbackMessage
}

func (e *FocusEngine) recordTransition(ctx context.Context, prev, next *domain.FocusSession, now time.Time) {
	if e.deps.History == nil {
		return
	}
	if prev.State == next.State && prev.ActiveProfile == next.ActiveProfile {
		return
	}
	t := domain.Transition{
		At:          now,
		FromState:   prev.State,
		ToState:     next.State,
		FromProfile: prev.ActiveProfile,
		ToProfile:   next.ActiveProfile,
		StatusText:  next.StatusText,
	}
	if err := e.deps.History.RecordTransition(ctx, t); err != nil {
		e.logger.Warn("failed to record transition", zap.Error(err))
	}
}

// Teardown removes every rule this engine installed.
func (e *FocusEngine) Teardown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.deps.Syncer.Sync(ctx, nil); err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	e.logger.Info("focus engine torn down")
	return nil
}

// updateSession applies fn to the stored session and persists it.
func (e *FocusEngine) updateSession(ctx context.Context, fn func(s *domain.FocusSession)) error {
	s, err := e.deps.Sessions.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	fn(s)
	if err := e.deps.Sessions.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// StartManualFocus activates profile for d, overriding calendar matches.
// An empty profile selects the reserved manual profile.
func (e *FocusEngine) StartManualFocus(ctx context.Context, profile string, d time.Duration) (domain.FocusSession, error) {
	if d <= 0 {
		return e.Session(), fmt.Errorf("focus duration must be positive, got %s", d)
	}
	if profile == "" {
		profile = domain.ManualProfileName
	}
	if profile != domain.ManualProfileName {
		if err := e.requireProfile(ctx, profile); err != nil {
			return e.Session(), err
		}
	}

	end := e.deps.Clock.Now().Add(d)
	err := e.updateSession(ctx, func(s *domain.FocusSession) {
		s.ManualProfile = profile
		s.ManualFocusEndTime = &end
	})
	if err != nil {
		return e.Session(), err
	}
	e.logger.Info("manual focus started",
		zap.String("profile", profile),
		zap.Duration("duration", d))
	return e.EvaluateOnce(ctx)
}

// StopManualFocus ends a running manual focus.
func (e *FocusEngine) StopManualFocus(ctx context.Context) (domain.FocusSession, error) {
	err := e.updateSession(ctx, func(s *domain.FocusSession) {
		s.ManualFocusEndTime = nil
		s.ManualProfile = ""
	})
	if err != nil {
		return e.Session(), err
	}
	return e.EvaluateOnce(ctx)
}

// GrantException lifts blocking for min(requested, available) and charges the budget.
func (e *FocusEngine) GrantException(ctx context.Context, requested time.Duration) (time.Duration, domain.FocusSession, error) {
	if requested <= 0 {
		return 0, e.Session(), fmt.Errorf("exception duration must be positive, got %s", requested)
	}

	now := e.deps.Clock.Now()
	available, err := e.deps.Budget.Available(ctx, now)
	if err != nil {
		return 0, e.Session(), err
	}
	if available <= 0 {
		return 0, e.Session(), domain.ErrBudgetExhausted
	}

	granted := requested
	if available < granted {
		granted = available
	}
	if err := e.deps.Budget.AddUsage(ctx, granted, now); err != nil {
		return 0, e.Session(), err
	}

	end := now.Add(granted)
	if err := e.updateSession(ctx, func(s *domain.FocusSession) { s.ExceptionEndTime = &end }); err != nil {
		return 0, e.Session(), err
	}
	e.logger.Info("exception granted",
		zap.Duration("requested", requested),
		zap.Duration("granted", granted))

	s, err := e.EvaluateOnce(ctx)
	return granted, s, err
}

// EndException ends a running exception early. Used time is not refunded.
func (e *FocusEngine) EndException(ctx context.Context) (domain.FocusSession, error) {
	if err := e.updateSession(ctx, func(s *domain.FocusSession) { s.ExceptionEndTime = nil }); err != nil {
		return e.Session(), err
	}
	return e.EvaluateOnce(ctx)
}

// SetEnabled flips the global switch in the configuration.
func (e *FocusEngine) SetEnabled(ctx context.Context, enabled bool) (domain.FocusSession, error) {
	cfg, err := e.deps.Configs.LoadConfig(ctx)
	if err != nil {
		return e.Session(), fmt.Errorf("load config: %w", err)
	}
	cfg.Enabled = enabled
	if err := e.deps.Configs.SaveConfig(ctx, cfg); err != nil {
		return e.Session(), fmt.Errorf("save config: %w", err)
	}
	return e.EvaluateOnce(ctx)
}

// CheckURL reports whether the active profile's rules would block rawURL.
func (e *FocusEngine) CheckURL(ctx context.Context, rawURL string) (policy.Verdict, error) {
	profile := e.Session().ActiveProfile
	if profile == "" {
		return policy.Verdict{Reason: "no active focus"}, nil
	}

	cfg, err := e.deps.Configs.LoadConfig(ctx)
	if err != nil {
		return policy.Verdict{}, fmt.Errorf("load config: %w", err)
	}
	reg, err := policy.NewRegistry(cfg)
	if err != nil {
		return policy.Verdict{}, fmt.Errorf("invalid configuration: %w", err)
	}

	v := policy.Check(reg.RulesFor(profile), rawURL)
	if v.Blocked && v.Message == "" {
		v.Message = e.fallbackMessage(cfg)
	}
	return v, nil
}

func (e *FocusEngine) requireProfile(ctx context.Context, name string) error {
	cfg, err := e.deps.Configs.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, err := policy.NewRegistry(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, ok := reg.Profile(name); !ok {
		return fmt.Errorf("%w: %s", domain.ErrProfileNotFound, name)
	}
	return nil
}
