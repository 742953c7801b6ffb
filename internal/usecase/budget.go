package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

const dateLayout = "2006-01-02"

// BudgetLimits configures the exception allowance.
type BudgetLimits struct {
	DailyTotal     time.Duration
	NightlyLimit   time.Duration
	NightStartHour int
	NightEndHour   int
}

// DefaultBudgetLimits returns 30 minutes a day, 10 of them at night (21:00-06:00).
func DefaultBudgetLimits() BudgetLimits {
	return BudgetLimits{
		DailyTotal:     30 * time.Minute,
		NightlyLimit:   10 * time.Minute,
		NightStartHour: 21,
		NightEndHour:   6,
	}
}

// InNightWindow reports whether now falls in [NightStartHour, NightEndHour) local time.
// The window wraps past midnight when start > end.
func (l BudgetLimits) InNightWindow(now time.Time) bool {
	h := now.Hour()
	if l.NightStartHour == l.NightEndHour {
		return false
	}
	if l.NightStartHour < l.NightEndHour {
		return h >= l.NightStartHour && h < l.NightEndHour
	}
	return h >= l.NightStartHour || h < l.NightEndHour
}

// ExceptionBudgetTracker accounts exception usage against daily and nightly quotas.
type ExceptionBudgetTracker struct {
	store  domain.ExceptionStore
	limits BudgetLimits
	clock  domain.Clock
	logger *zap.Logger
}

// NewExceptionBudgetTracker creates a tracker.
func NewExceptionBudgetTracker(store domain.ExceptionStore, limits BudgetLimits, clock domain.Clock, logger *zap.Logger) *ExceptionBudgetTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExceptionBudgetTracker{store: store, limits: limits, clock: clock, logger: logger}
}

// Limits returns the configured quotas.
func (t *ExceptionBudgetTracker) Limits() BudgetLimits {
	return t.limits
}

// GetState returns today's usage, resetting and persisting it when the day changed.
func (t *ExceptionBudgetTracker) GetState(ctx context.Context) (*domain.ExceptionState, error) {
	return t.stateAt(ctx, t.clock.Now())
}

func (t *ExceptionBudgetTracker) stateAt(ctx context.Context, now time.Time) (*domain.ExceptionState, error) {
	st, err := t.store.LoadException(ctx)
	if err != nil {
		return nil, fmt.Errorf("load exception state: %w", err)
	}

	today := now.Format(dateLayout)
	if st != nil && st.LastResetDate == today {
		return st, nil
	}

	fresh := &domain.ExceptionState{LastResetDate: today}
	if err := t.store.SaveException(ctx, fresh); err != nil {
		return nil, fmt.Errorf("save exception state: %w", err)
	}
	if st != nil {
		t.logger.Info("exception budget reset",
			zap.String("previous", st.LastResetDate),
			zap.String("today", today))
	}
	return fresh, nil
}

// Available returns the exception time that can still be granted at now.
func (t *ExceptionBudgetTracker) Available(ctx context.Context, now time.Time) (time.Duration, error) {
	st, err := t.stateAt(ctx, now)
	if err != nil {
		return 0, err
	}

	day := time.Duration(st.DayUsedMs) * time.Millisecond
	night := time.Duration(st.NightUsedMs) * time.Millisecond

	total := t.limits.DailyTotal - (day + night)
	if total < 0 {
		total = 0
	}
	if !t.limits.InNightWindow(now) {
		return total, nil
	}

	nightLeft := t.limits.NightlyLimit - night
	if nightLeft < 0 {
		nightLeft = 0
	}
	if nightLeft < total {
		return nightLeft, nil
	}
	return total, nil
}

// AddUsage records d against the counter for now's window.
// Usage is not clamped to the remaining allowance; callers grant at most Available.
func (t *ExceptionBudgetTracker) AddUsage(ctx context.Context, d time.Duration, now time.Time) error {
	if d <= 0 {
		return nil
	}

	st, err := t.stateAt(ctx, now)
	if err != nil {
		return err
	}

	if t.limits.InNightWindow(now) {
		st.NightUsedMs += d.Milliseconds()
	} else {
		st.DayUsedMs += d.Milliseconds()
	}

	if err := t.store.SaveException(ctx, st); err != nil {
		return fmt.Errorf("save exception state: %w", err)
	}
	return nil
}
