package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// fakeClock implements domain.Clock for testing
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeFilterEngine implements domain.FilterEngine for testing
type fakeFilterEngine struct {
	mu        sync.Mutex
	rules     []domain.CompiledFilterRule
	capacity  int
	readErr   error
	applyErr  error
	applied   []domain.RuleChanges
	readCalls int
}

func (f *fakeFilterEngine) ActiveRules(ctx context.Context) ([]domain.CompiledFilterRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]domain.CompiledFilterRule, len(f.rules))
	copy(out, f.rules)
	return out, nil
}

func (f *fakeFilterEngine) ApplyChanges(ctx context.Context, changes domain.RuleChanges) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, changes)
	if f.applyErr != nil {
		return f.applyErr
	}

	remove := make(map[int]bool, len(changes.RemoveIDs))
	for _, id := range changes.RemoveIDs {
		remove[id] = true
	}
	var next []domain.CompiledFilterRule
	for _, r := range f.rules {
		if !remove[r.ID] {
			next = append(next, r)
		}
	}
	next = append(next, changes.AddRules...)
	if f.capacity > 0 && len(next) > f.capacity {
		return fmt.Errorf("engine holds %d rules: %w", f.capacity, domain.ErrCapacityExceeded)
	}
	f.rules = next
	return nil
}

// memConfigStore implements domain.ConfigStore for testing
type memConfigStore struct {
	cfg     *domain.Configuration
	loadErr error
}

func (m *memConfigStore) LoadConfig(ctx context.Context) (*domain.Configuration, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.cfg == nil {
		return &domain.Configuration{Enabled: true}, nil
	}
	cp := *m.cfg
	return &cp, nil
}

func (m *memConfigStore) SaveConfig(ctx context.Context, cfg *domain.Configuration) error {
	cp := *cfg
	m.cfg = &cp
	return nil
}

// memSessionStore implements domain.SessionStore for testing
type memSessionStore struct {
	session *domain.FocusSession
	saves   int
}

func (m *memSessionStore) LoadSession(ctx context.Context) (*domain.FocusSession, error) {
	if m.session == nil {
		return &domain.FocusSession{}, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *memSessionStore) SaveSession(ctx context.Context, s *domain.FocusSession) error {
	cp := *s
	m.session = &cp
	m.saves++
	return nil
}

// memExceptionStore implements domain.ExceptionStore for testing
type memExceptionStore struct {
	state *domain.ExceptionState
	saves int
}

func (m *memExceptionStore) LoadException(ctx context.Context) (*domain.ExceptionState, error) {
	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	return &cp, nil
}

func (m *memExceptionStore) SaveException(ctx context.Context, st *domain.ExceptionState) error {
	cp := *st
	m.state = &cp
	m.saves++
	return nil
}

// staticTokens implements domain.TokenSource for testing
type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	return s.token, s.err
}

// fakeCalendar implements domain.CalendarSource for testing
type fakeCalendar struct {
	events []domain.CalendarEvent
	err    error
	calls  int
	hints  []string
	// during runs inside each fetch, after the result is captured.
	during func(call int)
}

func (f *fakeCalendar) FetchEvents(ctx context.Context, token string, window domain.TimeWindow, keywordHint string) ([]domain.CalendarEvent, error) {
	f.calls++
	f.hints = append(f.hints, keywordHint)
	events, err := f.events, f.err
	if f.during != nil {
		f.during(f.calls)
	}
	if err != nil {
		return nil, err
	}
	return events, nil
}

// memHistory implements domain.HistoryRecorder for testing
type memHistory struct {
	transitions []domain.Transition
}

func (m *memHistory) RecordTransition(ctx context.Context, t domain.Transition) error {
	m.transitions = append(m.transitions, t)
	return nil
}

func (m *memHistory) Recent(ctx context.Context, limit int) ([]domain.Transition, error) {
	if limit <= 0 || limit > len(m.transitions) {
		limit = len(m.transitions)
	}
	return m.transitions[len(m.transitions)-limit:], nil
}
