package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// calendarLookahead bounds the event query around now.
const calendarLookahead = time.Minute

// CalendarMatcher finds the profile whose keyword appears in an event active now.
type CalendarMatcher struct {
	tokens   domain.TokenSource
	calendar domain.CalendarSource
	logger   *zap.Logger
}

// NewCalendarMatcher creates a matcher.
func NewCalendarMatcher(tokens domain.TokenSource, calendar domain.CalendarSource, logger *zap.Logger) *CalendarMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarMatcher{tokens: tokens, calendar: calendar, logger: logger}
}

// Match returns the first profile, in configured order, whose keyword is contained
// case-insensitively in the summary of an event covering now. "" means no match.
// Only domain.ErrCalendarUnauthorized is returned; other failures are logged and treated as no match.
func (m *CalendarMatcher) Match(ctx context.Context, profiles []domain.Profile, now time.Time) (string, error) {
	var triggered []domain.Profile
	for _, p := range profiles {
		if p.HasTrigger() {
			triggered = append(triggered, p)
		}
	}
	if len(triggered) == 0 || m.calendar == nil {
		return "", nil
	}

	events, err := m.fetch(ctx, triggered, now)
	if err != nil {
		if errors.Is(err, domain.ErrCalendarUnauthorized) {
			return "", err
		}
		m.logger.Warn("calendar query failed, treating as no match", zap.Error(err))
		return "", nil
	}

	var active []domain.CalendarEvent
	for _, e := range events {
		if e.ActiveAt(now) {
			active = append(active, e)
		}
	}

	for _, p := range triggered {
		kw := strings.ToLower(p.Keyword)
		for _, e := range active {
			if strings.Contains(strings.ToLower(e.Summary), kw) {
				m.logger.Debug("calendar match",
					zap.String("profile", p.Name),
					zap.String("event", e.Summary))
				return p.Name, nil
			}
		}
	}
	return "", nil
}

func (m *CalendarMatcher) fetch(ctx context.Context, triggered []domain.Profile, now time.Time) ([]domain.CalendarEvent, error) {
	if m.tokens == nil {
		return nil, domain.ErrCalendarUnauthorized
	}
	token, err := m.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("calendar token: %w", err)
	}

	// A single keyword can be pushed down to the calendar as a text query.
	hint := ""
	if len(triggered) == 1 {
		hint = triggered[0].Keyword
	}

	window := domain.TimeWindow{Start: now, End: now.Add(calendarLookahead)}
	return m.calendar.FetchEvents(ctx, token, window, hint)
}
