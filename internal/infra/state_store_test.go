package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

func TestStateStore_ConfigDefaultsAndRoundTrip(t *testing.T) {
	s := NewStateStore(newTestStore(t))
	ctx := context.Background()

	cfg, err := s.LoadConfig(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	require.Len(t, cfg.Profiles, 1)
	assert.Equal(t, domain.ManualProfileName, cfg.Profiles[0].Name)

	want := &domain.Configuration{
		Enabled:       false,
		GlobalMessage: "focus",
		Profiles:      []domain.Profile{{Name: "Work", Keyword: "[Work]"}},
		Rules: []domain.RuleRecord{{
			ID: "1", Kind: domain.RuleKindDomain, Profiles: []string{"Work"}, DomainSpec: "youtube.com",
			AllowedVideos: []domain.AllowedVideo{{ID: "v", Name: "n"}},
		}},
	}
	require.NoError(t, s.SaveConfig(ctx, want))

	got, err := s.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStateStore_Session(t *testing.T) {
	s := NewStateStore(newTestStore(t))
	ctx := context.Background()

	empty, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.FocusSession{}, empty)

	end := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	sess := &domain.FocusSession{
		State:              domain.StateManualFocus,
		ActiveProfile:      "Manual",
		ManualProfile:      "Manual",
		ManualFocusEndTime: &end,
		StatusText:         "Focus",
	}
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateManualFocus, got.State)
	require.NotNil(t, got.ManualFocusEndTime)
	assert.True(t, end.Equal(*got.ManualFocusEndTime))
	assert.Nil(t, got.ExceptionEndTime)
}

func TestStateStore_Exception(t *testing.T) {
	s := NewStateStore(newTestStore(t))
	ctx := context.Background()

	st, err := s.LoadException(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, s.SaveException(ctx, &domain.ExceptionState{LastResetDate: "2024-03-10", DayUsedMs: 42}))
	st, err = s.LoadException(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.ExceptionState{LastResetDate: "2024-03-10", DayUsedMs: 42}, st)
}

func TestStateStore_Token(t *testing.T) {
	s := NewStateStore(newTestStore(t))
	ctx := context.Background()

	_, err := s.Token(ctx)
	assert.ErrorIs(t, err, domain.ErrCalendarUnauthorized)

	assert.Error(t, s.SetToken(ctx, "  "))
	require.NoError(t, s.SetToken(ctx, " ya29.token "))

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", tok)

	require.NoError(t, s.ClearToken(ctx))
	_, err = s.Token(ctx)
	assert.ErrorIs(t, err, domain.ErrCalendarUnauthorized)
}

func TestStateStore_BlockedTabs(t *testing.T) {
	s := NewStateStore(newTestStore(t))
	ctx := context.Background()

	tabs, err := s.BlockedTabs(ctx)
	require.NoError(t, err)
	assert.Empty(t, tabs)

	require.NoError(t, s.SaveBlockedTabs(ctx, map[string]string{"12": "https://facebook.com/"}))
	tabs, err = s.BlockedTabs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://facebook.com/", tabs["12"])
}
