package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

type memConfigs struct {
	cfg *domain.Configuration
}

func (m *memConfigs) LoadConfig(ctx context.Context) (*domain.Configuration, error) {
	if m.cfg == nil {
		return &domain.Configuration{Enabled: true}, nil
	}
	return m.cfg, nil
}

func (m *memConfigs) SaveConfig(ctx context.Context, cfg *domain.Configuration) error {
	m.cfg = cfg
	return nil
}

func TestImportRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  - name: Work
    keyword: "[Work]"
rules:
  - domains: reddit.com
    profiles: [Work]
`), 0600))

	configs := &memConfigs{}
	cfg, err := importRules(context.Background(), configs, path)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)
	firstID := cfg.Rules[0].ID
	assert.NotEmpty(t, firstID)
	assert.Same(t, cfg, configs.cfg)

	again, err := importRules(context.Background(), configs, path)
	require.NoError(t, err)
	assert.Equal(t, firstID, again.Rules[0].ID, "re-import keeps rule ids")
}

func TestImportRules_InvalidKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - kind: teleport\n    profiles: [Work]\n"), 0600))

	previous := &domain.Configuration{Enabled: true, Profiles: []domain.Profile{{Name: "Manual"}}}
	configs := &memConfigs{cfg: previous}

	_, err := importRules(context.Background(), configs, path)
	assert.Error(t, err)
	assert.Same(t, previous, configs.cfg)
}

func TestDaemonArgs(t *testing.T) {
	defer viper.Reset()
	defer func() { cfgFile = "" }()

	assert.Empty(t, daemonArgs())

	viper.Set(keyDataDir, "/tmp/sitemon-data")
	cfgFile = "/tmp/sitemon.yaml"
	assert.Equal(t, []string{"--data-dir", "/tmp/sitemon-data", "--config", "/tmp/sitemon.yaml"}, daemonArgs())
}

func TestBudgetLimitsFromSettings(t *testing.T) {
	defer viper.Reset()
	setDefaults()

	limits := budgetLimits()
	assert.Equal(t, 21, limits.NightStartHour)
	assert.Equal(t, 6, limits.NightEndHour)
	assert.Equal(t, "30m0s", limits.DailyTotal.String())

	viper.Set(keyBudgetDaily, "45m")
	assert.Equal(t, "45m0s", budgetLimits().DailyTotal.String())
}
