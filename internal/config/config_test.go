package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(DefaultDailyQuota), cfg.DailyQuota)
	assert.Equal(t, "file", cfg.LedgerStore)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Hour, cfg.HarvestInterval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DAILY_QUOTA_LIMIT", "25000")
	t.Setenv("LEDGER_STORE", "postgres")
	t.Setenv("HARVEST_INTERVAL", "15m")
	t.Setenv("TRACKED_CHANNELS", "UC-one, UC-two ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(25000), cfg.DailyQuota)
	assert.Equal(t, "postgres", cfg.LedgerStore)
	assert.Equal(t, 15*time.Minute, cfg.HarvestInterval)
	assert.Equal(t, []string{"UC-one", "UC-two"}, cfg.TrackedChannels)
}

func TestParseAPIKeys_NamedAndBare(t *testing.T) {
	keys, err := parseAPIKeys("primary:AIza-one, AIza-two")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"primary": "AIza-one",
		"key2":    "AIza-two",
	}, keys)
}

func TestParseAPIKeys_Empty(t *testing.T) {
	keys, err := parseAPIKeys("")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestParseAPIKeys_Malformed(t *testing.T) {
	_, err := parseAPIKeys("name:")
	assert.Error(t, err)

	_, err = parseAPIKeys("a:1,a:2")
	assert.Error(t, err, "duplicate names must be rejected")
}
