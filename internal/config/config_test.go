package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"KabuScout/internal/calculator"
	"KabuScout/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "GEMINI_API_KEY", "GEMINI_MODEL", "HTTPS_PROXY",
	"SQLITE_PATH", "TRACKING_BACKEND", "TRACKING_PATH", "CRON_SCAN", "CRON_VERIFY",
	"SCHEDULE_TIMEZONE", "PUSHGATEWAY_URL", "LOG_LEVEL", "SCAN_PRESET", "ADVISORY_ENABLED",
	"RUN_ON_START", "ADVISORY_CALL_DELAY",
}

// clearEnv blanks every override so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 180, cfg.DataSource.LookbackDays)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, calculator.DefaultParams(), cfg.Scan.Indicators)
	assert.Equal(t, "oversold", cfg.Scan.Preset)
	assert.Equal(t, 3, cfg.Advisory.MaxAttempts)
	assert.Equal(t, []time.Duration{20 * time.Second, 30 * time.Second, 40 * time.Second}, cfg.Advisory.Backoff)
	assert.Zero(t, cfg.Advisory.CallDelay)
	assert.Equal(t, "csv", cfg.Tracking.Backend)
	assert.Equal(t, 7*24*time.Hour, cfg.Tracking.TTL)
	assert.Equal(t, "Asia/Tokyo", cfg.Schedule.Timezone)

	wl := cfg.WatchlistMap()
	require.Len(t, wl, 2)
	require.Len(t, wl["low_priced"], 5)
	assert.Equal(t, "楽天グループ", wl["low_priced"][0].Label)
	assert.Equal(t, "low_priced", wl["low_priced"][0].Category)
	require.Len(t, wl["large_cap"], 4)
	assert.Equal(t, "7974.T", wl["large_cap"][3].Symbol)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
telegram:
  bot_token: file-token
  chat_id: "42"
advisory:
  enabled: true
  api_key: file-key
  backoff: [1s, 2s]
  call_delay: 4s
scan:
  preset: ""
  filters:
    - {name: cheap, field: last_close, op: "<", threshold: 1000, enabled: true}
tracking:
  backend: sqlite
watchlists:
  - category: banks
    entries:
      - {label: セブン銀行, symbol: 8410.T}
      - {symbol: 8306.T}
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("RUN_ON_START", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.Equal(t, "file-key", cfg.Advisory.APIKey)
	assert.True(t, cfg.RunOnStart)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.Advisory.Backoff)
	assert.Equal(t, 4*time.Second, cfg.Advisory.CallDelay)
	assert.Empty(t, cfg.Tracking.Path)

	filters, err := cfg.Filters()
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, strategy.FieldLastClose, filters[0].Field)

	banks := cfg.WatchlistMap()["banks"]
	require.Len(t, banks, 2)
	assert.Equal(t, "8306.T", banks[1].Label)
	assert.Equal(t, "banks", banks[1].Category)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "telegram: [unclosed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
advisory:
  enabled: true
scan:
  preset: nope
tracking:
  backend: redis
schedule:
  scan_cron: "every day"
watchlists:
  - category: a
    entries:
      - {symbol: 1111.T}
      - {symbol: 1111.T}
  - category: a
    entries:
      - {label: nameless}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	for _, want := range []string{
		"telegram.bot_token is required",
		"GEMINI_API_KEY is required",
		`unknown preset "nope"`,
		"tracking.backend must be csv or sqlite",
		"schedule.scan_cron",
		"duplicate symbol 1111.T",
		`watchlist "a": duplicate category`,
		"symbol is required",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_AdvisoryDisabledNeedsNoKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "t")
	t.Setenv("TELEGRAM_CHAT_ID", "1")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	t.Setenv("ADVISORY_ENABLED", "true")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)
}

func TestLoadEnv(t *testing.T) {
	const key = "KABUSCOUT_TEST_SECRET"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-dotenv\n"), 0o600))
	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv(key))
}

func TestLocation(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())
}

func TestFilters(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	set, err := cfg.Filters()
	require.NoError(t, err)
	assert.Equal(t, strategy.Presets["oversold"], set)

	cfg.Scan.Filters = []strategy.Filter{{Name: "cheap", Field: strategy.FieldLastClose, Op: strategy.OpLT, Threshold: 500, Enabled: true}}
	set, err = cfg.Filters()
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, "cheap", set[1].Name)

	cfg.Scan.Preset = "nope"
	_, err = cfg.Filters()
	assert.Error(t, err)
}
