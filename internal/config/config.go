package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"KabuScout/internal/calculator"
	"KabuScout/internal/model"
	"KabuScout/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks every configuration failure. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

// Watchlist is a named group of instruments scanned together.
type Watchlist struct {
	Category string             `yaml:"category"`
	Entries  []model.WatchEntry `yaml:"entries"`
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		BaseURL         string        `yaml:"base_url"`
		LookbackDays    int           `yaml:"lookback_days"`
		Timeout         time.Duration `yaml:"timeout"`
		RatePerSecond   float64       `yaml:"rate_per_second"`
		Burst           int           `yaml:"burst"`
		BreakerFailures uint32        `yaml:"breaker_failures"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
	} `yaml:"data_source"`
	Scan struct {
		Workers      int               `yaml:"workers"`
		UnitTimeout  time.Duration     `yaml:"unit_timeout"`
		BatchTimeout time.Duration     `yaml:"batch_timeout"`
		Preset       string            `yaml:"preset"`
		Filters      []strategy.Filter `yaml:"filters"`
		Indicators   calculator.Params `yaml:"indicators"`
	} `yaml:"scan"`
	Advisory struct {
		Enabled     bool            `yaml:"enabled"`
		APIKey      string          `yaml:"api_key"`
		Model       string          `yaml:"model"`
		BaseURL     string          `yaml:"base_url"`
		Timeout     time.Duration   `yaml:"timeout"`
		MaxAttempts int             `yaml:"max_attempts"`
		Backoff     []time.Duration `yaml:"backoff"`
		CallDelay   time.Duration   `yaml:"call_delay"`
	} `yaml:"advisory"`
	Tracking struct {
		Backend string        `yaml:"backend"` // csv or sqlite
		Path    string        `yaml:"path"`
		TTL     time.Duration `yaml:"ttl"`
		Workers int           `yaml:"workers"`
	} `yaml:"tracking"`
	Schedule struct {
		ScanCron   string `yaml:"scan_cron"`
		VerifyCron string `yaml:"verify_cron"`
		Timezone   string `yaml:"timezone"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		PushgatewayURL string `yaml:"pushgateway_url"`
		Job            string `yaml:"job"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Watchlists []Watchlist `yaml:"watchlists"`
	Proxy      string      `yaml:"proxy"`
	RunOnStart bool        `yaml:"run_on_start"`
}

// DefaultWatchlists are used when the file configures none.
func DefaultWatchlists() []Watchlist {
	return []Watchlist{
		{Category: "low_priced", Entries: []model.WatchEntry{
			{Label: "楽天グループ", Symbol: "4755.T"},
			{Label: "ENEOSホールディングス", Symbol: "5020.T"},
			{Label: "日産自動車", Symbol: "7201.T"},
			{Label: "LINEヤフー", Symbol: "4689.T"},
			{Label: "セブン銀行", Symbol: "8410.T"},
		}},
		{Category: "large_cap", Entries: []model.WatchEntry{
			{Label: "トヨタ自動車", Symbol: "7203.T"},
			{Label: "三菱UFJフィナンシャル・グループ", Symbol: "8306.T"},
			{Label: "ソニーグループ", Symbol: "6758.T"},
			{Label: "任天堂", Symbol: "7974.T"},
		}},
	}
}

// LoadEnv reads KEY=VALUE pairs from a .env file into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: load %s: %w", ErrConfiguration, path, err)
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. Call Validate before use.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: read config: %w", ErrConfiguration, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config: %w", ErrConfiguration, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	str("GEMINI_API_KEY", &c.Advisory.APIKey)
	str("GEMINI_MODEL", &c.Advisory.Model)
	str("HTTPS_PROXY", &c.Proxy)
	str("SQLITE_PATH", &c.Database.SQLitePath)
	str("TRACKING_BACKEND", &c.Tracking.Backend)
	str("TRACKING_PATH", &c.Tracking.Path)
	str("CRON_SCAN", &c.Schedule.ScanCron)
	str("CRON_VERIFY", &c.Schedule.VerifyCron)
	str("SCHEDULE_TIMEZONE", &c.Schedule.Timezone)
	str("PUSHGATEWAY_URL", &c.Metrics.PushgatewayURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("SCAN_PRESET", &c.Scan.Preset)

	if v := os.Getenv("ADVISORY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Advisory.Enabled = b
		}
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RunOnStart = b
		}
	}
	if v := os.Getenv("ADVISORY_CALL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Advisory.CallDelay = d
		}
	}
}

func (c *Config) applyDefaults() {
	if c.DataSource.LookbackDays == 0 {
		c.DataSource.LookbackDays = 180
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 15 * time.Second
	}
	if c.DataSource.RatePerSecond == 0 {
		c.DataSource.RatePerSecond = 2
	}
	if c.DataSource.Burst == 0 {
		c.DataSource.Burst = 2
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = 4
	}
	if c.Scan.UnitTimeout == 0 {
		c.Scan.UnitTimeout = 30 * time.Second
	}
	if c.Scan.BatchTimeout == 0 {
		c.Scan.BatchTimeout = 10 * time.Minute
	}
	if c.Scan.Indicators == (calculator.Params{}) {
		c.Scan.Indicators = calculator.DefaultParams()
	}
	if c.Scan.Preset == "" && len(c.Scan.Filters) == 0 {
		c.Scan.Preset = "oversold"
	}
	if c.Advisory.MaxAttempts == 0 {
		c.Advisory.MaxAttempts = 3
	}
	if len(c.Advisory.Backoff) == 0 {
		c.Advisory.Backoff = []time.Duration{20 * time.Second, 30 * time.Second, 40 * time.Second}
	}
	if c.Advisory.Timeout == 0 {
		c.Advisory.Timeout = 60 * time.Second
	}
	if c.Tracking.Backend == "" {
		c.Tracking.Backend = "csv"
	}
	if c.Tracking.Path == "" && c.Tracking.Backend == "csv" {
		c.Tracking.Path = "data/picks.csv"
	}
	if c.Tracking.TTL == 0 {
		c.Tracking.TTL = 7 * 24 * time.Hour
	}
	if c.Tracking.Workers == 0 {
		c.Tracking.Workers = 4
	}
	if c.Schedule.ScanCron == "" {
		c.Schedule.ScanCron = "0 30 15 * * 1-5"
	}
	if c.Schedule.VerifyCron == "" {
		c.Schedule.VerifyCron = "0 0 17 * * 5"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Tokyo"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/kabuscout.db"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "kabuscout"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if len(c.Watchlists) == 0 {
		c.Watchlists = DefaultWatchlists()
	}
	for i := range c.Watchlists {
		w := &c.Watchlists[i]
		for j := range w.Entries {
			e := &w.Entries[j]
			e.Category = w.Category
			if e.Label == "" {
				e.Label = e.Symbol
			}
		}
	}
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks all settings and reports every problem at once, joined with ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Telegram.BotToken == "" {
		add("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		add("telegram.chat_id is required")
	}
	if c.Advisory.Enabled && c.Advisory.APIKey == "" {
		add("GEMINI_API_KEY is required when advisory is enabled")
	}
	if c.Advisory.MaxAttempts < 1 {
		add("advisory.max_attempts must be at least 1")
	}
	if c.Advisory.CallDelay < 0 {
		add("advisory.call_delay must not be negative")
	}
	if c.DataSource.LookbackDays < 1 {
		add("data_source.lookback_days must be positive")
	}
	if c.Scan.Workers < 1 {
		add("scan.workers must be positive")
	}
	if err := c.Scan.Indicators.Validate(); err != nil {
		add("scan.indicators: %w", err)
	}
	if _, err := c.Filters(); err != nil {
		add("scan: %w", err)
	}
	switch c.Tracking.Backend {
	case "csv":
		if c.Tracking.Path == "" {
			add("tracking.path is required for the csv backend")
		}
	case "sqlite":
	default:
		add("tracking.backend must be csv or sqlite, got %q", c.Tracking.Backend)
	}
	if c.Tracking.TTL <= 0 {
		add("tracking.ttl must be positive")
	}
	if _, err := cronParser.Parse(c.Schedule.ScanCron); err != nil {
		add("schedule.scan_cron: %w", err)
	}
	if _, err := cronParser.Parse(c.Schedule.VerifyCron); err != nil {
		add("schedule.verify_cron: %w", err)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		add("schedule.timezone: %w", err)
	}
	errs = append(errs, c.validateWatchlists()...)

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrConfiguration}, errs...)...)
}

func (c *Config) validateWatchlists() []error {
	var errs []error
	if len(c.Watchlists) == 0 {
		return []error{errors.New("at least one watchlist is required")}
	}
	categories := make(map[string]bool)
	for i, w := range c.Watchlists {
		if w.Category == "" {
			errs = append(errs, fmt.Errorf("watchlists[%d]: category is required", i))
			continue
		}
		if categories[w.Category] {
			errs = append(errs, fmt.Errorf("watchlist %q: duplicate category", w.Category))
		}
		categories[w.Category] = true
		if len(w.Entries) == 0 {
			errs = append(errs, fmt.Errorf("watchlist %q: no entries", w.Category))
		}
		symbols := make(map[string]bool)
		for j, e := range w.Entries {
			if e.Symbol == "" {
				errs = append(errs, fmt.Errorf("watchlist %q entry %d: symbol is required", w.Category, j))
				continue
			}
			if symbols[e.Symbol] {
				errs = append(errs, fmt.Errorf("watchlist %q: duplicate symbol %s", w.Category, e.Symbol))
			}
			symbols[e.Symbol] = true
		}
	}
	return errs
}

// Filters resolves the preset (if any) followed by the explicitly configured filters.
func (c *Config) Filters() (strategy.FilterSet, error) {
	var set strategy.FilterSet
	if c.Scan.Preset != "" {
		preset, ok := strategy.Presets[c.Scan.Preset]
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", c.Scan.Preset)
		}
		set = append(set, preset...)
	}
	set = append(set, c.Scan.Filters...)
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// WatchlistMap indexes watchlists by category.
func (c *Config) WatchlistMap() map[string][]model.WatchEntry {
	out := make(map[string][]model.WatchEntry, len(c.Watchlists))
	for _, w := range c.Watchlists {
		out[w.Category] = w.Entries
	}
	return out
}

// Location returns the schedule timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
