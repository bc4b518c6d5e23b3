package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"KabuScout/internal/advisor"
	"KabuScout/internal/collector"
	"KabuScout/internal/config"
	"KabuScout/internal/logger"
	"KabuScout/internal/metrics"
	"KabuScout/internal/notifier"
	"KabuScout/internal/recorder"
	"KabuScout/internal/scanner"
	"KabuScout/internal/scheduler"
	"KabuScout/internal/tracker"
)

func main() {
	boot := logger.New("info", false)
	boot.Info().Msg("KabuScout starting...")

	// Load config; any problem is fatal before work starts.
	if err := config.LoadEnv(".env"); err != nil {
		boot.Fatal().Err(err).Msg("load .env")
	}
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		boot.Fatal().Err(err).Str("path", cfgPath).Msg("invalid configuration")
	}
	filters, err := cfg.Filters()
	if err != nil {
		boot.Fatal().Err(err).Msg("resolve scan filters")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	loc := cfg.Location()
	m := metrics.New(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job)

	// Init fetcher and collector
	fetcher := collector.NewYahooFetcher(collector.YahooConfig{
		BaseURL:         cfg.DataSource.BaseURL,
		Proxy:           cfg.Proxy,
		Timeout:         cfg.DataSource.Timeout,
		RatePerSecond:   cfg.DataSource.RatePerSecond,
		Burst:           cfg.DataSource.Burst,
		BreakerFailures: cfg.DataSource.BreakerFailures,
		BreakerCooldown: cfg.DataSource.BreakerCooldown,
	}, log)
	log.Info().Str("source", fetcher.Name()).Int("lookback_days", cfg.DataSource.LookbackDays).Msg("data source ready")
	col := collector.NewCollector(fetcher, cfg.DataSource.LookbackDays, cfg.Scan.Indicators)

	// Init advisory client; the scanner must see a nil interface when it is disabled.
	var adv scanner.Advisor
	if cfg.Advisory.Enabled {
		svc := advisor.NewGeminiService(cfg.Advisory.BaseURL, cfg.Advisory.Model, cfg.Advisory.APIKey, cfg.Proxy, cfg.Advisory.Timeout)
		adv = advisor.NewClient(svc, advisor.Config{
			MaxAttempts: cfg.Advisory.MaxAttempts,
			Backoff:     cfg.Advisory.Backoff,
			CallDelay:   cfg.Advisory.CallDelay,
		}, log, m)
		log.Info().Str("model", svc.Model).Dur("call_delay", cfg.Advisory.CallDelay).Msg("advisory enabled")
	}

	sc := scanner.New(col, adv, scanner.Config{
		Workers:      cfg.Scan.Workers,
		UnitTimeout:  cfg.Scan.UnitTimeout,
		BatchTimeout: cfg.Scan.BatchTimeout,
	}, log, m)

	// Init SQLite history
	var db *sql.DB
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		db, err = openDB(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("open sqlite failed, history disabled")
		} else {
			defer db.Close()
			if sr, err := recorder.NewSQLiteRecorder(db, log); err != nil {
				log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			} else {
				rec = sr
			}
		}
	}
	defer rec.Close()

	// Init pick store
	var backend tracker.Backend
	switch cfg.Tracking.Backend {
	case "sqlite":
		if db == nil {
			log.Fatal().Msg("tracking backend sqlite requires database.sqlite_path")
		}
		sb, err := tracker.NewSQLiteBackend(db, loc)
		if err != nil {
			log.Fatal().Err(err).Msg("init sqlite pick store")
		}
		backend = sb
	default:
		backend = tracker.NewCSVBackend(cfg.Tracking.Path, loc)
	}
	store := tracker.NewStore(backend, fetcher, tracker.Config{
		TTL:      cfg.Tracking.TTL,
		Workers:  cfg.Tracking.Workers,
		Location: loc,
	}, log, m)

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, sc, store, tn, rec, m, cfg.WatchlistMap(), filters, loc, log)
	if err := sched.RegisterAll(cfg.Schedule.ScanCron, cfg.Schedule.VerifyCron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	go tn.StartPolling(ctx, sched.HandleCommand)
	log.Info().Strs("categories", sched.Categories()).Int("filters", len(filters.Enabled())).Msg("telegram polling started")
	if err := tn.SendWithRetry(ctx, notifier.FormatStartup(time.Now().In(loc), sched.Categories()), 1); err != nil {
		log.Warn().Err(err).Msg("send startup message")
	}

	if cfg.RunOnStart {
		log.Info().Msg("RUN_ON_START enabled, scanning now")
		go sched.RunScanNow()
	}

	log.Info().Msg("KabuScout is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping...")
	cancel()
	log.Info().Msg("KabuScout stopped")
}

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return recorder.OpenSQLite(path)
}
