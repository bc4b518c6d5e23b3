package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"KabuScout/internal/metrics"
	"KabuScout/internal/model"
	"KabuScout/internal/notifier"
	"KabuScout/internal/recorder"
	"KabuScout/internal/scanner"
	"KabuScout/internal/strategy"
	"KabuScout/internal/tracker"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sender delivers formatted messages. *notifier.TelegramNotifier implements it.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs periodic scans and verifications and answers chat commands.
type Scheduler struct {
	Cron       *cron.Cron
	Scanner    *scanner.Scanner
	Tracker    *tracker.Store
	Notifier   Sender
	Recorder   recorder.Recorder
	Metrics    *metrics.Metrics
	Watchlists map[string][]model.WatchEntry
	Filters    strategy.FilterSet
	Ctx        context.Context

	log zerolog.Logger

	mu   sync.Mutex
	last map[string]*model.ScanResult
}

// NewScheduler creates a Scheduler. Cron expressions include a seconds field.
func NewScheduler(ctx context.Context, sc *scanner.Scanner, ts *tracker.Store, sender Sender, rec recorder.Recorder,
	m *metrics.Metrics, watchlists map[string][]model.WatchEntry, filters strategy.FilterSet,
	loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := log.With().Str("component", "cron").Logger()
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.PrintfLogger(&cronLog)), cron.SkipIfStillRunning(cron.PrintfLogger(&cronLog))),
		),
		Scanner:    sc,
		Tracker:    ts,
		Notifier:   sender,
		Recorder:   rec,
		Metrics:    m,
		Watchlists: watchlists,
		Filters:    filters,
		Ctx:        ctx,
		log:        log,
		last:       make(map[string]*model.ScanResult),
	}
}

// Categories returns the watchlist names in a stable order.
func (s *Scheduler) Categories() []string {
	out := make([]string, 0, len(s.Watchlists))
	for c := range s.Watchlists {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// RegisterAll registers the scan and verification jobs.
func (s *Scheduler) RegisterAll(scanCron, verifyCron string) error {
	if _, err := s.Cron.AddFunc(scanCron, s.scanAllTask); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	if _, err := s.Cron.AddFunc(verifyCron, s.verifyTask); err != nil {
		return fmt.Errorf("register verify task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunScanNow scans every watchlist immediately (RUN_ON_START).
func (s *Scheduler) RunScanNow() {
	s.scanAllTask()
}

func (s *Scheduler) scanAllTask() {
	for _, c := range s.Categories() {
		if s.Ctx.Err() != nil {
			return
		}
		res := s.runScan(s.Ctx, c)
		s.trySend(notifier.FormatScanReport(res))
	}
}

func (s *Scheduler) verifyTask() {
	rep, err := s.runVerify(s.Ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("verify")
		s.trySend(notifier.FormatError("verify", err))
		return
	}
	if len(rep.Rows) == 0 && len(rep.Unverifiable) == 0 {
		s.log.Info().Msg("no picks to verify")
		return
	}
	s.trySend(notifier.FormatVerification(rep))
}

// runScan scans one category, keeps the result for /pick and records it.
func (s *Scheduler) runScan(ctx context.Context, category string) *model.ScanResult {
	s.log.Info().Str("category", category).Msg("running scan")
	res := s.Scanner.Scan(ctx, category, s.Watchlists[category], s.Filters)

	s.mu.Lock()
	s.last[category] = res
	s.mu.Unlock()

	if err := s.Recorder.RecordScan(res); err != nil {
		s.log.Error().Err(err).Str("run_id", res.RunID).Msg("record scan")
	}
	s.push(ctx)
	return res
}

func (s *Scheduler) runVerify(ctx context.Context) (*model.VerificationReport, error) {
	picks, err := s.Tracker.Load(ctx)
	if err != nil {
		return nil, err
	}
	rep := s.Tracker.Verify(ctx, picks)
	if err := s.Recorder.RecordVerification(rep); err != nil {
		s.log.Error().Err(err).Msg("record verification")
	}
	s.push(ctx)
	return rep, nil
}

// LastResult returns the most recent scan of category, if any.
func (s *Scheduler) LastResult(category string) (*model.ScanResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.last[category]
	return res, ok
}

// findHit looks up symbol among the hits of the latest scans, newest first.
func (s *Scheduler) findHit(symbol string) (model.Hit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]*model.ScanResult, 0, len(s.last))
	for _, r := range s.last {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].FinishedAt.After(results[j].FinishedAt) })
	for _, r := range results {
		if h, ok := r.FindHit(symbol); ok {
			return h, true
		}
	}
	return model.Hit{}, false
}

// lookupEntry resolves symbol against the watchlists, falling back to a bare entry.
func (s *Scheduler) lookupEntry(symbol string) model.WatchEntry {
	for _, c := range s.Categories() {
		for _, e := range s.Watchlists[c] {
			if e.Symbol == symbol {
				return e
			}
		}
	}
	return model.WatchEntry{Label: symbol, Symbol: symbol, Category: "manual"}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp(s.Categories())
	}
	// Group chats append the bot name: /scan@KabuScoutBot.
	name, _, _ := strings.Cut(fields[0], "@")
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch name {
	case "/scan":
		if _, ok := s.Watchlists[arg]; !ok {
			return fmt.Sprintf("カテゴリを指定してください: %s", strings.Join(s.Categories(), ", "))
		}
		return notifier.FormatScanReport(s.runScan(ctx, arg))
	case "/check":
		if arg == "" {
			return "銘柄コードを指定してください (例: /check 7203.T)"
		}
		hit, skip := s.Scanner.Check(ctx, s.lookupEntry(strings.ToUpper(arg)))
		return notifier.FormatCheck(hit, skip)
	case "/pick":
		if arg == "" {
			return "銘柄コードを指定してください (例: /pick 7203.T)"
		}
		symbol := strings.ToUpper(arg)
		hit, ok := s.findHit(symbol)
		if !ok {
			return fmt.Sprintf("%s は直近のスキャン結果に含まれていません。", symbol)
		}
		p, err := s.Tracker.Create(ctx, hit)
		if err != nil {
			return notifier.FormatError("pick", err)
		}
		s.push(ctx)
		return notifier.FormatPickCreated(p)
	case "/picks":
		picks, err := s.Tracker.Load(ctx)
		if err != nil {
			return notifier.FormatError("picks", err)
		}
		return notifier.FormatPicks(picks)
	case "/verify":
		rep, err := s.runVerify(ctx)
		if err != nil {
			return notifier.FormatError("verify", err)
		}
		return notifier.FormatVerification(rep)
	default:
		return notifier.FormatHelp(s.Categories())
	}
}

func (s *Scheduler) push(ctx context.Context) {
	if err := s.Metrics.Push(ctx); err != nil {
		s.log.Warn().Err(err).Msg("push metrics")
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}
