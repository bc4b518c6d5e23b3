package scanner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"KabuScout/internal/advisor"
	"KabuScout/internal/collector"
	"KabuScout/internal/metrics"
	"KabuScout/internal/model"
	"KabuScout/internal/strategy"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Advisor produces commentary for a scan hit. *advisor.Client implements it.
type Advisor interface {
	Advise(ctx context.Context, p advisor.Prompt) (model.Advice, error)
}

// Config bounds the scan.
type Config struct {
	// Workers is the size of the worker pool; it should respect the provider's rate limits.
	Workers int
	// UnitTimeout caps fetch+compute for one symbol. Zero means no per-unit cap.
	UnitTimeout time.Duration
	// BatchTimeout caps the whole run, including advisory retries. Zero means no cap.
	BatchTimeout time.Duration
}

// Scanner screens watchlists concurrently.
type Scanner struct {
	collector *collector.Collector
	advisor   Advisor
	cfg       Config
	log       zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates a Scanner. adv and m may be nil.
func New(col *collector.Collector, adv Advisor, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Scanner{
		collector: col,
		advisor:   adv,
		cfg:       cfg,
		log:       log.With().Str("component", "scanner").Logger(),
		metrics:   m,
		now:       time.Now,
	}
}

// unitResult is written only by the worker that owns its slot.
type unitResult struct {
	hit  *model.Hit
	skip *model.Skip
}

// Scan evaluates every entry and returns the ranked hits and recorded skips.
// Per-symbol failures never abort the batch and Scan never fails because of them.
func (s *Scanner) Scan(ctx context.Context, category string, entries []model.WatchEntry, filters strategy.FilterSet) *model.ScanResult {
	if s.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.BatchTimeout)
		defer cancel()
	}

	result := &model.ScanResult{
		RunID:     uuid.NewString(),
		Category:  category,
		StartedAt: s.now(),
		Evaluated: len(entries),
	}
	log := s.log.With().Str("run_id", result.RunID).Str("category", category).Logger()
	log.Info().Int("symbols", len(entries)).Int("workers", s.cfg.Workers).Msg("scan started")

	results := make([]unitResult, len(entries))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.runUnit(ctx, entries[i], filters, log)
			}
		}()
	}
	for i := range entries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, r := range results {
		switch {
		case r.hit != nil:
			result.Hits = append(result.Hits, *r.hit)
			s.metrics.ObserveUnit(category, "hit")
		case r.skip != nil:
			result.Skips = append(result.Skips, *r.skip)
			s.metrics.ObserveUnit(category, "skip")
		default:
			s.metrics.ObserveUnit(category, "miss")
		}
	}
	RankHits(result.Hits)
	sort.SliceStable(result.Skips, func(i, j int) bool {
		return result.Skips[i].Entry.Symbol < result.Skips[j].Entry.Symbol
	})

	result.FinishedAt = s.now()
	s.metrics.ObserveScan(category, result.FinishedAt.Sub(result.StartedAt))
	log.Info().Int("hits", len(result.Hits)).Int("skips", len(result.Skips)).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).Msg("scan finished")
	return result
}

func (s *Scanner) runUnit(ctx context.Context, entry model.WatchEntry, filters strategy.FilterSet, log zerolog.Logger) unitResult {
	snap, err := s.collect(ctx, entry.Symbol)
	if err != nil {
		skip := &model.Skip{Entry: entry, Reason: skipReason(err), Detail: err.Error()}
		log.Warn().Err(err).Str("symbol", entry.Symbol).Str("reason", string(skip.Reason)).Msg("symbol skipped")
		return unitResult{skip: skip}
	}

	pass, outcomes := filters.Evaluate(&snap)
	if !pass {
		log.Debug().Str("symbol", entry.Symbol).Int("filters", len(outcomes)).Msg("symbol filtered out")
		return unitResult{}
	}

	hit := &model.Hit{Entry: entry, Snapshot: snap}
	if s.advisor != nil {
		advice, err := s.advisor.Advise(ctx, advisor.PromptFor(entry, snap))
		if err != nil {
			log.Warn().Err(err).Str("symbol", entry.Symbol).Msg("commentary failed, keeping hit")
			if advice.Err == "" && !advice.Unavailable {
				advice.Err = err.Error()
			}
		}
		hit.Advice = &advice
	}
	return unitResult{hit: hit}
}

func (s *Scanner) collect(ctx context.Context, symbol string) (model.IndicatorSnapshot, error) {
	if s.cfg.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.UnitTimeout)
		defer cancel()
	}
	return s.collector.Collect(ctx, symbol)
}

// Check runs a single symbol without filters, as a manual lookup.
func (s *Scanner) Check(ctx context.Context, entry model.WatchEntry) (*model.Hit, *model.Skip) {
	r := s.runUnit(ctx, entry, nil, s.log)
	return r.hit, r.skip
}

func skipReason(err error) model.SkipReason {
	var fe *collector.FetchError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return model.SkipTimeout
	case errors.Is(err, model.ErrDataUnavailable):
		return model.SkipDataUnavailable
	case errors.As(err, &fe):
		return model.SkipFetchFailed
	default:
		return model.SkipComputeFailed
	}
}

// RankHits orders hits by daily percent change descending, undefined changes last,
// then by symbol and label ascending. The order is total for distinct entries.
func RankHits(hits []model.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		ac, bc := a.Snapshot.ChangePct, b.Snapshot.ChangePct
		if ac.Valid != bc.Valid {
			return ac.Valid
		}
		if ac.Valid && ac.Value != bc.Value {
			return ac.Value > bc.Value
		}
		if a.Entry.Symbol != b.Entry.Symbol {
			return a.Entry.Symbol < b.Entry.Symbol
		}
		return a.Entry.Label < b.Entry.Label
	})
}
