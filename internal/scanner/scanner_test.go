package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"KabuScout/internal/advisor"
	"KabuScout/internal/calculator"
	"KabuScout/internal/collector"
	"KabuScout/internal/metrics"
	"KabuScout/internal/model"
	"KabuScout/internal/strategy"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var end = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// closesEndingWith returns 40 flat closes followed by a final move of pct percent.
func closesEndingWith(base, pct float64) []float64 {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = base + float64(i%2)
	}
	closes = append(closes, closes[len(closes)-1]*(1+pct/100))
	return closes
}

func entries(symbols ...string) []model.WatchEntry {
	out := make([]model.WatchEntry, len(symbols))
	for i, s := range symbols {
		out[i] = model.WatchEntry{Label: "name-" + s, Symbol: s, Category: "test"}
	}
	return out
}

func newScanner(mock *collector.MockFetcher, adv Advisor, cfg Config, m *metrics.Metrics) *Scanner {
	col := collector.NewCollector(mock, 180, calculator.DefaultParams())
	return New(col, adv, cfg, zerolog.Nop(), m)
}

func hitSymbols(r *model.ScanResult) []string {
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Entry.Symbol
	}
	return out
}

func TestScan_EmptySymbolIsSkipped(t *testing.T) {
	mock := collector.NewMockFetcher()
	mock.Bars["A"] = collector.GenerateBars(end, closesEndingWith(100, 1))
	mock.Bars["B"] = collector.GenerateBars(end, closesEndingWith(100, 3))
	mock.Bars["D"] = collector.GenerateBars(end, closesEndingWith(100, -2))
	mock.Bars["E"] = collector.GenerateBars(end, closesEndingWith(100, 0.5))

	m := metrics.New("", "test")
	s := newScanner(mock, nil, Config{Workers: 2}, m)
	result := s.Scan(context.Background(), "test", entries("A", "B", "C", "D", "E"), nil)

	assert.Equal(t, 5, result.Evaluated)
	assert.Equal(t, []string{"B", "A", "E", "D"}, hitSymbols(result))
	require.Len(t, result.Skips, 1)
	assert.Equal(t, "C", result.Skips[0].Entry.Symbol)
	assert.Equal(t, model.SkipDataUnavailable, result.Skips[0].Reason)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ScanUnits.WithLabelValues("test", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanUnits.WithLabelValues("test", "skip")))
}

func TestScan_FetchErrorDoesNotAbortBatch(t *testing.T) {
	mock := collector.NewMockFetcher()
	for _, sym := range []string{"A", "B", "C"} {
		mock.Bars[sym] = collector.GenerateBars(end, closesEndingWith(50, 1))
	}
	mock.Errs["B"] = errors.New("connection reset by peer")

	result := newScanner(mock, nil, Config{Workers: 3}, nil).
		Scan(context.Background(), "test", entries("A", "B", "C"), nil)

	assert.Equal(t, []string{"A", "C"}, hitSymbols(result))
	require.Len(t, result.Skips, 1)
	assert.Equal(t, model.SkipFetchFailed, result.Skips[0].Reason)
	assert.Contains(t, result.Skips[0].Detail, "connection reset")
}

func TestScan_UnitTimeout(t *testing.T) {
	mock := collector.NewMockFetcher()
	mock.Bars["FAST"] = collector.GenerateBars(end, closesEndingWith(10, 1))
	mock.Bars["SLOW"] = collector.GenerateBars(end, closesEndingWith(10, 1))
	mock.Delays["SLOW"] = time.Hour

	result := newScanner(mock, nil, Config{Workers: 2, UnitTimeout: 20 * time.Millisecond}, nil).
		Scan(context.Background(), "test", entries("FAST", "SLOW"), nil)

	assert.Equal(t, []string{"FAST"}, hitSymbols(result))
	require.Len(t, result.Skips, 1)
	assert.Equal(t, model.SkipTimeout, result.Skips[0].Reason)
}

func TestScan_FiltersApplied(t *testing.T) {
	mock := collector.NewMockFetcher()
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	mock.Bars["AAA"] = collector.GenerateBars(end, rising)
	mock.Bars["BBB"] = collector.GenerateBars(end, closesEndingWith(100, -1))

	filters := strategy.FilterSet{
		{Name: "hot", Field: strategy.FieldRSI, Op: strategy.OpGTE, Threshold: 99, Enabled: true},
	}
	result := newScanner(mock, nil, Config{Workers: 2}, nil).
		Scan(context.Background(), "test", entries("AAA", "BBB"), filters)

	require.Equal(t, []string{"AAA"}, hitSymbols(result))
	assert.Equal(t, model.Defined(100), result.Hits[0].Snapshot.RSI14)
	assert.Empty(t, result.Skips)
}

func TestScan_Deterministic(t *testing.T) {
	mock := collector.NewMockFetcher()
	symbols := []string{"Q", "M", "Z", "A", "K", "B"}
	for i, sym := range symbols {
		// Pairs share the same change so the symbol tie-break decides.
		mock.Bars[sym] = collector.GenerateBars(end, closesEndingWith(100, float64(i/2)))
	}
	s := newScanner(mock, nil, Config{Workers: 4}, nil)

	first := s.Scan(context.Background(), "test", entries(symbols...), nil)
	assert.Equal(t, []string{"B", "K", "A", "Z", "M", "Q"}, hitSymbols(first))

	for i := 0; i < 5; i++ {
		again := s.Scan(context.Background(), "test", entries(symbols...), nil)
		if diff := cmp.Diff(first.Hits, again.Hits); diff != "" {
			t.Fatalf("scan %d differs (-first +again):\n%s", i, diff)
		}
	}
}

type fakeAdvisor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeAdvisor) Advise(_ context.Context, p advisor.Prompt) (model.Advice, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p.Symbol)
	f.mu.Unlock()
	if err := f.fail[p.Symbol]; err != nil {
		return model.Advice{Err: err.Error()}, err
	}
	if p.Symbol == "BUSY" {
		return model.Advice{Unavailable: true, Attempts: 3}, nil
	}
	return model.Advice{Verdict: model.VerdictHold, Reason: "様子を見よう"}, nil
}

func TestScan_AdvisoryOnHitsOnly(t *testing.T) {
	mock := collector.NewMockFetcher()
	mock.Bars["UP"] = collector.GenerateBars(end, closesEndingWith(100, 2))
	mock.Bars["DOWN"] = collector.GenerateBars(end, closesEndingWith(100, -2))
	mock.Bars["BUSY"] = collector.GenerateBars(end, closesEndingWith(100, 1))
	mock.Bars["ERR"] = collector.GenerateBars(end, closesEndingWith(100, 3))

	adv := &fakeAdvisor{fail: map[string]error{"ERR": errors.New("permission denied")}}
	filters := strategy.FilterSet{
		{Name: "up_day", Field: strategy.FieldChangePct, Op: strategy.OpGT, Threshold: 0, Enabled: true},
	}
	result := newScanner(mock, adv, Config{Workers: 2}, nil).
		Scan(context.Background(), "test", entries("UP", "DOWN", "BUSY", "ERR"), filters)

	require.Equal(t, []string{"ERR", "UP", "BUSY"}, hitSymbols(result))
	assert.NotContains(t, adv.calls, "DOWN")
	assert.Len(t, adv.calls, 3)

	rows := result.Rows()
	assert.Equal(t, "error: permission denied", rows[0].Commentary)
	assert.Equal(t, "様子見: 様子を見よう", rows[1].Commentary)
	assert.Equal(t, "unavailable", rows[2].Commentary)
	assert.Equal(t, "name-UP", rows[1].DisplayName)
}

func TestScan_BatchDeadline(t *testing.T) {
	mock := collector.NewMockFetcher()
	syms := []string{"S1", "S2", "S3", "S4"}
	for _, sym := range syms {
		mock.Bars[sym] = collector.GenerateBars(end, closesEndingWith(10, 1))
		mock.Delays[sym] = time.Hour
	}

	start := time.Now()
	result := newScanner(mock, nil, Config{Workers: 2, BatchTimeout: 30 * time.Millisecond}, nil).
		Scan(context.Background(), "test", entries(syms...), nil)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, result.Hits)
	require.Len(t, result.Skips, 4)
	for _, sk := range result.Skips {
		assert.Equal(t, model.SkipTimeout, sk.Reason)
	}
}

func TestCheck(t *testing.T) {
	mock := collector.NewMockFetcher()
	mock.Bars["7203.T"] = collector.GenerateBars(end, closesEndingWith(2800, -1))
	s := newScanner(mock, &fakeAdvisor{}, Config{Workers: 1}, nil)

	hit, skip := s.Check(context.Background(), model.WatchEntry{Label: "トヨタ自動車", Symbol: "7203.T"})
	require.Nil(t, skip)
	require.NotNil(t, hit)
	require.NotNil(t, hit.Advice)
	assert.Equal(t, model.VerdictHold, hit.Advice.Verdict)

	hit, skip = s.Check(context.Background(), model.WatchEntry{Symbol: "NOPE"})
	assert.Nil(t, hit)
	require.NotNil(t, skip)
	assert.Equal(t, model.SkipDataUnavailable, skip.Reason)
}

func TestRankHits_UndefinedChangeLast(t *testing.T) {
	hits := []model.Hit{
		{Entry: model.WatchEntry{Symbol: "NEW"}},
		{Entry: model.WatchEntry{Symbol: "DN"}, Snapshot: model.IndicatorSnapshot{ChangePct: model.Defined(-5)}},
		{Entry: model.WatchEntry{Symbol: "UP"}, Snapshot: model.IndicatorSnapshot{ChangePct: model.Defined(5)}},
	}
	RankHits(hits)
	assert.Equal(t, "UP", hits[0].Entry.Symbol)
	assert.Equal(t, "DN", hits[1].Entry.Symbol)
	assert.Equal(t, "NEW", hits[2].Entry.Symbol)
}
