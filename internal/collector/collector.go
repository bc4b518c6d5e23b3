package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"KabuScout/internal/calculator"
	"KabuScout/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	mu     sync.Mutex
	Bars   map[string][]model.PriceBar
	Errs   map[string]error
	Delays map[string]time.Duration
	calls  map[string]int
}

// NewMockFetcher creates an empty MockFetcher.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		Bars:   make(map[string][]model.PriceBar),
		Errs:   make(map[string]error),
		Delays: make(map[string]time.Duration),
		calls:  make(map[string]int),
	}
}

func (m *MockFetcher) Name() string { return "mock" }

// Calls returns how many fetches were made for symbol.
func (m *MockFetcher) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

func (m *MockFetcher) FetchHistory(ctx context.Context, symbol string, _ int) (model.PriceSeries, error) {
	return m.fetch(ctx, symbol, time.Time{})
}

func (m *MockFetcher) FetchSince(ctx context.Context, symbol string, start time.Time) (model.PriceSeries, error) {
	return m.fetch(ctx, symbol, start)
}

func (m *MockFetcher) fetch(ctx context.Context, symbol string, start time.Time) (model.PriceSeries, error) {
	m.mu.Lock()
	m.calls[symbol]++
	bars, err, delay := m.Bars[symbol], m.Errs[symbol], m.Delays[symbol]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return model.PriceSeries{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return model.PriceSeries{}, err
	}
	series := model.PriceSeries{Symbol: symbol, FetchedAt: time.Now()}
	for _, b := range bars {
		if !b.Time.Before(start) {
			series.Bars = append(series.Bars, b)
		}
	}
	return series, nil
}

// GenerateBars builds daily bars ending at end from the given closes.
func GenerateBars(end time.Time, closes []float64) []model.PriceBar {
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = model.PriceBar{
			Time:   end.AddDate(0, 0, i-len(closes)+1),
			Open:   c * 0.999,
			High:   c * 1.005,
			Low:    c * 0.995,
			Close:  c,
			Volume: 1000000,
		}
	}
	return bars
}

// Collector fetches price history and computes indicators for one symbol at a time.
type Collector struct {
	Fetcher      Fetcher
	LookbackDays int
	Params       calculator.Params
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, lookbackDays int, params calculator.Params) *Collector {
	return &Collector{Fetcher: fetcher, LookbackDays: lookbackDays, Params: params}
}

// FetchError marks a failure reaching the provider, as opposed to a computation failure.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Collect fetches the lookback window and computes a fresh snapshot.
// An empty series is reported as model.ErrDataUnavailable.
func (c *Collector) Collect(ctx context.Context, symbol string) (model.IndicatorSnapshot, error) {
	series, err := c.Fetcher.FetchHistory(ctx, symbol, c.LookbackDays)
	if err != nil {
		return model.IndicatorSnapshot{}, &FetchError{Symbol: symbol, Err: err}
	}
	if series.Empty() {
		return model.IndicatorSnapshot{}, fmt.Errorf("%s: %w", symbol, model.ErrDataUnavailable)
	}
	if err := series.Validate(); err != nil {
		return model.IndicatorSnapshot{}, fmt.Errorf("invalid series: %w", err)
	}
	snap, err := calculator.Snapshot(series, c.Params)
	if err != nil {
		return model.IndicatorSnapshot{}, fmt.Errorf("compute %s: %w", symbol, err)
	}
	return snap, nil
}
