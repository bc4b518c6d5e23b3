package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"KabuScout/internal/model"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultYahooBaseURL is the public Yahoo Finance chart endpoint host.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooConfig configures the Yahoo Finance fetcher.
type YahooConfig struct {
	BaseURL string
	Proxy   string
	Timeout time.Duration
	// RatePerSecond caps outgoing requests across all workers; zero disables the cap.
	RatePerSecond float64
	Burst         int
	// BreakerFailures consecutive failures open the circuit for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL string
	Client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
	now     func() time.Time
}

// NewYahooFetcher creates a new Yahoo Finance fetcher with optional proxy support.
func NewYahooFetcher(cfg YahooConfig, log zerolog.Logger) *YahooFetcher {
	transport := &http.Transport{}
	if cfg.Proxy != "" {
		if u, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultYahooBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	log = log.With().Str("component", "yahoo").Logger()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "yahoo",
		Timeout: cfg.BreakerCooldown,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &YahooFetcher{
		BaseURL: cfg.BaseURL,
		Client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		log:     log,
		now:     time.Now,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// FetchHistory returns daily bars covering the last lookbackDays calendar days.
func (f *YahooFetcher) FetchHistory(ctx context.Context, symbol string, lookbackDays int) (model.PriceSeries, error) {
	if lookbackDays <= 0 {
		return model.PriceSeries{}, fmt.Errorf("lookback must be positive, got %d", lookbackDays)
	}
	end := f.now()
	return f.fetchRange(ctx, symbol, end.AddDate(0, 0, -lookbackDays), end)
}

// FetchSince returns daily bars from start until now.
func (f *YahooFetcher) FetchSince(ctx context.Context, symbol string, start time.Time) (model.PriceSeries, error) {
	return f.fetchRange(ctx, symbol, start, f.now())
}

func (f *YahooFetcher) fetchRange(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Unix(), 10))
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(symbol), params.Encode())

	if err := f.limiter.Wait(ctx); err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo rate limit wait: %w", err)
	}

	out, err := f.breaker.Execute(func() (interface{}, error) {
		return f.get(ctx, u)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return model.PriceSeries{}, fmt.Errorf("yahoo %s: %w", symbol, err)
		}
		return model.PriceSeries{}, err
	}

	series := model.PriceSeries{Symbol: symbol, FetchedAt: f.now()}
	body, _ := out.([]byte)
	if body == nil {
		f.log.Debug().Str("symbol", symbol).Msg("symbol not found")
		return series, nil
	}
	bars, err := ParseChart(body)
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	series.Bars = bars
	return series, nil
}

// get returns the response body, or nil for an unknown symbol.
func (f *YahooFetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound || gjson.GetBytes(body, "chart.error.code").String() == "Not Found" {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}
	if desc := gjson.GetBytes(body, "chart.error.description"); desc.Exists() && desc.String() != "" {
		return nil, fmt.Errorf("yahoo api error: %s", desc.String())
	}
	return body, nil
}

// ParseChart extracts ordered bars from a chart API response. Null bars (holidays,
// halted sessions) are dropped and duplicate timestamps keep the latest entry.
func ParseChart(body []byte) ([]model.PriceBar, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid chart json")
	}
	result := gjson.GetBytes(body, "chart.result.0")
	if !result.Exists() {
		return nil, nil
	}
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	at := func(vals []gjson.Result, i int) (float64, bool) {
		if i >= len(vals) || vals[i].Type != gjson.Number {
			return 0, false
		}
		return vals[i].Float(), true
	}

	byTime := make(map[int64]model.PriceBar, len(timestamps))
	for i, ts := range timestamps {
		o, okO := at(opens, i)
		h, okH := at(highs, i)
		l, okL := at(lows, i)
		c, okC := at(closes, i)
		if !okO || !okH || !okL || !okC {
			continue
		}
		v, _ := at(volumes, i)
		byTime[ts.Int()] = model.PriceBar{
			Time:   time.Unix(ts.Int(), 0).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: v,
		}
	}

	bars := make([]model.PriceBar, 0, len(byTime))
	for _, b := range byTime {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
