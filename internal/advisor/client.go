package advisor

import (
	"context"
	"time"

	"KabuScout/internal/metrics"
	"KabuScout/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config controls retries and pacing.
type Config struct {
	// MaxAttempts is the total number of service calls per request.
	MaxAttempts int
	// Backoff is the wait after the n-th rate-limited attempt; the last value repeats.
	Backoff []time.Duration
	// CallDelay is a minimum spacing between any two service calls, independent of
	// Backoff. Zero disables it.
	CallDelay time.Duration
}

// DefaultConfig returns three attempts with 20s/30s/40s backoff and no call delay.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     []time.Duration{20 * time.Second, 30 * time.Second, 40 * time.Second},
	}
}

// Client wraps a Service with rate-limit aware retries.
type Client struct {
	svc     Service
	cfg     Config
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a Client. m may be nil.
func NewClient(svc Service, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	c := &Client{
		svc:     svc,
		cfg:     cfg,
		sleep:   sleepContext,
		log:     log.With().Str("component", "advisor").Logger(),
		metrics: m,
	}
	if cfg.CallDelay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.CallDelay), 1)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) backoff(retry int) time.Duration {
	if len(c.cfg.Backoff) == 0 {
		return 0
	}
	if retry >= len(c.cfg.Backoff) {
		return c.cfg.Backoff[len(c.cfg.Backoff)-1]
	}
	return c.cfg.Backoff[retry]
}

// Advise requests commentary for p. Rate-limited attempts are retried with backoff;
// once the attempt budget is spent the advice is marked Unavailable and the error is
// nil. Any other service error is returned immediately without retry. If ctx ends
// while waiting, the advice is Unavailable and ctx's error is returned.
func (c *Client) Advise(ctx context.Context, p Prompt) (model.Advice, error) {
	text := p.Render()
	log := c.log.With().Str("symbol", p.Symbol).Logger()

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				c.metrics.ObserveAdvisoryOutcome("unavailable")
				return model.Advice{Unavailable: true, Attempts: attempt - 1}, err
			}
		}

		reply, err := c.svc.Generate(ctx, text)
		class := Classify(err)
		c.metrics.ObserveAdvisoryAttempt(string(class))

		switch class {
		case ClassNone:
			advice := ParseAdvice(reply)
			advice.Attempts = attempt
			c.metrics.ObserveAdvisoryOutcome("ok")
			return advice, nil
		case ClassOther:
			log.Error().Err(err).Int("attempt", attempt).Msg("advisory call failed")
			c.metrics.ObserveAdvisoryOutcome("error")
			return model.Advice{Attempts: attempt, Err: err.Error()}, err
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}
		wait := c.backoff(attempt - 1)
		log.Warn().Int("attempt", attempt).Int("max_attempts", c.cfg.MaxAttempts).
			Dur("backoff", wait).Msg("advisory service rate limited, backing off")
		if err := c.sleep(ctx, wait); err != nil {
			c.metrics.ObserveAdvisoryOutcome("unavailable")
			return model.Advice{Unavailable: true, Attempts: attempt}, err
		}
	}

	log.Warn().Int("attempts", c.cfg.MaxAttempts).Msg("advisory retry budget exhausted")
	c.metrics.ObserveAdvisoryOutcome("unavailable")
	return model.Advice{Unavailable: true, Attempts: c.cfg.MaxAttempts}, nil
}
