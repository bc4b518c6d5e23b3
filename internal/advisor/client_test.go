package advisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"KabuScout/internal/metrics"
	"KabuScout/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedService replays a fixed sequence of replies.
type scriptedService struct {
	mu      sync.Mutex
	replies []error
	text    string
	calls   int
}

func (s *scriptedService) Generate(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.replies) && s.replies[i] != nil {
		return "", s.replies[i]
	}
	return s.text, nil
}

var rateLimited = &ServiceError{StatusCode: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: "quota"}

func newTestClient(svc Service, cfg Config) (*Client, *[]time.Duration) {
	c := NewClient(svc, cfg, zerolog.Nop(), nil)
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"http 429", &ServiceError{StatusCode: 429}, ClassRateLimited},
		{"resource exhausted", &ServiceError{StatusCode: 400, Status: "RESOURCE_EXHAUSTED"}, ClassRateLimited},
		{"wrapped sentinel", fmt.Errorf("call: %w", ErrRateLimited), ClassRateLimited},
		{"wrapped service error", fmt.Errorf("call: %w", rateLimited), ClassRateLimited},
		{"server error", &ServiceError{StatusCode: 500, Status: "INTERNAL"}, ClassOther},
		// Message text alone never classifies.
		{"quota text", errors.New("429 quota exceeded, rate limit"), ClassOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), tt.name)
	}
}

func TestAdvise_RecoversAfterTwoBackoffs(t *testing.T) {
	svc := &scriptedService{
		replies: []error{rateLimited, rateLimited, nil},
		text:    `{"verdict": "買い", "reason": "売られすぎから戻りそう"}`,
	}
	c, sleeps := newTestClient(svc, DefaultConfig())

	advice, err := c.Advise(context.Background(), Prompt{Symbol: "7203.T"})
	require.NoError(t, err)
	assert.False(t, advice.Unavailable)
	assert.Equal(t, model.VerdictBuy, advice.Verdict)
	assert.Equal(t, 3, advice.Attempts)
	assert.Equal(t, 3, svc.calls)
	assert.Equal(t, []time.Duration{20 * time.Second, 30 * time.Second}, *sleeps)
}

func TestAdvise_ExhaustedBudgetIsUnavailable(t *testing.T) {
	svc := &scriptedService{replies: []error{rateLimited, rateLimited, rateLimited, rateLimited}}
	m := metrics.New("", "test")
	c := NewClient(svc, DefaultConfig(), zerolog.Nop(), m)
	sleeps := 0
	c.sleep = func(context.Context, time.Duration) error { sleeps++; return nil }

	advice, err := c.Advise(context.Background(), Prompt{Symbol: "7203.T"})
	require.NoError(t, err)
	assert.True(t, advice.Unavailable)
	assert.Equal(t, 3, svc.calls)
	assert.Equal(t, 2, sleeps)
	assert.Equal(t, "unavailable", advice.Commentary())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AdvisoryAttempts.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdvisoryOutcomes.WithLabelValues("unavailable")))
}

func TestAdvise_OtherErrorFailsFast(t *testing.T) {
	boom := &ServiceError{StatusCode: http.StatusBadRequest, Status: "INVALID_ARGUMENT", Message: "bad key"}
	svc := &scriptedService{replies: []error{boom, nil}}
	c, sleeps := newTestClient(svc, DefaultConfig())

	advice, err := c.Advise(context.Background(), Prompt{Symbol: "7203.T"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, svc.calls)
	assert.Empty(t, *sleeps)
	assert.False(t, advice.Unavailable)
	assert.NotEmpty(t, advice.Err)
}

func TestAdvise_DeadlineDuringBackoff(t *testing.T) {
	svc := &scriptedService{replies: []error{rateLimited, rateLimited, rateLimited}}
	cfg := DefaultConfig()
	cfg.Backoff = []time.Duration{time.Hour}
	c := NewClient(svc, cfg, zerolog.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	advice, err := c.Advise(ctx, Prompt{Symbol: "7203.T"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, advice.Unavailable)
	assert.Equal(t, 1, svc.calls)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAdvise_BackoffRepeatsLastValue(t *testing.T) {
	svc := &scriptedService{replies: []error{rateLimited, rateLimited, rateLimited, rateLimited}, text: "ok"}
	cfg := Config{MaxAttempts: 5, Backoff: []time.Duration{time.Second, 2 * time.Second}}
	c, sleeps := newTestClient(svc, cfg)

	advice, err := c.Advise(context.Background(), Prompt{Symbol: "X"})
	require.NoError(t, err)
	assert.Equal(t, "ok", advice.Text)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, *sleeps)
}

func TestAdvise_CallDelaySpacesCalls(t *testing.T) {
	svc := &scriptedService{text: "ok"}
	cfg := Config{MaxAttempts: 1, CallDelay: 30 * time.Millisecond}
	c := NewClient(svc, cfg, zerolog.Nop(), nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Advise(context.Background(), Prompt{Symbol: "X"})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}
