package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"KabuScout/internal/collector"
	"KabuScout/internal/metrics"
	"KabuScout/internal/model"

	"github.com/rs/zerolog"
)

// DefaultTTL is how long a pick stays verifiable.
const DefaultTTL = 7 * 24 * time.Hour

// Backend persists the whole pick set at once.
type Backend interface {
	Load(ctx context.Context) ([]model.Pick, error)
	Save(ctx context.Context, picks []model.Pick) error
}

// Store manages pick lifecycle. Create, Sweep and Load are serialized so a sweep
// never races a create; Verify only reads and may run concurrently.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	fetcher  collector.Fetcher
	ttl      time.Duration
	workers  int
	location *time.Location
	now      func() time.Time
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// Config tunes the store.
type Config struct {
	TTL      time.Duration
	Workers  int
	Location *time.Location
}

// NewStore creates a Store. m may be nil.
func NewStore(backend Backend, fetcher collector.Fetcher, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Store{
		backend:  backend,
		fetcher:  fetcher,
		ttl:      cfg.TTL,
		workers:  cfg.Workers,
		location: cfg.Location,
		now:      time.Now,
		log:      log.With().Str("component", "tracker").Logger(),
		metrics:  m,
	}
}

// today returns midnight of the current date in the store's location.
func (s *Store) today() time.Time {
	return truncateDay(s.now(), s.location)
}

func truncateDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ageDays counts calendar days between the registration date and today.
func (s *Store) ageDays(p model.Pick) int {
	return daysBetween(p.RegisteredDate.In(s.location), s.now().In(s.location))
}

// daysBetween ignores clock time and DST by comparing dates in UTC.
func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func (s *Store) expired(p model.Pick) bool {
	return time.Duration(s.ageDays(p))*24*time.Hour > s.ttl
}

// Load reads all picks, sweeping expired ones first.
func (s *Store) Load(ctx context.Context) ([]model.Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	picks, _, err := s.loadAndSweep(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Pick, len(picks))
	copy(out, picks)
	return out, nil
}

// Sweep removes expired picks and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, removed, err := s.loadAndSweep(ctx)
	return removed, err
}

// loadAndSweep must be called with s.mu held.
func (s *Store) loadAndSweep(ctx context.Context) ([]model.Pick, int, error) {
	picks, err := s.backend.Load(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load picks: %w", err)
	}
	kept := make([]model.Pick, 0, len(picks))
	for _, p := range picks {
		if s.expired(p) {
			s.log.Info().Str("symbol", p.Symbol).Time("registered", p.RegisteredDate).Msg("pick expired")
			continue
		}
		kept = append(kept, p)
	}
	removed := len(picks) - len(kept)
	if removed > 0 {
		if err := s.backend.Save(ctx, kept); err != nil {
			return nil, 0, fmt.Errorf("save swept picks: %w", err)
		}
		s.metrics.ObservePicksSwept(removed)
	}
	return kept, removed, nil
}

// Create registers a confirmed scan hit at today's date and its last close.
func (s *Store) Create(ctx context.Context, hit model.Hit) (model.Pick, error) {
	if hit.Entry.Symbol == "" {
		return model.Pick{}, errors.New("pick symbol is required")
	}
	if hit.Snapshot.LastClose <= 0 {
		return model.Pick{}, fmt.Errorf("pick %s: price must be positive, got %v", hit.Entry.Symbol, hit.Snapshot.LastClose)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	picks, _, err := s.loadAndSweep(ctx)
	if err != nil {
		return model.Pick{}, err
	}
	pick := model.Pick{
		Symbol:          hit.Entry.Symbol,
		DisplayName:     hit.Entry.Label,
		RegisteredDate:  s.today(),
		RegisteredPrice: hit.Snapshot.LastClose,
	}
	picks = append(picks, pick)
	if err := s.backend.Save(ctx, picks); err != nil {
		return model.Pick{}, fmt.Errorf("save picks: %w", err)
	}
	s.metrics.ObservePicksCreated(1)
	s.log.Info().Str("symbol", pick.Symbol).Float64("price", pick.RegisteredPrice).Msg("pick registered")
	return pick, nil
}
