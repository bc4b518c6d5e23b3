package tracker

import (
	"context"
	"sync"

	"KabuScout/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// returnPct is (to-from)/from in percent, rounded to two places.
func returnPct(from, to float64) float64 {
	f := decimal.NewFromFloat(from)
	pct, _ := decimal.NewFromFloat(to).Sub(f).Div(f).Mul(hundred).Round(2).Float64()
	return pct
}

type verifyResult struct {
	row  *model.Verification
	skip *model.Unverifiable
}

// Verify re-reads each pick's history since its registration date and reports the
// realized change and best-case upside. Picks without data are listed as unverifiable.
// Rows keep the order of picks. Nothing is written back.
func (s *Store) Verify(ctx context.Context, picks []model.Pick) *model.VerificationReport {
	results := make([]verifyResult, len(picks))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.verifyOne(ctx, picks[i])
			}
		}()
	}
	for i := range picks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report := &model.VerificationReport{GeneratedAt: s.now()}
	for _, r := range results {
		if r.row != nil {
			report.Rows = append(report.Rows, *r.row)
			s.metrics.ObserveVerification("verified")
			continue
		}
		report.Unverifiable = append(report.Unverifiable, *r.skip)
		s.metrics.ObserveVerification("unverifiable")
	}
	return report
}

func (s *Store) verifyOne(ctx context.Context, p model.Pick) verifyResult {
	if p.RegisteredPrice <= 0 {
		return verifyResult{skip: &model.Unverifiable{Pick: p, Reason: "invalid registered price"}}
	}
	series, err := s.fetcher.FetchSince(ctx, p.Symbol, p.RegisteredDate)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("verification fetch failed")
		return verifyResult{skip: &model.Unverifiable{Pick: p, Reason: "fetch failed: " + err.Error()}}
	}
	if series.Empty() {
		return verifyResult{skip: &model.Unverifiable{Pick: p, Reason: model.ErrDataUnavailable.Error()}}
	}

	latest := series.Last().Close
	maxHigh := series.Bars[0].High
	for _, b := range series.Bars[1:] {
		if b.High > maxHigh {
			maxHigh = b.High
		}
	}
	return verifyResult{row: &model.Verification{
		Pick:        p,
		LatestClose: latest,
		MaxHigh:     maxHigh,
		ChangePct:   returnPct(p.RegisteredPrice, latest),
		UpsidePct:   returnPct(p.RegisteredPrice, maxHigh),
		DaysHeld:    s.ageDays(p),
	}}
}
