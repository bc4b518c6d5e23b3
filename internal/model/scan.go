package model

import "time"

// SkipReason explains why a watchlist symbol produced no result.
type SkipReason string

const (
	SkipDataUnavailable SkipReason = "data_unavailable"
	SkipFetchFailed     SkipReason = "fetch_failed"
	SkipComputeFailed   SkipReason = "compute_failed"
	SkipTimeout         SkipReason = "timeout"
)

// Verdict is the advisory call on a symbol.
type Verdict string

const (
	VerdictUnknown Verdict = ""
	VerdictBuy     Verdict = "買い"
	VerdictSell    Verdict = "売り"
	VerdictHold    Verdict = "様子見"
)

// Advice is the commentary attached to a scan hit.
type Advice struct {
	Text        string
	Verdict     Verdict
	Reason      string
	Attempts    int
	Unavailable bool
	Err         string
}

// Commentary returns the text shown in result tables.
func (a *Advice) Commentary() string {
	switch {
	case a == nil:
		return ""
	case a.Unavailable:
		return "unavailable"
	case a.Err != "":
		return "error: " + a.Err
	case a.Verdict != VerdictUnknown && a.Reason != "":
		return string(a.Verdict) + ": " + a.Reason
	default:
		return a.Text
	}
}

// Hit is a symbol that passed every enabled filter.
type Hit struct {
	Entry    WatchEntry
	Snapshot IndicatorSnapshot
	Advice   *Advice
}

// Skip records a symbol that could not be evaluated.
type Skip struct {
	Entry  WatchEntry
	Reason SkipReason
	Detail string
}

// ScanResult is the aggregated output of one screening run.
type ScanResult struct {
	RunID      string
	Category   string
	StartedAt  time.Time
	FinishedAt time.Time
	Evaluated  int
	Hits       []Hit
	Skips      []Skip
}

// ResultRow is one line of the exported scan-result table.
type ResultRow struct {
	Symbol      string
	DisplayName string
	LastClose   float64
	RSI         Indicator
	Commentary  string
}

// Rows flattens the hits into the exported table, preserving rank order.
func (r *ScanResult) Rows() []ResultRow {
	rows := make([]ResultRow, len(r.Hits))
	for i, h := range r.Hits {
		rows[i] = ResultRow{
			Symbol:      h.Entry.Symbol,
			DisplayName: h.Entry.Label,
			LastClose:   h.Snapshot.LastClose,
			RSI:         h.Snapshot.RSI14,
			Commentary:  h.Advice.Commentary(),
		}
	}
	return rows
}

// FindHit returns the hit for symbol, if present.
func (r *ScanResult) FindHit(symbol string) (Hit, bool) {
	for _, h := range r.Hits {
		if h.Entry.Symbol == symbol {
			return h, true
		}
	}
	return Hit{}, false
}
