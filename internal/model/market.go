package model

import (
	"fmt"
	"time"
)

// PriceBar represents a single daily candlestick bar.
type PriceBar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Mid returns the bar midpoint, (high+low)/2.
func (b PriceBar) Mid() float64 {
	return (b.High + b.Low) / 2
}

// PriceSeries holds an ordered price history for one symbol.
// Bars are strictly increasing in time and must not be modified once fetched.
type PriceSeries struct {
	Symbol    string
	Bars      []PriceBar
	FetchedAt time.Time
}

// Len returns the number of bars.
func (s PriceSeries) Len() int { return len(s.Bars) }

// Empty reports whether the series carries no bars.
func (s PriceSeries) Empty() bool { return len(s.Bars) == 0 }

// Last returns the most recent bar. It panics on an empty series.
func (s PriceSeries) Last() PriceBar { return s.Bars[len(s.Bars)-1] }

// Closes extracts the closing prices.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high prices.
func (s PriceSeries) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low prices.
func (s PriceSeries) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Validate checks that timestamps are strictly increasing.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Time.After(s.Bars[i-1].Time) {
			return fmt.Errorf("%s: bar %d at %s is not after %s", s.Symbol, i,
				s.Bars[i].Time.Format(time.RFC3339), s.Bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}
