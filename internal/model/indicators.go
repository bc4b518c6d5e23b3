package model

import "strconv"

// Indicator is a computed value that may be undefined when the series is too short.
// An undefined indicator is never treated as zero.
type Indicator struct {
	Value float64
	Valid bool
}

// Defined wraps a computed value.
func Defined(v float64) Indicator { return Indicator{Value: v, Valid: true} }

// Undefined is the marker for a value that could not be computed.
var Undefined = Indicator{}

// Format renders the value with the given precision, or "-" when undefined.
func (i Indicator) Format(prec int) string {
	if !i.Valid {
		return "-"
	}
	return strconv.FormatFloat(i.Value, 'f', prec, 64)
}

// Channel classifies a regression trend channel.
type Channel string

const (
	ChannelUnknown Channel = "UNKNOWN"
	ChannelBullish Channel = "BULLISH"
	ChannelBearish Channel = "BEARISH"
)

// IndicatorSnapshot holds all technical indicators derived from one PriceSeries.
// It is computed fresh on every call and never cached.
type IndicatorSnapshot struct {
	LastClose   float64
	ChangePct   Indicator // last close vs previous close, percent
	RSI14       Indicator
	SMA20       Indicator
	SMA50       Indicator
	TrendSlope  Indicator
	TrendCenter Indicator
	TrendUpper  Indicator
	TrendLower  Indicator
	Support     Indicator
	Resistance  Indicator
	Channel     Channel
}
