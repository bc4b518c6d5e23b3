package calculator

import (
	"errors"
	"fmt"

	"KabuScout/internal/model"
)

// Params controls indicator lookbacks.
type Params struct {
	RSIPeriod   int `yaml:"rsi_period"`
	ShortMA     int `yaml:"short_ma"`
	LongMA      int `yaml:"long_ma"`
	LevelWindow int `yaml:"level_window"`
}

// DefaultParams returns RSI(14), SMA20, SMA50 and 20-bar support/resistance.
func DefaultParams() Params {
	return Params{RSIPeriod: 14, ShortMA: 20, LongMA: 50, LevelWindow: 20}
}

// Validate checks every lookback is positive.
func (p Params) Validate() error {
	if p.RSIPeriod <= 0 || p.ShortMA <= 0 || p.LongMA <= 0 || p.LevelWindow <= 0 {
		return fmt.Errorf("indicator lookbacks must be positive: %+v", p)
	}
	return nil
}

// Snapshot derives an IndicatorSnapshot from the series. Fields whose lookback
// exceeds the series length are left undefined. An empty series is ErrDataUnavailable.
func Snapshot(series model.PriceSeries, p Params) (model.IndicatorSnapshot, error) {
	if series.Empty() {
		return model.IndicatorSnapshot{}, model.ErrDataUnavailable
	}
	if err := p.Validate(); err != nil {
		return model.IndicatorSnapshot{}, err
	}

	closes := series.Closes()
	n := len(closes)
	snap := model.IndicatorSnapshot{
		LastClose: closes[n-1],
		Channel:   model.ChannelUnknown,
	}

	if n >= 2 && closes[n-2] != 0 {
		snap.ChangePct = model.Defined((closes[n-1] - closes[n-2]) / closes[n-2] * 100)
	}

	var err error
	if snap.RSI14, err = RSI(closes, p.RSIPeriod); err != nil {
		return model.IndicatorSnapshot{}, fmt.Errorf("rsi: %w", err)
	}
	if snap.SMA20, err = SMA(closes, p.ShortMA); err != nil {
		return model.IndicatorSnapshot{}, fmt.Errorf("short ma: %w", err)
	}
	if snap.SMA50, err = SMA(closes, p.LongMA); err != nil {
		return model.IndicatorSnapshot{}, fmt.Errorf("long ma: %w", err)
	}

	ch, err := CalculateTrendChannel(series.Bars)
	switch {
	case errors.Is(err, model.ErrInsufficientData):
	case err != nil:
		return model.IndicatorSnapshot{}, fmt.Errorf("trend channel: %w", err)
	default:
		snap.TrendSlope = model.Defined(ch.Slope)
		snap.TrendCenter = model.Defined(ch.Center)
		snap.TrendUpper = model.Defined(ch.Upper)
		snap.TrendLower = model.Defined(ch.Lower)
		snap.Channel = ch.Classification()
	}

	if snap.Support, snap.Resistance, err = SupportResistance(series, p.LevelWindow); err != nil {
		return model.IndicatorSnapshot{}, fmt.Errorf("levels: %w", err)
	}
	return snap, nil
}
