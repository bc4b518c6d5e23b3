package strategy

import (
	"errors"
	"fmt"

	"KabuScout/internal/model"
)

// Field names an IndicatorSnapshot value a filter can test.
type Field string

const (
	FieldLastClose       Field = "last_close"
	FieldChangePct       Field = "change_pct"
	FieldRSI             Field = "rsi"
	FieldSMA20           Field = "sma20"
	FieldSMA50           Field = "sma50"
	FieldTrendSlope      Field = "trend_slope"
	FieldTrendCenter     Field = "trend_center"
	FieldTrendUpper      Field = "trend_upper"
	FieldTrendLower      Field = "trend_lower"
	FieldSupport         Field = "support"
	FieldResistance      Field = "resistance"
	FieldCloseVsSMA20    Field = "close_vs_sma20_pct"
	FieldCloseVsSMA50    Field = "close_vs_sma50_pct"
	FieldChannelPosition Field = "channel_position"
)

// Op is a numeric comparison.
type Op string

const (
	OpLT  Op = "<"
	OpLTE Op = "<="
	OpGT  Op = ">"
	OpGTE Op = ">="
)

// Filter is a named numeric predicate over one snapshot field.
type Filter struct {
	Name      string  `yaml:"name"`
	Field     Field   `yaml:"field"`
	Op        Op      `yaml:"op"`
	Threshold float64 `yaml:"threshold"`
	Enabled   bool    `yaml:"enabled"`
}

// Validate checks the field and operator are known.
func (f Filter) Validate() error {
	if f.Name == "" {
		return errors.New("filter name is required")
	}
	if _, ok := extractors[f.Field]; !ok {
		return fmt.Errorf("filter %q: unknown field %q", f.Name, f.Field)
	}
	switch f.Op {
	case OpLT, OpLTE, OpGT, OpGTE:
	default:
		return fmt.Errorf("filter %q: unknown op %q", f.Name, f.Op)
	}
	return nil
}

// Value extracts the filter's field from a snapshot.
func (f Filter) Value(snap *model.IndicatorSnapshot) model.Indicator {
	ext, ok := extractors[f.Field]
	if !ok {
		return model.Undefined
	}
	return ext(snap)
}

// Match applies the predicate. An undefined field never matches.
func (f Filter) Match(snap *model.IndicatorSnapshot) bool {
	v := f.Value(snap)
	if !v.Valid {
		return false
	}
	switch f.Op {
	case OpLT:
		return v.Value < f.Threshold
	case OpLTE:
		return v.Value <= f.Threshold
	case OpGT:
		return v.Value > f.Threshold
	case OpGTE:
		return v.Value >= f.Threshold
	}
	return false
}

func (f Filter) String() string {
	return fmt.Sprintf("%s(%s %s %g)", f.Name, f.Field, f.Op, f.Threshold)
}

var extractors = map[Field]func(*model.IndicatorSnapshot) model.Indicator{
	FieldLastClose:   func(s *model.IndicatorSnapshot) model.Indicator { return model.Defined(s.LastClose) },
	FieldChangePct:   func(s *model.IndicatorSnapshot) model.Indicator { return s.ChangePct },
	FieldRSI:         func(s *model.IndicatorSnapshot) model.Indicator { return s.RSI14 },
	FieldSMA20:       func(s *model.IndicatorSnapshot) model.Indicator { return s.SMA20 },
	FieldSMA50:       func(s *model.IndicatorSnapshot) model.Indicator { return s.SMA50 },
	FieldTrendSlope:  func(s *model.IndicatorSnapshot) model.Indicator { return s.TrendSlope },
	FieldTrendCenter: func(s *model.IndicatorSnapshot) model.Indicator { return s.TrendCenter },
	FieldTrendUpper:  func(s *model.IndicatorSnapshot) model.Indicator { return s.TrendUpper },
	FieldTrendLower:  func(s *model.IndicatorSnapshot) model.Indicator { return s.TrendLower },
	FieldSupport:     func(s *model.IndicatorSnapshot) model.Indicator { return s.Support },
	FieldResistance:  func(s *model.IndicatorSnapshot) model.Indicator { return s.Resistance },
	FieldCloseVsSMA20: func(s *model.IndicatorSnapshot) model.Indicator {
		return deviationPct(s.LastClose, s.SMA20)
	},
	FieldCloseVsSMA50: func(s *model.IndicatorSnapshot) model.Indicator {
		return deviationPct(s.LastClose, s.SMA50)
	},
	FieldChannelPosition: channelPosition,
}

func deviationPct(price float64, ma model.Indicator) model.Indicator {
	if !ma.Valid || ma.Value == 0 {
		return model.Undefined
	}
	return model.Defined((price - ma.Value) / ma.Value * 100)
}

// channelPosition is 0 at the lower band and 1 at the upper band; it is not clamped.
func channelPosition(s *model.IndicatorSnapshot) model.Indicator {
	if !s.TrendUpper.Valid || !s.TrendLower.Valid {
		return model.Undefined
	}
	width := s.TrendUpper.Value - s.TrendLower.Value
	if width == 0 {
		return model.Defined(0.5)
	}
	return model.Defined((s.LastClose - s.TrendLower.Value) / width)
}
