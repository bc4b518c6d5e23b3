package strategy

import (
	"errors"
	"fmt"

	"KabuScout/internal/model"
)

// FilterSet is the screening predicate: the logical AND of every enabled filter.
type FilterSet []Filter

// Enabled returns the filters that take part in evaluation.
func (fs FilterSet) Enabled() FilterSet {
	out := make(FilterSet, 0, len(fs))
	for _, f := range fs {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks every filter and rejects duplicate names.
func (fs FilterSet) Validate() error {
	var errs error
	seen := make(map[string]bool, len(fs))
	for _, f := range fs {
		if err := f.Validate(); err != nil {
			errs = errors.Join(errs, err)
		}
		if seen[f.Name] {
			errs = errors.Join(errs, fmt.Errorf("duplicate filter name %q", f.Name))
		}
		seen[f.Name] = true
	}
	return errs
}

// Outcome is one filter's result for a snapshot.
type Outcome struct {
	Filter Filter
	Value  model.Indicator
	Passed bool
}

// Evaluate applies every enabled filter and reports whether all passed.
// With no enabled filters every snapshot passes.
func (fs FilterSet) Evaluate(snap *model.IndicatorSnapshot) (bool, []Outcome) {
	enabled := fs.Enabled()
	outcomes := make([]Outcome, len(enabled))
	pass := true
	for i, f := range enabled {
		ok := f.Match(snap)
		outcomes[i] = Outcome{Filter: f, Value: f.Value(snap), Passed: ok}
		pass = pass && ok
	}
	return pass, outcomes
}

// Presets are named filter sets selectable from configuration.
var Presets = map[string]FilterSet{
	"oversold": {
		{Name: "rsi_oversold", Field: FieldRSI, Op: OpLTE, Threshold: 30, Enabled: true},
	},
	"uptrend": {
		{Name: "bullish_channel", Field: FieldTrendSlope, Op: OpGT, Threshold: 0, Enabled: true},
		{Name: "above_sma20", Field: FieldCloseVsSMA20, Op: OpGT, Threshold: 0, Enabled: true},
	},
	"pullback": {
		{Name: "bullish_channel", Field: FieldTrendSlope, Op: OpGT, Threshold: 0, Enabled: true},
		{Name: "lower_half", Field: FieldChannelPosition, Op: OpLTE, Threshold: 0.5, Enabled: true},
		{Name: "rsi_not_hot", Field: FieldRSI, Op: OpLT, Threshold: 50, Enabled: true},
	},
}
