package calculator

import (
	"errors"

	"KabuScout/internal/model"
)

// RollingMin returns the trailing minimum over window at each position.
// The value at i depends only on values[i-window+1 : i+1].
func RollingMin(values []float64, window int) ([]model.Indicator, error) {
	return rolling(values, window, func(a, b float64) bool { return a <= b })
}

// RollingMax returns the trailing maximum over window at each position.
func RollingMax(values []float64, window int) ([]model.Indicator, error) {
	return rolling(values, window, func(a, b float64) bool { return a >= b })
}

// rolling runs a monotonic deque of indices. keep(a, b) reports whether a newer
// value a dominates an older value b, which is then evicted from the back.
func rolling(values []float64, window int, keep func(a, b float64) bool) ([]model.Indicator, error) {
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}
	out := make([]model.Indicator, len(values))
	deque := make([]int, 0, window)
	for i, v := range values {
		for len(deque) > 0 && keep(v, values[deque[len(deque)-1]]) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		if deque[0] <= i-window {
			deque = deque[1:]
		}
		if i >= window-1 {
			out[i] = model.Defined(values[deque[0]])
		}
	}
	return out, nil
}

// SupportResistance returns the trailing low/high levels at the last bar.
func SupportResistance(series model.PriceSeries, window int) (support, resistance model.Indicator, err error) {
	lows, err := RollingMin(series.Lows(), window)
	if err != nil {
		return model.Undefined, model.Undefined, err
	}
	highs, err := RollingMax(series.Highs(), window)
	if err != nil {
		return model.Undefined, model.Undefined, err
	}
	if series.Empty() {
		return model.Undefined, model.Undefined, nil
	}
	return lows[len(lows)-1], highs[len(highs)-1], nil
}
