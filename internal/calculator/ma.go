package calculator

import (
	"errors"

	"KabuScout/internal/model"
)

// SMASeries computes the simple moving average at every position using a running sum.
// Positions before window-1 are undefined; nothing is filled forward.
func SMASeries(values []float64, window int) ([]model.Indicator, error) {
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}
	out := make([]model.Indicator, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = model.Defined(sum / float64(window))
		}
	}
	return out, nil
}

// SMA returns the simple moving average of the last window values.
func SMA(values []float64, window int) (model.Indicator, error) {
	if window <= 0 {
		return model.Undefined, errors.New("window must be positive")
	}
	if len(values) < window {
		return model.Undefined, nil
	}
	sum := 0.0
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	return model.Defined(sum / float64(window)), nil
}
