package calculator

import (
	"errors"

	"KabuScout/internal/model"
)

// flatRSI is reported when a window has neither gains nor losses.
const flatRSI = 50.0

// rollingSum keeps a windowed sum of non-negative values. When every value in the
// window is zero the sum is reset to exactly zero so float residue cannot leak in.
type rollingSum struct {
	sum     float64
	nonZero int
}

func (r *rollingSum) add(v float64) {
	r.sum += v
	if v != 0 {
		r.nonZero++
	}
}

func (r *rollingSum) remove(v float64) {
	r.sum -= v
	if v != 0 {
		r.nonZero--
	}
	if r.nonZero == 0 || r.sum < 0 {
		r.sum = 0
	}
}

// RSISeries computes RSI at every position. Average gain and loss are simple moving
// averages of the last period close-to-close changes. Positions before period are undefined.
func RSISeries(closes []float64, period int) ([]model.Indicator, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}
	out := make([]model.Indicator, len(closes))
	if len(closes) < period+1 {
		return out, nil
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	var g, l rollingSum
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
		g.add(gains[i])
		l.add(losses[i])
		if i > period {
			g.remove(gains[i-period])
			l.remove(losses[i-period])
		}
		if i >= period {
			out[i] = model.Defined(rsiFromAverages(g.sum/float64(period), l.sum/float64(period)))
		}
	}
	return out, nil
}

// RSI returns the RSI at the last position, undefined when fewer than period+1 closes exist.
func RSI(closes []float64, period int) (model.Indicator, error) {
	series, err := RSISeries(closes, period)
	if err != nil {
		return model.Undefined, err
	}
	if len(series) == 0 {
		return model.Undefined, nil
	}
	return series[len(series)-1], nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain > 0 {
			return 100
		}
		return flatRSI
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
