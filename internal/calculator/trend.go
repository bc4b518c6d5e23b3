package calculator

import (
	"fmt"
	"math"

	"KabuScout/internal/model"
)

// bandWidth is the channel half-width in residual standard deviations.
const bandWidth = 2.0

// TrendChannel is a least-squares regression line over bar midpoints with
// symmetric bands at ±2σ of the residuals.
type TrendChannel struct {
	Slope     float64
	Intercept float64
	Center    float64 // regression value at the last bar
	Sigma     float64
	Upper     float64
	Lower     float64
}

// Bullish reports whether the channel slopes upward.
func (c TrendChannel) Bullish() bool { return c.Slope > 0 }

// Classification maps the slope sign to a Channel.
func (c TrendChannel) Classification() model.Channel {
	if c.Bullish() {
		return model.ChannelBullish
	}
	return model.ChannelBearish
}

// CenterAt returns the regression value at position x.
func (c TrendChannel) CenterAt(x int) float64 {
	return c.Slope*float64(x) + c.Intercept
}

// CalculateTrendChannel fits y = (high+low)/2 against x = 0..n-1.
func CalculateTrendChannel(bars []model.PriceBar) (TrendChannel, error) {
	n := len(bars)
	if n < 2 {
		return TrendChannel{}, fmt.Errorf("trend channel needs 2 bars, got %d: %w", n, model.ErrInsufficientData)
	}

	var sumX, sumY float64
	for i, b := range bars {
		sumX += float64(i)
		sumY += b.Mid()
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxy, sxx float64
	for i, b := range bars {
		dx := float64(i) - meanX
		sxy += dx * (b.Mid() - meanY)
		sxx += dx * dx
	}
	slope := sxy / sxx
	intercept := meanY - slope*meanX

	ch := TrendChannel{Slope: slope, Intercept: intercept}

	var ss float64
	for i, b := range bars {
		r := b.Mid() - ch.CenterAt(i)
		ss += r * r
	}
	ch.Sigma = math.Sqrt(ss / float64(n))
	ch.Center = ch.CenterAt(n - 1)
	ch.Upper = ch.Center + bandWidth*ch.Sigma
	ch.Lower = ch.Center - bandWidth*ch.Sigma
	return ch, nil
}
