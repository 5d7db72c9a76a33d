package rundown

import (
	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

const (
	DefaultWindow    = 6
	DefaultMinPoints = 3
)

// PredictOptions controls the trailing regression window.
type PredictOptions struct {
	Window    int // most recent actual points used for the fit
	MinPoints int // fewer points than this yields no forecast
}

// DefaultPredictOptions returns a six month window requiring three points.
func DefaultPredictOptions() PredictOptions {
	return PredictOptions{Window: DefaultWindow, MinPoints: DefaultMinPoints}
}

// Sample is one observed value at a month index.
type Sample struct {
	Index int
	Value decimal.Decimal
}

// Fit performs an ordinary least squares fit over samples. ok is false when the
// samples do not determine a line.
func Fit(samples []Sample) (intercept, slope decimal.Decimal, ok bool) {
	if len(samples) < 2 {
		return decimal.Zero, decimal.Zero, false
	}

	n := decimal.NewFromInt(int64(len(samples)))
	var sx, sy, sxx, sxy decimal.Decimal
	for _, s := range samples {
		x := decimal.NewFromInt(int64(s.Index))
		sx = sx.Add(x)
		sy = sy.Add(s.Value)
		sxx = sxx.Add(x.Mul(x))
		sxy = sxy.Add(x.Mul(s.Value))
	}

	denom := n.Mul(sxx).Sub(sx.Mul(sx))
	if denom.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	slope = n.Mul(sxy).Sub(sx.Mul(sy)).Div(denom)
	intercept = sy.Sub(slope.Mul(sx)).Div(n)
	return intercept, slope, true
}

// Predict forecasts the cumulative actual for every month strictly after
// current, fitted on the trailing window of actual values up to and including
// current. Forecasts are rounded to cents and never negative.
func Predict(months []core.Month, actual []decimal.Decimal, current core.Month, opts PredictOptions) map[core.Month]decimal.Decimal {
	predicted := make(map[core.Month]decimal.Decimal)
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MinPoints <= 0 {
		opts.MinPoints = DefaultMinPoints
	}

	var history []Sample
	for i, m := range months {
		if m.After(current) {
			break
		}
		history = append(history, Sample{Index: i, Value: actual[i]})
	}
	if len(history) > opts.Window {
		history = history[len(history)-opts.Window:]
	}
	if len(history) < opts.MinPoints {
		return predicted
	}

	intercept, slope, ok := Fit(history)
	if !ok {
		return predicted
	}
	for i, m := range months {
		if !m.After(current) {
			continue
		}
		v := intercept.Add(slope.Mul(decimal.NewFromInt(int64(i))))
		predicted[m] = core.Round(decimal.Max(v, decimal.Zero))
	}
	return predicted
}

// ExceedsPlan reports whether predicted overshoots planned by more than pct percent.
func ExceedsPlan(planned, predicted, pct decimal.Decimal) bool {
	limit := planned.Mul(decimal.NewFromInt(100).Add(pct)).Div(decimal.NewFromInt(100))
	return predicted.GreaterThan(limit)
}
