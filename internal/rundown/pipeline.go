package rundown

import (
	"fmt"

	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

// DefaultWarningThreshold is the forecast overshoot, in percent, that flags a project.
var DefaultWarningThreshold = decimal.NewFromInt(10)

// Options configures Build.
type Options struct {
	Predict PredictOptions
	// WarningThreshold is the overshoot in percent over plan; unset means DefaultWarningThreshold.
	WarningThreshold decimal.NullDecimal
}

func DefaultOptions() Options {
	return Options{Predict: DefaultPredictOptions(), WarningThreshold: decimal.NewNullDecimal(DefaultWarningThreshold)}
}

// Input is everything Build needs for one project and one scenario.
type Input struct {
	Project    core.Project
	Events     []core.FinancialEvent
	Scenario   string
	Adjustment core.Adjustment
	Current    core.Month
}

// Series is the full rundown for one profile type.
type Series struct {
	ProfileType core.ProfileType
	Points      []core.ProfilePoint
	// Flagged is set when any forecast overshoots the plan by more than the warning threshold.
	Flagged bool
}

// Build runs the month range, distribution, aggregation, reconciliation and
// prediction steps for every profile type the project carries.
func Build(in Input, opts Options) ([]Series, error) {
	if in.Project.Invalid != nil {
		return nil, in.Project.Invalid
	}
	months, err := MonthRange(in.Project.StartDate, in.Project.EndDate)
	if err != nil {
		if rangeErr, ok := err.(*core.InvalidRangeError); ok {
			rangeErr.ProjectID = in.Project.ID
		}
		return nil, err
	}

	scenario := in.Scenario
	if scenario == "" {
		scenario = core.BaselineScenario
	}
	threshold := DefaultWarningThreshold
	if opts.WarningThreshold.Valid {
		threshold = opts.WarningThreshold.Decimal
	}

	byPool := make(map[core.ProfileType][]core.FinancialEvent)
	for _, e := range in.Events {
		if err := validateEvent(e); err != nil {
			return nil, err
		}
		pool := e.PoolOrDefault()
		if _, ok := in.Project.BudgetFor(pool); !ok {
			// Contingency spend on a project without a contingency pool counts
			// against the total budget.
			pool = core.TotalBudget
		}
		byPool[pool] = append(byPool[pool], e)
	}

	var out []Series
	for _, pt := range in.Project.ProfileTypes() {
		budget, _ := in.Project.BudgetFor(pt)
		budget = core.Round(in.Adjustment.Apply(budget))

		planned, err := Distribute(months, budget)
		if err != nil {
			return nil, fmt.Errorf("distribute %s: %w", pt, err)
		}
		changes, err := AggregateChanges(months, byPool[pt])
		if err != nil {
			return nil, err
		}
		actual := Reconcile(months, planned, changes)
		predicted := Predict(months, actual, in.Current, opts.Predict)

		s := Series{ProfileType: pt, Points: make([]core.ProfilePoint, len(months))}
		for i, m := range months {
			p := core.ProfilePoint{
				ProjectID:   in.Project.ID,
				Month:       m,
				ProfileType: pt,
				Scenario:    scenario,
				Planned:     planned[i],
				Actual:      actual[i],
			}
			if v, ok := predicted[m]; ok {
				p.Predicted = decimal.NewNullDecimal(v)
				if ExceedsPlan(planned[i], v, threshold) {
					s.Flagged = true
				}
			}
			s.Points[i] = p
		}
		out = append(out, s)
	}
	return out, nil
}

// Flatten concatenates the points of every series.
func Flatten(series []Series) []core.ProfilePoint {
	var points []core.ProfilePoint
	for _, s := range series {
		points = append(points, s.Points...)
	}
	return points
}

// AnyFlagged reports whether any series is flagged.
func AnyFlagged(series []Series) bool {
	for _, s := range series {
		if s.Flagged {
			return true
		}
	}
	return false
}
