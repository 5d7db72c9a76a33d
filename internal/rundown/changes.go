package rundown

import (
	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

// AggregateChanges nets event amounts by posting month. Events posted before
// the first month are folded into it, events after the last month into the
// last one, so every month in the result has an entry and nothing is dropped.
func AggregateChanges(months []core.Month, events []core.FinancialEvent) (map[core.Month]decimal.Decimal, error) {
	if len(months) == 0 {
		return nil, ErrNoMonths
	}

	changes := make(map[core.Month]decimal.Decimal, len(months))
	for _, m := range months {
		changes[m] = decimal.Zero
	}

	for _, e := range events {
		if err := validateEvent(e); err != nil {
			return nil, err
		}
		m := months[indexOf(months, core.MonthOf(e.PostingDate))]
		changes[m] = changes[m].Add(e.Amount)
	}
	return changes, nil
}

// validateEvent rejects events the aggregator cannot attribute to a month and pool.
func validateEvent(e core.FinancialEvent) error {
	if e.PostingDate.IsZero() {
		return &core.AggregationError{EventID: e.ID, Reason: "missing posting date"}
	}
	if !e.Kind.IsValid() {
		return &core.AggregationError{EventID: e.ID, Reason: "unknown kind " + string(e.Kind), Err: core.ErrInvalidKind}
	}
	if !e.PoolOrDefault().IsValid() {
		return &core.AggregationError{EventID: e.ID, Reason: "unknown pool " + string(e.Pool), Err: core.ErrInvalidType}
	}
	return nil
}
