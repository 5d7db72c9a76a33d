package rundown

import (
	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

// Reconcile derives the actual cumulative profile from the planned one.
//
// Months before the first nonzero change follow the plan. Each month with a
// nonzero change becomes an anchor: the net consumption so far is the base and
// the unconsumed budget is spread linearly over the anchor month and every
// month after it. A change in the final month therefore absorbs the whole
// remainder. Overspending leaves nothing to spread; the curve stays at the
// consumed amount.
func Reconcile(months []core.Month, planned []decimal.Decimal, changes map[core.Month]decimal.Decimal) []decimal.Decimal {
	n := len(months)
	actual := make([]decimal.Decimal, n)
	if n == 0 {
		return actual
	}
	total := planned[n-1]

	var (
		consumed  = decimal.Zero
		anchored  bool
		anchor    int
		base      decimal.Decimal
		remaining decimal.Decimal
	)
	for i, m := range months {
		change := changes[m]
		consumed = consumed.Add(change)

		if !change.IsZero() {
			anchored = true
			anchor = i
			base = consumed
			remaining = decimal.Max(total.Sub(consumed), decimal.Zero)
		}
		if !anchored {
			actual[i] = planned[i]
			continue
		}

		span := decimal.NewFromInt(int64(n - anchor))
		step := decimal.NewFromInt(int64(i - anchor + 1))
		actual[i] = core.Round(base.Add(remaining.Mul(step).Div(span)))
	}
	return actual
}
