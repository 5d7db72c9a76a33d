package rundown

import (
	"errors"

	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

var ErrNoMonths = errors.New("empty month sequence")

// Distribute spreads total evenly across months and returns the cumulative
// planned value per month, rounded to cents. The last month always carries
// exactly total so the series round-trips to the budget.
func Distribute(months []core.Month, total decimal.Decimal) ([]decimal.Decimal, error) {
	if len(months) == 0 {
		return nil, ErrNoMonths
	}
	if total.IsNegative() {
		return nil, core.ErrNegativeBudget
	}

	n := decimal.NewFromInt(int64(len(months)))
	planned := make([]decimal.Decimal, len(months))
	for i := range months {
		// (i+1)*total/n rather than a running sum keeps rounding from accumulating.
		planned[i] = core.Round(total.Mul(decimal.NewFromInt(int64(i + 1))).Div(n))
	}
	planned[len(planned)-1] = total
	return planned, nil
}
