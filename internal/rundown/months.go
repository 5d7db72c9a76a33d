// Package rundown computes monthly budget-consumption curves for a project.
//
// Every function in this package is pure: given the same inputs it returns
// bit-identical outputs and never touches storage. The services package
// wires these steps to persistence, locking and logging.
package rundown

import (
	"time"

	"rundown/internal/core"
)

// MonthRange returns the calendar months from start's month to end's month inclusive.
// A missing date or an end before the start yields an *core.InvalidRangeError.
func MonthRange(start, end *time.Time) ([]core.Month, error) {
	switch {
	case start == nil || start.IsZero():
		return nil, &core.InvalidRangeError{Reason: "missing start date"}
	case end == nil || end.IsZero():
		return nil, &core.InvalidRangeError{Reason: "missing end date"}
	case start.After(*end):
		return nil, &core.InvalidRangeError{Reason: "start date " + start.Format(time.DateOnly) + " is after end date " + end.Format(time.DateOnly)}
	}

	first, last := core.MonthOf(*start), core.MonthOf(*end)
	var months []core.Month
	for m := first; !m.After(last); m = m.Next() {
		months = append(months, m)
	}
	return months, nil
}

// indexOf returns the position of m in months, clamped to the range ends.
func indexOf(months []core.Month, m core.Month) int {
	if m.Before(months[0]) {
		return 0
	}
	last := len(months) - 1
	if m.After(months[last]) {
		return last
	}
	first := months[0]
	return (m.Year-first.Year)*12 + int(m.Month) - int(first.Month)
}
