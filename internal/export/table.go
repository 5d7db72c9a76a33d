// Package export renders rundown profiles as spreadsheet rows. The xlsx and
// sheets subpackages write those rows to a workbook or to Google Sheets.
package export

import (
	"slices"

	"rundown/internal/core"
)

// Header is the column layout shared by every export.
var Header = []string{"Month", "Profile type", "Scenario", "Planned", "Actual", "Predicted"}

// Row renders one point. Amounts become float64 so spreadsheets treat them as
// numbers; a missing prediction is an empty cell.
func Row(p core.ProfilePoint) []any {
	var predicted any = ""
	if p.Predicted.Valid {
		predicted = p.Predicted.Decimal.InexactFloat64()
	}
	return []any{
		p.Month.String(),
		string(p.ProfileType),
		p.Scenario,
		p.Planned.InexactFloat64(),
		p.Actual.InexactFloat64(),
		predicted,
	}
}

// Rows returns the header followed by points ordered by profile type, then month.
func Rows(points []core.ProfilePoint) [][]any {
	sorted := slices.Clone(points)
	slices.SortStableFunc(sorted, func(a, b core.ProfilePoint) int {
		if a.ProfileType != b.ProfileType {
			if a.ProfileType < b.ProfileType {
				return 1 // total_budget first
			}
			return -1
		}
		switch {
		case a.Month.Before(b.Month):
			return -1
		case a.Month.After(b.Month):
			return 1
		}
		return 0
	})

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	rows := make([][]any, 0, len(sorted)+1)
	rows = append(rows, header)
	for _, p := range sorted {
		rows = append(rows, Row(p))
	}
	return rows
}

// GroupByType splits points into one series per profile type, keeping order.
func GroupByType(points []core.ProfilePoint) map[core.ProfileType][]core.ProfilePoint {
	out := make(map[core.ProfileType][]core.ProfilePoint)
	for _, p := range points {
		out[p.ProfileType] = append(out[p.ProfileType], p)
	}
	return out
}
