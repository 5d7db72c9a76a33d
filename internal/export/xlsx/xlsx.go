// Package xlsx writes a project's rundown profiles to an Excel workbook.
package xlsx

import (
	"fmt"
	"io"
	"slices"

	"github.com/xuri/excelize/v2"

	"rundown/internal/core"
	"rundown/internal/export"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	summary     = "Summary"
	// builtin number format "#,##0.00"
	amountFormat = 4
)

// Workbook holds everything one export needs.
type Workbook struct {
	Project  core.Project
	Scenario string
	Points   []core.ProfilePoint
}

// Filename suggests an attachment name for the workbook.
func (w Workbook) Filename() string {
	return fmt.Sprintf("rundown-%s-%s.xlsx", w.Project.ID, w.Scenario)
}

// Write renders a summary sheet plus one sheet per profile type and streams the file to out.
func Write(out io.Writer, wb Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSummary(f, wb); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{NumFmt: amountFormat})
	if err != nil {
		return fmt.Errorf("create amount style: %w", err)
	}

	groups := export.GroupByType(wb.Points)
	for _, t := range wb.Project.ProfileTypes() {
		points, ok := groups[t]
		if !ok {
			continue
		}
		if err := writeSeries(f, string(t), points, style); err != nil {
			return err
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, wb Workbook) error {
	p := wb.Project
	rows := [][]any{
		{"Project", p.ID},
		{"Name", p.Name},
		{"Scenario", wb.Scenario},
		{"Budget", p.Budget.InexactFloat64()},
	}
	if p.Contingency.Valid {
		rows = append(rows, []any{"Contingency", p.Contingency.Decimal.InexactFloat64()})
	}
	if p.StartDate != nil && p.EndDate != nil {
		rows = append(rows,
			[]any{"Start", core.MonthOf(*p.StartDate).String()},
			[]any{"End", core.MonthOf(*p.EndDate).String()})
	}
	return setRows(f, summary, rows)
}

func writeSeries(f *excelize.File, sheet string, points []core.ProfilePoint, style int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := setRows(f, sheet, export.Rows(points)); err != nil {
		return err
	}

	last := len(points) + 1
	if err := f.SetCellStyle(sheet, "D2", fmt.Sprintf("F%d", last), style); err != nil {
		return fmt.Errorf("style sheet %s: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, "A", "F", 16); err != nil {
		return fmt.Errorf("size columns of %s: %w", sheet, err)
	}
	return nil
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := slices.Clone(row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+1, sheet, err)
		}
	}
	return nil
}
