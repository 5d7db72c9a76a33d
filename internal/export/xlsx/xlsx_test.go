package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"rundown/internal/core"
)

func TestWriteWorkbook(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)
	project := core.Project{
		ID:          "p1",
		Name:        "Bridge",
		Budget:      decimal.NewFromInt(3000),
		Contingency: decimal.NewNullDecimal(decimal.NewFromInt(300)),
		StartDate:   &start,
		EndDate:     &end,
	}

	var points []core.ProfilePoint
	m := core.MonthOf(start)
	for i := int64(1); i <= 3; i++ {
		points = append(points,
			core.ProfilePoint{ProjectID: "p1", Month: m, ProfileType: core.TotalBudget, Scenario: "baseline",
				Planned: decimal.NewFromInt(1000 * i), Actual: decimal.NewFromInt(1000 * i)},
			core.ProfilePoint{ProjectID: "p1", Month: m, ProfileType: core.Contingency, Scenario: "baseline",
				Planned: decimal.NewFromInt(100 * i), Actual: decimal.NewFromInt(100 * i)})
		m = m.Next()
	}

	wb := Workbook{Project: project, Scenario: "baseline", Points: points}
	var buf bytes.Buffer
	if err := Write(&buf, wb); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if wb.Filename() != "rundown-p1-baseline.xlsx" {
		t.Fatalf("Filename() = %s", wb.Filename())
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != "Summary" || sheets[1] != "total_budget" || sheets[2] != "contingency" {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	rows, err := f.GetRows("total_budget", excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Month" || rows[3][0] != "202403" || rows[3][3] != "3000" {
		t.Fatalf("unexpected rows %v", rows)
	}

	name, err := f.GetCellValue("Summary", "B2")
	if err != nil || name != "Bridge" {
		t.Fatalf("summary name = %q, %v", name, err)
	}
}

func TestWriteSkipsMissingSeries(t *testing.T) {
	project := core.Project{ID: "p2", Budget: decimal.NewFromInt(10)}
	var buf bytes.Buffer
	if err := Write(&buf, Workbook{Project: project, Scenario: "baseline"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	if got := f.GetSheetList(); len(got) != 1 {
		t.Fatalf("expected only the summary sheet, got %v", got)
	}
}
