package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

// formatMoney renders an amount in the display currency, rounded to cents.
func formatMoney(d decimal.Decimal, currency string) string {
	cents := core.Round(d).Shift(2).IntPart()
	return money.New(cents, strings.ToUpper(currency)).Display()
}

func validCurrency(code string) error {
	if money.GetCurrency(strings.ToUpper(code)) == nil {
		return fmt.Errorf("unknown currency %q", code)
	}
	return nil
}

// renderTable writes a boxed table with a header row.
func renderTable(w io.Writer, header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)

	out, err := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(data).
		Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, pterm.Success.Sprintfln(format, args...))
}

func warning(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, pterm.Warning.Sprintfln(format, args...))
}

func profileRows(points []core.ProfilePoint, currency string) [][]string {
	rows := make([][]string, 0, len(points))
	for _, p := range points {
		predicted := "-"
		if p.Predicted.Valid {
			predicted = formatMoney(p.Predicted.Decimal, currency)
		}
		rows = append(rows, []string{
			p.Month.String(),
			formatMoney(p.Planned, currency),
			formatMoney(p.Actual, currency),
			predicted,
		})
	}
	return rows
}

func scenarioRows(list []core.Scenario) [][]string {
	rows := make([][]string, 0, len(list))
	for _, sc := range list {
		rows = append(rows, []string{
			sc.Name,
			describeAdjustment(sc.Adjustment),
			sc.CreatedBy,
			sc.UpdatedAt.UTC().Format("2006-01-02 15:04"),
		})
	}
	return rows
}

func describeAdjustment(a core.Adjustment) string {
	switch a.Kind {
	case core.Percentage:
		sign := ""
		if a.Value.IsPositive() {
			sign = "+"
		}
		return sign + a.Value.String() + "%"
	case core.Absolute:
		sign := ""
		if a.Value.IsPositive() {
			sign = "+"
		}
		return sign + a.Value.StringFixed(2)
	default:
		return "none"
	}
}

func logRows(entries []core.GenerationLogEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		scope := "all"
		if e.ProjectID != nil {
			scope = *e.ProjectID
		}
		rows = append(rows, []string{
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			e.ExecutionID,
			scope,
			string(e.Status),
			strconv.Itoa(e.ProjectsProcessed),
			strconv.Itoa(e.ProfilesCreated),
			strconv.Itoa(e.Errors),
			strconv.FormatInt(e.DurationMs, 10) + "ms",
		})
	}
	return rows
}
