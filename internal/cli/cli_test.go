package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

func TestParseAdjustment(t *testing.T) {
	tests := []struct {
		in      string
		kind    core.AdjustmentKind
		value   string
		wantErr bool
	}{
		{"-10%", core.Percentage, "-10", false},
		{"12.5 %", core.Percentage, "12.5", false},
		{"+500", core.Absolute, "500", false},
		{"-250,50", core.Absolute, "-250.5", false},
		{"ten", "", "", true},
		{"%", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			adj, err := parseAdjustment(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseAdjustment(%q) = %+v, want error", tt.in, adj)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAdjustment(%q): %v", tt.in, err)
			}
			if adj.Kind != tt.kind || !adj.Value.Equal(decimal.RequireFromString(tt.value)) {
				t.Errorf("parseAdjustment(%q) = %s %s, want %s %s", tt.in, adj.Kind, adj.Value, tt.kind, tt.value)
			}
		})
	}
}

func TestDescribeAdjustment(t *testing.T) {
	tests := []struct {
		adj  core.Adjustment
		want string
	}{
		{core.Adjustment{Kind: core.Percentage, Value: decimal.NewFromInt(-10)}, "-10%"},
		{core.Adjustment{Kind: core.Percentage, Value: decimal.NewFromInt(5)}, "+5%"},
		{core.Adjustment{Kind: core.Absolute, Value: decimal.NewFromInt(500)}, "+500.00"},
		{core.Adjustment{}, "none"},
	}
	for _, tt := range tests {
		if got := describeAdjustment(tt.adj); got != tt.want {
			t.Errorf("describeAdjustment(%+v) = %q, want %q", tt.adj, got, tt.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	if got := formatMoney(decimal.RequireFromString("1234.567"), "usd"); got != "$1,234.57" {
		t.Errorf("formatMoney = %q, want $1,234.57", got)
	}
	if err := validCurrency("eur"); err != nil {
		t.Errorf("validCurrency(eur): %v", err)
	}
	if err := validCurrency("XXQ"); err == nil {
		t.Error("validCurrency(XXQ) should fail")
	}
}

// run executes one rundownctl invocation against a fresh command tree.
func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	c := NewCLIApp("test")
	c.SetOutput(&out)
	if err := c.Execute(context.Background(), args); err != nil {
		t.Fatalf("rundownctl %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func setSQLiteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "rundown.db"))
	t.Setenv("DATA_FIXTURE", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestSeedGenerateAndReadBack(t *testing.T) {
	setSQLiteEnv(t)

	run(t, "seed", filepath.Join("..", "..", "testdata", "portfolio.yaml"))

	var res core.GenerationResult
	if err := json.Unmarshal([]byte(run(t, "generate", "--json")), &res); err != nil {
		t.Fatalf("decode generate output: %v", err)
	}
	// archive has an inverted range and legacy is inactive.
	if res.ProjectsProcessed != 2 || len(res.Errors) != 1 {
		t.Fatalf("processed=%d errors=%v, want 2 and one error", res.ProjectsProcessed, res.Errors)
	}
	if res.Errors[0].ProjectID != "archive" || res.Errors[0].ErrorType != core.ErrorTypeInvalidRange {
		t.Errorf("error = %+v, want archive InvalidRangeError", res.Errors[0])
	}
	// bridge: 12 months x 2 pools, depot: 10 months.
	if res.ProfilesCreated != 34 {
		t.Errorf("profiles_created = %d, want 34", res.ProfilesCreated)
	}

	var points []struct {
		Month   string
		Planned decimal.Decimal
	}
	if err := json.Unmarshal([]byte(run(t, "profiles", "-p", "bridge", "--json")), &points); err != nil {
		t.Fatalf("decode profiles output: %v", err)
	}
	if len(points) != 12 || points[0].Month != "202401" || points[11].Month != "202412" {
		t.Fatalf("unexpected series %+v", points)
	}
	if !points[11].Planned.Equal(decimal.NewFromInt(12000)) {
		t.Errorf("final planned = %s, want 12000", points[11].Planned)
	}

	var entries []core.GenerationLogEntry
	if err := json.Unmarshal([]byte(run(t, "log", "--json")), &entries); err != nil {
		t.Fatalf("decode log output: %v", err)
	}
	if len(entries) != 2 || entries[0].Status != core.StatusCompleted {
		t.Errorf("log entries = %+v, want started and completed", entries)
	}
}

func TestScenarioCommands(t *testing.T) {
	setSQLiteEnv(t)
	run(t, "seed", filepath.Join("..", "..", "testdata", "portfolio.yaml"))

	run(t, "scenario", "create", "-p", "depot", "optimistic", "-10%", "--created-by", "analyst")
	out := run(t, "scenario", "apply", "-p", "depot", "optimistic")
	if !strings.Contains(out, "10 points written") {
		t.Errorf("apply output = %q", out)
	}

	var scenarios []core.Scenario
	if err := json.Unmarshal([]byte(run(t, "scenario", "list", "-p", "depot", "--json")), &scenarios); err != nil {
		t.Fatalf("decode list output: %v", err)
	}
	if len(scenarios) != 1 || scenarios[0].Name != "optimistic" || scenarios[0].CreatedBy != "analyst" {
		t.Errorf("scenarios = %+v", scenarios)
	}

	var points []struct{ Planned decimal.Decimal }
	if err := json.Unmarshal([]byte(run(t, "profiles", "-p", "depot", "-s", "optimistic", "--json")), &points); err != nil {
		t.Fatalf("decode profiles output: %v", err)
	}
	if len(points) != 10 || !points[9].Planned.Equal(decimal.NewFromInt(9000)) {
		t.Errorf("optimistic series = %+v, want 10 points ending at 9000", points)
	}

	run(t, "scenario", "delete", "-p", "depot", "optimistic")
	if err := json.Unmarshal([]byte(run(t, "scenario", "list", "-p", "depot", "--json")), &scenarios); err != nil {
		t.Fatalf("decode list output: %v", err)
	}
	if len(scenarios) != 0 {
		t.Errorf("scenarios after delete = %+v", scenarios)
	}
}

func TestRejectsUnknownCurrencyAndProfileType(t *testing.T) {
	setSQLiteEnv(t)
	for _, args := range [][]string{
		{"generate", "--currency", "XXQ"},
		{"profiles", "-p", "bridge", "-t", "capex"},
	} {
		c := NewCLIApp("test")
		c.SetOutput(&bytes.Buffer{})
		if err := c.Execute(context.Background(), args); err == nil {
			t.Errorf("rundownctl %s should fail", strings.Join(args, " "))
		}
	}
}
