package rundown

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func months2024() []core.Month {
	ms, err := MonthRange(date(2024, 1, 1), date(2024, 12, 31))
	if err != nil {
		panic(err)
	}
	return ms
}

func assertSeries(t *testing.T, got []decimal.Decimal, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Equal(dec(want[i])) {
			t.Fatalf("index %d = %s, want %s (series %v)", i, got[i], want[i], got)
		}
	}
}

func TestMonthRange(t *testing.T) {
	cases := []struct {
		name       string
		start, end *time.Time
		want       []string
		wantErr    bool
	}{
		{"same month", date(2024, 3, 2), date(2024, 3, 28), []string{"202403"}, false},
		{"across year", date(2023, 11, 30), date(2024, 2, 1), []string{"202311", "202312", "202401", "202402"}, false},
		{"full year", date(2024, 1, 1), date(2024, 12, 31), nil, false},
		{"missing start", nil, date(2024, 1, 1), nil, true},
		{"missing end", date(2024, 1, 1), nil, nil, true},
		{"inverted", date(2024, 6, 1), date(2024, 5, 31), nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MonthRange(tc.start, tc.end)
			if tc.wantErr {
				var rangeErr *core.InvalidRangeError
				if !errors.As(err, &rangeErr) {
					t.Fatalf("expected InvalidRangeError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.want == nil {
				if len(got) != 12 || got[0].String() != "202401" || got[11].String() != "202412" {
					t.Fatalf("unexpected range %v", got)
				}
				return
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i].String() != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestDistribute(t *testing.T) {
	t.Run("twelve equal increments", func(t *testing.T) {
		planned, err := Distribute(months2024(), dec("12000"))
		if err != nil {
			t.Fatal(err)
		}
		assertSeries(t, planned, "1000", "2000", "3000", "4000", "5000", "6000", "7000", "8000", "9000", "10000", "11000", "12000")
	})

	t.Run("remainder absorbed by last month", func(t *testing.T) {
		ms, _ := MonthRange(date(2024, 1, 1), date(2024, 3, 1))
		planned, err := Distribute(ms, dec("100"))
		if err != nil {
			t.Fatal(err)
		}
		assertSeries(t, planned, "33.33", "66.67", "100")
	})

	t.Run("single month", func(t *testing.T) {
		ms, _ := MonthRange(date(2024, 5, 1), date(2024, 5, 20))
		planned, _ := Distribute(ms, dec("42.5"))
		assertSeries(t, planned, "42.5")
	})

	t.Run("zero budget", func(t *testing.T) {
		ms, _ := MonthRange(date(2024, 1, 1), date(2024, 4, 1))
		planned, err := Distribute(ms, decimal.Zero)
		if err != nil {
			t.Fatal(err)
		}
		assertSeries(t, planned, "0", "0", "0", "0")
	})

	t.Run("negative budget", func(t *testing.T) {
		if _, err := Distribute(months2024(), dec("-1")); !errors.Is(err, core.ErrNegativeBudget) {
			t.Fatalf("expected ErrNegativeBudget, got %v", err)
		}
	})

	t.Run("empty months", func(t *testing.T) {
		if _, err := Distribute(nil, dec("1")); !errors.Is(err, ErrNoMonths) {
			t.Fatalf("expected ErrNoMonths, got %v", err)
		}
	})
}

func TestDistributeProperties(t *testing.T) {
	budgets := []string{"0", "0.01", "1", "99.99", "1000", "12345.67", "999999.99"}
	for n := 1; n <= 37; n++ {
		start := date(2023, 1, 1)
		end := date(2023+(n-1)/12, time.Month((n-1)%12+1), 15)
		ms, err := MonthRange(start, end)
		if err != nil {
			t.Fatal(err)
		}
		if len(ms) != n {
			t.Fatalf("months = %d, want %d", len(ms), n)
		}
		for _, b := range budgets {
			total := dec(b)
			planned, err := Distribute(ms, total)
			if err != nil {
				t.Fatal(err)
			}
			if !core.WithinTolerance(planned[n-1], total) {
				t.Fatalf("n=%d budget=%s: final %s", n, b, planned[n-1])
			}
			for i := 1; i < n; i++ {
				if planned[i].LessThan(planned[i-1]) {
					t.Fatalf("n=%d budget=%s: not monotonic at %d: %v", n, b, i, planned)
				}
			}
		}
	}
}

func TestAggregateChanges(t *testing.T) {
	ms := months2024()
	events := []core.FinancialEvent{
		{ID: "e1", Amount: dec("100"), PostingDate: *date(2024, 4, 10), Kind: core.Commitment},
		{ID: "e2", Amount: dec("-40"), PostingDate: *date(2024, 4, 20), Kind: core.Actual},
		{ID: "e3", Amount: dec("5"), PostingDate: *date(2023, 7, 1), Kind: core.Actual},
		{ID: "e4", Amount: dec("7"), PostingDate: *date(2025, 2, 1), Kind: core.Commitment},
	}
	changes, err := AggregateChanges(ms, events)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 12 {
		t.Fatalf("expected an entry per month, got %d", len(changes))
	}
	checks := map[string]string{"202401": "5", "202404": "60", "202412": "7", "202406": "0"}
	for key, want := range checks {
		m, _ := core.ParseMonth(key)
		if !changes[m].Equal(dec(want)) {
			t.Fatalf("%s = %s, want %s", key, changes[m], want)
		}
	}

	t.Run("malformed events", func(t *testing.T) {
		bad := [][]core.FinancialEvent{
			{{ID: "x", Amount: dec("1"), Kind: core.Actual}},
			{{ID: "y", Amount: dec("1"), PostingDate: *date(2024, 1, 1), Kind: "invoice"}},
		}
		for _, evs := range bad {
			_, err := AggregateChanges(ms, evs)
			var aggErr *core.AggregationError
			if !errors.As(err, &aggErr) {
				t.Fatalf("expected AggregationError, got %v", err)
			}
		}
	})
}

func TestReconcile(t *testing.T) {
	ms := months2024()
	planned, _ := Distribute(ms, dec("12000"))

	t.Run("no events follows plan", func(t *testing.T) {
		changes, _ := AggregateChanges(ms, nil)
		actual := Reconcile(ms, planned, changes)
		assertSeries(t, actual, "1000", "2000", "3000", "4000", "5000", "6000", "7000", "8000", "9000", "10000", "11000", "12000")
	})

	t.Run("commitment in april re-plans remainder", func(t *testing.T) {
		changes, _ := AggregateChanges(ms, []core.FinancialEvent{
			{ID: "c1", Amount: dec("3000"), PostingDate: *date(2024, 4, 3), Kind: core.Commitment},
		})
		actual := Reconcile(ms, planned, changes)
		for i := 0; i < 3; i++ {
			if !actual[i].Equal(planned[i]) {
				t.Fatalf("month %d should follow plan: %s vs %s", i, actual[i], planned[i])
			}
		}
		assertSeries(t, actual[3:], "4000", "5000", "6000", "7000", "8000", "9000", "10000", "11000", "12000")
	})

	t.Run("change in final month absorbs remainder", func(t *testing.T) {
		changes, _ := AggregateChanges(ms, []core.FinancialEvent{
			{ID: "c1", Amount: dec("500"), PostingDate: *date(2024, 12, 3), Kind: core.Actual},
		})
		actual := Reconcile(ms, planned, changes)
		if !actual[10].Equal(planned[10]) {
			t.Fatalf("month 11 should follow plan, got %s", actual[10])
		}
		if !actual[11].Equal(dec("12000")) {
			t.Fatalf("final month = %s, want 12000", actual[11])
		}
	})

	t.Run("overspend keeps consumed amount", func(t *testing.T) {
		changes, _ := AggregateChanges(ms, []core.FinancialEvent{
			{ID: "c1", Amount: dec("15000"), PostingDate: *date(2024, 2, 1), Kind: core.Commitment},
		})
		actual := Reconcile(ms, planned, changes)
		for i := 1; i < len(actual); i++ {
			if !actual[i].Equal(dec("15000")) {
				t.Fatalf("month %d = %s, want 15000", i, actual[i])
			}
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		changes, _ := AggregateChanges(ms, []core.FinancialEvent{
			{ID: "c1", Amount: dec("1234.56"), PostingDate: *date(2024, 3, 3), Kind: core.Commitment},
			{ID: "c2", Amount: dec("-200"), PostingDate: *date(2024, 7, 3), Kind: core.Actual},
		})
		a := Reconcile(ms, planned, changes)
		b := Reconcile(ms, planned, changes)
		for i := range a {
			if a[i].String() != b[i].String() {
				t.Fatalf("month %d differs: %s vs %s", i, a[i], b[i])
			}
		}
	})
}

func TestPredict(t *testing.T) {
	ms := months2024()
	actual := make([]decimal.Decimal, len(ms))
	for i, v := range []string{"1000", "2100", "3050", "4200", "5100", "6000"} {
		actual[i] = dec(v)
	}
	current := ms[5]

	predicted := Predict(ms, actual, current, DefaultPredictOptions())
	if len(predicted) != 6 {
		t.Fatalf("expected forecasts for the 6 future months, got %d", len(predicted))
	}
	if _, ok := predicted[current]; ok {
		t.Fatalf("current month must not be forecast")
	}
	seventh := predicted[ms[6]]
	if seventh.Sub(dec("7000")).Abs().GreaterThan(dec("200")) {
		t.Fatalf("7th month forecast = %s, want about 7000", seventh)
	}

	t.Run("insufficient history", func(t *testing.T) {
		got := Predict(ms, actual, ms[1], DefaultPredictOptions())
		if len(got) != 0 {
			t.Fatalf("expected no forecast with two points, got %v", got)
		}
	})

	t.Run("floored at zero", func(t *testing.T) {
		falling := make([]decimal.Decimal, len(ms))
		for i, v := range []string{"3000", "2000", "1000"} {
			falling[i] = dec(v)
		}
		got := Predict(ms, falling, ms[2], DefaultPredictOptions())
		for m, v := range got {
			if v.IsNegative() {
				t.Fatalf("%s forecast negative: %s", m, v)
			}
		}
		if !got[ms[11]].IsZero() {
			t.Fatalf("expected floor at zero, got %s", got[ms[11]])
		}
	})

	t.Run("window uses trailing points", func(t *testing.T) {
		series := make([]decimal.Decimal, len(ms))
		for i := range series {
			series[i] = decimal.NewFromInt(int64(100 * (i + 1)))
		}
		series[0] = dec("90000")
		got := Predict(ms, series, ms[7], PredictOptions{Window: 3, MinPoints: 3})
		if !got[ms[8]].Equal(dec("900")) {
			t.Fatalf("forecast = %s, want 900", got[ms[8]])
		}
	})
}

func TestExceedsPlan(t *testing.T) {
	ten := decimal.NewFromInt(10)
	if ExceedsPlan(dec("1000"), dec("1100"), ten) {
		t.Fatalf("exactly ten percent over should not flag")
	}
	if !ExceedsPlan(dec("1000"), dec("1100.01"), ten) {
		t.Fatalf("more than ten percent over should flag")
	}
}

func TestBuild(t *testing.T) {
	project := core.Project{
		ID:        "p1",
		Name:      "Bridge",
		Budget:    dec("10000"),
		StartDate: date(2024, 1, 1),
		EndDate:   date(2024, 10, 31),
		Active:    true,
	}

	t.Run("baseline", func(t *testing.T) {
		series, err := Build(Input{Project: project, Current: core.MonthOf(*date(2024, 1, 1))}, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if len(series) != 1 || len(series[0].Points) != 10 {
			t.Fatalf("unexpected series %+v", series)
		}
		last := series[0].Points[9]
		if last.Scenario != core.BaselineScenario || !last.Planned.Equal(dec("10000")) {
			t.Fatalf("unexpected final point %+v", last)
		}
	})

	t.Run("optimistic adjustment", func(t *testing.T) {
		series, err := Build(Input{
			Project:    project,
			Scenario:   "optimistic",
			Adjustment: core.Adjustment{Kind: core.Percentage, Value: dec("-10")},
		}, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		last := series[0].Points[9]
		if last.Scenario != "optimistic" || !last.Planned.Equal(dec("9000")) {
			t.Fatalf("unexpected final point %+v", last)
		}
	})

	t.Run("contingency pool", func(t *testing.T) {
		p := project
		p.Contingency = decimal.NewNullDecimal(dec("1000"))
		events := []core.FinancialEvent{
			{ID: "c1", Amount: dec("400"), PostingDate: *date(2024, 2, 1), Kind: core.Actual, Pool: core.Contingency},
		}
		series, err := Build(Input{Project: p, Events: events}, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if len(series) != 2 {
			t.Fatalf("expected two series, got %d", len(series))
		}
		if !series[0].Points[1].Actual.Equal(series[0].Points[1].Planned) {
			t.Fatalf("contingency event leaked into total budget series")
		}
		// 400 consumed, the remaining 600 spread over February..October.
		if !series[1].Points[1].Actual.Equal(dec("466.67")) {
			t.Fatalf("contingency actual = %s", series[1].Points[1].Actual)
		}
	})

	t.Run("flags overshoot", func(t *testing.T) {
		events := []core.FinancialEvent{
			{ID: "a", Amount: dec("3000"), PostingDate: *date(2024, 1, 5), Kind: core.Actual},
			{ID: "b", Amount: dec("3000"), PostingDate: *date(2024, 2, 5), Kind: core.Actual},
			{ID: "c", Amount: dec("3000"), PostingDate: *date(2024, 3, 5), Kind: core.Actual},
		}
		series, err := Build(Input{Project: project, Events: events, Current: core.MonthOf(*date(2024, 3, 1))}, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if !AnyFlagged(series) {
			t.Fatalf("expected overshoot flag")
		}
	})

	t.Run("unknown pool is rejected", func(t *testing.T) {
		events := []core.FinancialEvent{
			{ID: "x1", Amount: dec("500"), PostingDate: *date(2024, 4, 2), Kind: core.Commitment, Pool: "capex"},
		}
		_, err := Build(Input{Project: project, Events: events}, DefaultOptions())
		var aggErr *core.AggregationError
		if !errors.As(err, &aggErr) || aggErr.EventID != "x1" {
			t.Fatalf("expected AggregationError for x1, got %v", err)
		}
	})

	t.Run("contingency event without contingency pool counts against total", func(t *testing.T) {
		events := []core.FinancialEvent{
			{ID: "c1", Amount: dec("3000"), PostingDate: *date(2024, 4, 2), Kind: core.Commitment, Pool: core.Contingency},
		}
		series, err := Build(Input{Project: project, Events: events}, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if len(series) != 1 {
			t.Fatalf("expected one series, got %d", len(series))
		}
		// 3000 consumed, the remaining 7000 spread over April..October.
		if got := series[0].Points[3].Actual; !got.Equal(dec("4000")) {
			t.Fatalf("april actual = %s, want 4000", got)
		}
	})

	t.Run("zero warning threshold flags any overshoot", func(t *testing.T) {
		// Forecast for April is 4060 against a plan of 4000.
		events := []core.FinancialEvent{
			{ID: "a", Amount: dec("100"), PostingDate: *date(2024, 1, 5), Kind: core.Actual},
		}
		in := Input{Project: project, Events: events, Current: core.MonthOf(*date(2024, 3, 1))}

		series, err := Build(in, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if AnyFlagged(series) {
			t.Fatalf("1.5%% overshoot should stay under the default threshold")
		}

		opts := DefaultOptions()
		opts.WarningThreshold = decimal.NewNullDecimal(decimal.Zero)
		series, err = Build(in, opts)
		if err != nil {
			t.Fatal(err)
		}
		if !AnyFlagged(series) {
			t.Fatalf("expected overshoot flag with a zero threshold")
		}
	})

	t.Run("undecodable project is reported", func(t *testing.T) {
		p := project
		p.Invalid = &core.InvalidRangeError{ProjectID: "p1", Reason: "unparseable start date"}
		_, err := Build(Input{Project: p}, DefaultOptions())
		var rangeErr *core.InvalidRangeError
		if !errors.As(err, &rangeErr) {
			t.Fatalf("expected InvalidRangeError, got %v", err)
		}
	})

	t.Run("invalid range carries project id", func(t *testing.T) {
		p := project
		p.StartDate, p.EndDate = date(2024, 6, 1), date(2024, 5, 1)
		_, err := Build(Input{Project: p}, DefaultOptions())
		var rangeErr *core.InvalidRangeError
		if !errors.As(err, &rangeErr) || rangeErr.ProjectID != "p1" {
			t.Fatalf("expected InvalidRangeError for p1, got %v", err)
		}
	})
}
