package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Commitment EventKind = "commitment"
	Actual     EventKind = "actual"
)

const (
	TotalBudget ProfileType = "total_budget"
	Contingency ProfileType = "contingency"
)

const (
	Percentage AdjustmentKind = "percentage"
	Absolute   AdjustmentKind = "absolute"
)

const (
	StatusStarted   GenerationStatus = "started"
	StatusCompleted GenerationStatus = "completed"
	StatusFailed    GenerationStatus = "failed"
)

// BaselineScenario is the implicit scenario written by every generation run.
const BaselineScenario = "baseline"

type (
	EventKind        string
	ProfileType      string
	AdjustmentKind   string
	GenerationStatus string

	// Project is owned by the PPM application; the engine only reads it.
	Project struct {
		ID          string
		Name        string
		Budget      decimal.Decimal
		Contingency decimal.NullDecimal // optional contingency pool
		StartDate   *time.Time
		EndDate     *time.Time
		Active      bool
		// Invalid is set by a store when the row could not be decoded. The
		// project is skipped with this error instead of being generated.
		Invalid error
	}

	// FinancialEvent is a commitment or actual posted against a project.
	// Payload carries the custom fields of the source row and is never inspected.
	FinancialEvent struct {
		ID          string
		ProjectID   string
		Amount      decimal.Decimal
		PostingDate time.Time
		Kind        EventKind
		Pool        ProfileType
		Payload     json.RawMessage
	}

	// ProfilePoint is one month of a rundown series.
	ProfilePoint struct {
		ProjectID   string
		Month       Month
		ProfileType ProfileType
		Scenario    string
		Planned     decimal.Decimal
		Actual      decimal.Decimal
		Predicted   decimal.NullDecimal
	}

	Adjustment struct {
		Kind  AdjustmentKind
		Value decimal.Decimal
	}

	Scenario struct {
		ProjectID  string
		Name       string
		Adjustment Adjustment
		CreatedBy  string
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	GenerationLogEntry struct {
		ExecutionID       string
		ProjectID         *string // nil for batch runs
		Status            GenerationStatus
		ProjectsProcessed int
		ProfilesCreated   int
		Errors            int
		DurationMs        int64
		Message           string
		CreatedAt         time.Time
	}
)

var (
	ErrEmptyProjectID    = errors.New("empty project id")
	ErrEmptyScenarioName = errors.New("empty scenario name")
	ErrNegativeBudget    = errors.New("negative budget")
	ErrInvalidAdjustment = errors.New("invalid adjustment kind")
	ErrInvalidKind       = errors.New("invalid event kind")
	ErrInvalidType       = errors.New("invalid profile type")
)

func (k EventKind) IsValid() bool {
	return k == Commitment || k == Actual
}

func (t ProfileType) IsValid() bool {
	return t == TotalBudget || t == Contingency
}

// PoolOrDefault maps an empty pool to the total budget pool.
func (e FinancialEvent) PoolOrDefault() ProfileType {
	if e.Pool == "" {
		return TotalBudget
	}
	return e.Pool
}

// BudgetFor returns the budget tracked by the given profile type and whether the
// project carries that pool at all.
func (p Project) BudgetFor(t ProfileType) (decimal.Decimal, bool) {
	switch t {
	case TotalBudget:
		return p.Budget, true
	case Contingency:
		if p.Contingency.Valid {
			return p.Contingency.Decimal, true
		}
	}
	return decimal.Zero, false
}

// ProfileTypes lists the series generated for this project.
func (p Project) ProfileTypes() []ProfileType {
	types := []ProfileType{TotalBudget}
	if p.Contingency.Valid {
		types = append(types, Contingency)
	}
	return types
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyProjectID
	}
	if p.Budget.IsNegative() {
		return ErrNegativeBudget
	}
	if p.Contingency.Valid && p.Contingency.Decimal.IsNegative() {
		return ErrNegativeBudget
	}
	return nil
}

func (a Adjustment) Validate() error {
	switch a.Kind {
	case Percentage, Absolute:
		return nil
	default:
		return ErrInvalidAdjustment
	}
}

// Apply returns the adjusted budget, floored at zero. A zero-value adjustment
// leaves the budget unchanged.
func (a Adjustment) Apply(budget decimal.Decimal) decimal.Decimal {
	var out decimal.Decimal
	switch a.Kind {
	case Percentage:
		factor := decimal.NewFromInt(1).Add(a.Value.Div(decimal.NewFromInt(100)))
		out = budget.Mul(factor)
	case Absolute:
		out = budget.Add(a.Value)
	default:
		return budget
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

func (s Scenario) Validate() error {
	if strings.TrimSpace(s.ProjectID) == "" {
		return ErrEmptyProjectID
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return ErrEmptyScenarioName
	}
	if len(name) > 64 {
		return errors.New("scenario name too long (max 64 characters)")
	}
	return s.Adjustment.Validate()
}
