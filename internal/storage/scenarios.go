package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

var scenarioColumns = []string{
	"project_id", "name", "adjustment_kind", "CAST(adjustment_value AS TEXT)", "created_by", "created_at", "updated_at",
}

// CreateScenario implements ports.ScenarioStore.
func (s *SQLStore) CreateScenario(ctx context.Context, sc core.Scenario) error {
	b := s.sb.Insert("rundown_scenarios").
		Columns("project_id", "name", "adjustment_kind", "adjustment_value", "created_by", "created_at", "updated_at").
		Values(sc.ProjectID, sc.Name, string(sc.Adjustment.Kind), sc.Adjustment.Value.String(), sc.CreatedBy,
			s.dialect.timeArg(sc.CreatedAt), s.dialect.timeArg(sc.UpdatedAt)).
		Suffix("ON CONFLICT (project_id, name) DO NOTHING")

	res, err := execBuilder(ctx, s.db, b)
	if err != nil {
		return fmt.Errorf("create scenario %s: %w", sc.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create scenario %s: %w", sc.Name, err)
	}
	if n == 0 {
		return &core.DuplicateScenarioError{ProjectID: sc.ProjectID, Name: sc.Name}
	}
	return nil
}

// GetScenario implements ports.ScenarioStore.
func (s *SQLStore) GetScenario(ctx context.Context, projectID, name string) (core.Scenario, error) {
	query, args, err := s.sb.Select(scenarioColumns...).
		From("rundown_scenarios").
		Where(sq.Eq{"project_id": projectID, "name": name}).
		ToSql()
	if err != nil {
		return core.Scenario{}, fmt.Errorf("build query: %w", err)
	}

	sc, err := scanScenario(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Scenario{}, fmt.Errorf("%w: %s/%s", core.ErrScenarioNotFound, projectID, name)
	}
	if err != nil {
		return core.Scenario{}, fmt.Errorf("get scenario %s: %w", name, err)
	}
	return sc, nil
}

// ListScenarios implements ports.ScenarioStore.
func (s *SQLStore) ListScenarios(ctx context.Context, projectID string) ([]core.Scenario, error) {
	query, args, err := s.sb.Select(scenarioColumns...).
		From("rundown_scenarios").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("created_at DESC", "name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scenarios for %s: %w", projectID, err)
	}
	defer rows.Close()

	var scenarios []core.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, rows.Err()
}

// UpdateScenario implements ports.ScenarioStore.
func (s *SQLStore) UpdateScenario(ctx context.Context, sc core.Scenario) error {
	b := s.sb.Update("rundown_scenarios").
		Set("adjustment_kind", string(sc.Adjustment.Kind)).
		Set("adjustment_value", sc.Adjustment.Value.String()).
		Set("updated_at", s.dialect.timeArg(sc.UpdatedAt)).
		Where(sq.Eq{"project_id": sc.ProjectID, "name": sc.Name})
	return s.expectOne(ctx, s.db, b, sc.ProjectID, sc.Name, "update")
}

// DeleteScenario implements ports.ScenarioStore. The scenario's profiles go with it.
func (s *SQLStore) DeleteScenario(ctx context.Context, projectID, name string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		profiles := s.sb.Delete("rundown_profiles").
			Where(sq.Eq{"project_id": projectID, "scenario": name})
		if _, err := execBuilder(ctx, tx, profiles); err != nil {
			return fmt.Errorf("delete profiles for scenario %s: %w", name, err)
		}
		b := s.sb.Delete("rundown_scenarios").
			Where(sq.Eq{"project_id": projectID, "name": name})
		return s.expectOne(ctx, tx, b, projectID, name, "delete")
	})
}

func (s *SQLStore) expectOne(ctx context.Context, db execer, b sq.Sqlizer, projectID, name, op string) error {
	res, err := execBuilder(ctx, db, b)
	if err != nil {
		return fmt.Errorf("%s scenario %s: %w", op, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s scenario %s: %w", op, name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", core.ErrScenarioNotFound, projectID, name)
	}
	return nil
}

func scanScenario(row rowScanner) (core.Scenario, error) {
	var (
		sc                   core.Scenario
		kind, value          string
		createdAt, updatedAt dbTime
	)
	if err := row.Scan(&sc.ProjectID, &sc.Name, &kind, &value, &sc.CreatedBy, &createdAt, &updatedAt); err != nil {
		return core.Scenario{}, err
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return core.Scenario{}, fmt.Errorf("scenario %s adjustment value: %w", sc.Name, err)
	}
	sc.Adjustment = core.Adjustment{Kind: core.AdjustmentKind(kind), Value: v}
	sc.CreatedAt = createdAt.Time
	sc.UpdatedAt = updatedAt.Time
	return sc, nil
}
