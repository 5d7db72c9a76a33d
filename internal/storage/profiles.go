package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

// profileBatch bounds the rows per INSERT so large series stay under driver parameter limits.
const profileBatch = 200

// ReplaceProfiles implements ports.ProfileStore. The swap runs in one
// transaction; on postgres the project is also serialized with an advisory lock.
func (s *SQLStore) ReplaceProfiles(ctx context.Context, projectID, scenario string, points []core.ProfilePoint) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if s.dialect == Postgres {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", projectID); err != nil {
				return fmt.Errorf("acquire advisory lock for %s: %w", projectID, err)
			}
		}

		del := s.sb.Delete("rundown_profiles").
			Where(sq.Eq{"project_id": projectID, "scenario": scenario})
		if _, err := execBuilder(ctx, tx, del); err != nil {
			return fmt.Errorf("delete stale profiles: %w", err)
		}

		for start := 0; start < len(points); start += profileBatch {
			end := min(start+profileBatch, len(points))
			if err := s.insertProfiles(ctx, tx, projectID, scenario, points[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) insertProfiles(ctx context.Context, tx *sql.Tx, projectID, scenario string, points []core.ProfilePoint) error {
	b := s.sb.Insert("rundown_profiles").
		Columns("project_id", "month", "profile_type", "scenario", "planned_value", "actual_value", "predicted_value")
	for _, p := range points {
		if p.ProjectID != projectID || p.Scenario != scenario {
			return fmt.Errorf("point %s/%s/%s does not belong to series %s/%s", p.ProjectID, p.Month, p.Scenario, projectID, scenario)
		}
		var predicted any
		if p.Predicted.Valid {
			predicted = core.FormatAmount(p.Predicted.Decimal)
		}
		b = b.Values(p.ProjectID, p.Month.String(), string(p.ProfileType), p.Scenario,
			core.FormatAmount(p.Planned), core.FormatAmount(p.Actual), predicted)
	}
	b = b.Suffix(`ON CONFLICT (project_id, month, profile_type, scenario) DO UPDATE SET
		planned_value = excluded.planned_value,
		actual_value = excluded.actual_value,
		predicted_value = excluded.predicted_value`)

	if _, err := execBuilder(ctx, tx, b); err != nil {
		return fmt.Errorf("insert profiles: %w", err)
	}
	return nil
}

// GetProfiles implements ports.ProfileStore.
func (s *SQLStore) GetProfiles(ctx context.Context, projectID string, profileType core.ProfileType, scenario string) ([]core.ProfilePoint, error) {
	query, args, err := s.sb.Select(
		"month", "CAST(planned_value AS TEXT)", "CAST(actual_value AS TEXT)", "CAST(predicted_value AS TEXT)",
	).
		From("rundown_profiles").
		Where(sq.Eq{"project_id": projectID, "profile_type": string(profileType), "scenario": scenario}).
		OrderBy("month").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get profiles for %s: %w", projectID, err)
	}
	defer rows.Close()

	var points []core.ProfilePoint
	for rows.Next() {
		var (
			month, planned, actual string
			predicted              sql.NullString
		)
		if err := rows.Scan(&month, &planned, &actual, &predicted); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}

		p := core.ProfilePoint{ProjectID: projectID, ProfileType: profileType, Scenario: scenario}
		if p.Month, err = core.ParseMonth(month); err != nil {
			return nil, err
		}
		if p.Planned, err = decimal.NewFromString(planned); err != nil {
			return nil, fmt.Errorf("profile %s planned value: %w", month, err)
		}
		if p.Actual, err = decimal.NewFromString(actual); err != nil {
			return nil, fmt.Errorf("profile %s actual value: %w", month, err)
		}
		if predicted.Valid {
			v, err := decimal.NewFromString(predicted.String)
			if err != nil {
				return nil, fmt.Errorf("profile %s predicted value: %w", month, err)
			}
			p.Predicted = decimal.NewNullDecimal(v)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// DeleteProfiles implements ports.ProfileStore.
func (s *SQLStore) DeleteProfiles(ctx context.Context, projectID, scenario string) error {
	del := s.sb.Delete("rundown_profiles").
		Where(sq.Eq{"project_id": projectID, "scenario": scenario})
	if _, err := execBuilder(ctx, s.db, del); err != nil {
		return fmt.Errorf("delete profiles for %s/%s: %w", projectID, scenario, err)
	}
	return nil
}
