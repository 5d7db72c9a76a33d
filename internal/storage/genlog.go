package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"rundown/internal/core"
)

// AppendGenerationLog implements ports.GenerationLog.
func (s *SQLStore) AppendGenerationLog(ctx context.Context, e core.GenerationLogEntry) error {
	var projectID any
	if e.ProjectID != nil {
		projectID = *e.ProjectID
	}
	b := s.sb.Insert("rundown_generation_log").
		Columns("execution_id", "project_id", "status", "projects_processed", "profiles_created",
			"errors", "duration_ms", "message", "created_at").
		Values(e.ExecutionID, projectID, string(e.Status), e.ProjectsProcessed, e.ProfilesCreated,
			e.Errors, e.DurationMs, e.Message, s.dialect.timeArg(e.CreatedAt))
	if _, err := execBuilder(ctx, s.db, b); err != nil {
		return fmt.Errorf("append generation log: %w", err)
	}
	return nil
}

// ListGenerationLog implements ports.GenerationLog.
func (s *SQLStore) ListGenerationLog(ctx context.Context, executionID string, limit int) ([]core.GenerationLogEntry, error) {
	b := s.sb.Select("CAST(execution_id AS TEXT)", "project_id", "status", "projects_processed",
		"profiles_created", "errors", "duration_ms", "message", "created_at").
		From("rundown_generation_log").
		OrderBy("id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	if executionID != "" {
		b = b.Where(sq.Eq{"execution_id": executionID})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list generation log: %w", err)
	}
	defer rows.Close()

	var entries []core.GenerationLogEntry
	for rows.Next() {
		var (
			e         core.GenerationLogEntry
			projectID sql.NullString
			status    string
			createdAt dbTime
		)
		if err := rows.Scan(&e.ExecutionID, &projectID, &status, &e.ProjectsProcessed, &e.ProfilesCreated,
			&e.Errors, &e.DurationMs, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan generation log: %w", err)
		}
		if projectID.Valid {
			id := projectID.String
			e.ProjectID = &id
		}
		e.Status = core.GenerationStatus(status)
		e.CreatedAt = createdAt.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
