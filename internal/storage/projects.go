package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"rundown/internal/core"
	"rundown/internal/fixture"
)

var projectColumns = []string{
	"id", "name", "CAST(budget AS TEXT)", "CAST(contingency AS TEXT)",
	"CAST(start_date AS TEXT)", "CAST(end_date AS TEXT)", "active",
}

// ListActiveProjects implements ports.ProjectReader.
func (s *SQLStore) ListActiveProjects(ctx context.Context) ([]core.Project, error) {
	query, args, err := s.sb.Select(projectColumns...).
		From("projects").
		Where(sq.Eq{"active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active projects: %w", err)
	}
	defer rows.Close()

	var projects []core.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject implements ports.ProjectReader.
func (s *SQLStore) GetProject(ctx context.Context, id string) (core.Project, error) {
	query, args, err := s.sb.Select(projectColumns...).
		From("projects").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return core.Project{}, fmt.Errorf("build query: %w", err)
	}

	p, err := scanProject(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, fmt.Errorf("%w: %s", core.ErrProjectNotFound, id)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// UpsertProject inserts a project or overwrites its attributes.
func (s *SQLStore) UpsertProject(ctx context.Context, p core.Project) error {
	return s.upsertProject(ctx, s.db, p)
}

func (s *SQLStore) upsertProject(ctx context.Context, db execer, p core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	var contingency any
	if p.Contingency.Valid {
		contingency = core.FormatAmount(p.Contingency.Decimal)
	}

	b := s.sb.Insert("projects").
		Columns("id", "name", "budget", "contingency", "start_date", "end_date", "active").
		Values(p.ID, p.Name, core.FormatAmount(p.Budget), contingency, dateArg(p.StartDate), dateArg(p.EndDate), p.Active).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			budget = excluded.budget,
			contingency = excluded.contingency,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			active = excluded.active`)
	if _, err := execBuilder(ctx, db, b); err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	return nil
}

// GetEventsForProject implements ports.EventReader. Events come back in posting order.
func (s *SQLStore) GetEventsForProject(ctx context.Context, projectID string) ([]core.FinancialEvent, error) {
	query, args, err := s.sb.Select(
		"id", "project_id", "CAST(amount AS TEXT)", "CAST(posting_date AS TEXT)", "kind", "pool", "CAST(payload AS TEXT)",
	).
		From("financial_events").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("posting_date", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get events for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var events []core.FinancialEvent
	for rows.Next() {
		var (
			e              core.FinancialEvent
			amount, posted string
			kind, pool     string
			payload        sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &amount, &posted, &kind, &pool, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, &core.AggregationError{EventID: e.ID, Reason: fmt.Sprintf("unparseable amount %q", amount), Err: err}
		}
		if e.PostingDate, err = parseDBDate(posted); err != nil {
			return nil, &core.AggregationError{EventID: e.ID, Reason: fmt.Sprintf("unparseable posting date %q", posted), Err: err}
		}
		e.Kind = core.EventKind(kind)
		e.Pool = core.ProfileType(pool)
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpsertEvent inserts a financial event or overwrites it by id.
func (s *SQLStore) UpsertEvent(ctx context.Context, e core.FinancialEvent) error {
	return s.upsertEvent(ctx, s.db, e)
}

func (s *SQLStore) upsertEvent(ctx context.Context, db execer, e core.FinancialEvent) error {
	if e.ID == "" || e.ProjectID == "" {
		return fmt.Errorf("event requires id and project id")
	}
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}

	b := s.sb.Insert("financial_events").
		Columns("id", "project_id", "amount", "posting_date", "kind", "pool", "payload").
		Values(e.ID, e.ProjectID, core.FormatAmount(e.Amount), e.PostingDate.Format(time.DateOnly), string(e.Kind), string(e.Pool), payload).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			project_id = excluded.project_id,
			amount = excluded.amount,
			posting_date = excluded.posting_date,
			kind = excluded.kind,
			pool = excluded.pool,
			payload = excluded.payload`)
	if _, err := execBuilder(ctx, db, b); err != nil {
		return fmt.Errorf("upsert event %s: %w", e.ID, err)
	}
	return nil
}

// DeleteEvent removes a financial event. Deleting an unknown id is not an error.
func (s *SQLStore) DeleteEvent(ctx context.Context, id string) error {
	if _, err := execBuilder(ctx, s.db, s.sb.Delete("financial_events").Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// Seed loads fixture projects and events in one transaction.
func (s *SQLStore) Seed(ctx context.Context, d *fixture.Data) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range d.Projects {
			if err := s.upsertProject(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, e := range d.Events {
			if err := s.upsertEvent(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	slog.InfoContext(ctx, "Database seeded",
		"projects", len(d.Projects),
		"events", len(d.Events))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (core.Project, error) {
	var (
		p                  core.Project
		budget             string
		contingency        sql.NullString
		startDate, endDate sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &budget, &contingency, &startDate, &endDate, &p.Active); err != nil {
		return core.Project{}, err
	}

	// A row that does not decode is still returned so the caller can report it
	// against the project instead of failing the whole listing.
	var err error
	if p.Budget, err = decimal.NewFromString(budget); err != nil {
		p.Invalid = fmt.Errorf("%w: budget %q", core.ErrInvalidProject, budget)
		return p, nil
	}
	if contingency.Valid {
		c, err := decimal.NewFromString(contingency.String)
		if err != nil {
			p.Invalid = fmt.Errorf("%w: contingency %q", core.ErrInvalidProject, contingency.String)
			return p, nil
		}
		p.Contingency = decimal.NewNullDecimal(c)
	}
	if p.StartDate, err = nullDate(startDate); err != nil {
		p.Invalid = &core.InvalidRangeError{ProjectID: p.ID, Reason: fmt.Sprintf("unparseable start date %q", startDate.String)}
		return p, nil
	}
	if p.EndDate, err = nullDate(endDate); err != nil {
		p.Invalid = &core.InvalidRangeError{ProjectID: p.ID, Reason: fmt.Sprintf("unparseable end date %q", endDate.String)}
		return p, nil
	}
	return p, nil
}

func dateArg(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(time.DateOnly)
}

func nullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseDBDate(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseDBDate reads a DATE column rendered as text; drivers may append a time part.
func parseDBDate(s string) (time.Time, error) {
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	return time.Parse(time.DateOnly, s)
}
