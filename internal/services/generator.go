package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rundown/internal/core"
	"rundown/internal/lock"
	"rundown/internal/ports"
	"rundown/internal/rundown"
)

// GeneratorConfig holds configuration for the generator
type GeneratorConfig struct {
	// Concurrency bounds how many projects a batch processes at once (default: 4)
	Concurrency int

	// Options is passed to the rundown pipeline for every project
	Options rundown.Options

	// Now supplies the current time; the current month is derived from it in UTC
	Now func() time.Time
}

// DefaultGeneratorConfig returns sensible defaults
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Concurrency: 4,
		Options:     rundown.DefaultOptions(),
		Now:         time.Now,
	}
}

// Outcome is the result of regenerating one project and scenario.
type Outcome struct {
	ProfilesCreated int
	Flagged         bool
}

// Generator runs the rundown pipeline over projects and persists the baseline.
type Generator struct {
	projects ports.ProjectReader
	events   ports.EventReader
	profiles ports.ProfileStore
	log      ports.GenerationLog
	locker   lock.Locker
	cfg      GeneratorConfig

	publisher ports.ProfilePublisher

	hooksMu sync.RWMutex
	hooks   []func(projectID, scenario string)
}

// NewGenerator creates a generator over store. A nil locker serializes in process.
func NewGenerator(store ports.Store, locker lock.Locker, cfg GeneratorConfig) *Generator {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{
		projects: store,
		events:   store,
		profiles: store,
		log:      store,
		locker:   locker,
		cfg:      cfg,
	}
}

// SetPublisher registers a sink that receives every freshly written baseline.
func (g *Generator) SetPublisher(p ports.ProfilePublisher) {
	g.publisher = p
}

// OnRegenerated registers fn to run after a project's points for a scenario are replaced.
func (g *Generator) OnRegenerated(fn func(projectID, scenario string)) {
	g.hooksMu.Lock()
	defer g.hooksMu.Unlock()
	g.hooks = append(g.hooks, fn)
}

func (g *Generator) currentMonth() core.Month {
	return core.MonthOf(g.cfg.Now().UTC())
}

// Generate regenerates the baseline of projectID, or of every active project
// when projectID is empty. Per-project failures are reported in the result; the
// returned error is set only when the project list itself cannot be read.
func (g *Generator) Generate(ctx context.Context, projectID string) (core.GenerationResult, error) {
	start := time.Now()
	res := core.GenerationResult{
		ExecutionID:     uuid.NewString(),
		Errors:          []core.ProjectError{},
		FlaggedProjects: []string{},
	}

	var scope *string
	if projectID != "" {
		scope = &projectID
	}
	g.appendLog(ctx, core.GenerationLogEntry{
		ExecutionID: res.ExecutionID,
		ProjectID:   scope,
		Status:      core.StatusStarted,
		Message:     "generation started",
	})

	var projects []core.Project
	if projectID != "" {
		p, err := g.projects.GetProject(ctx, projectID)
		if err != nil {
			res.Errors = append(res.Errors, projectError(core.Project{ID: projectID}, err))
			logProjectFailure(ctx, res.ExecutionID, core.Project{ID: projectID}, err)
		} else {
			projects = []core.Project{p}
		}
	} else {
		list, err := g.projects.ListActiveProjects(ctx)
		if err != nil {
			res.ExecutionTimeMs = time.Since(start).Milliseconds()
			g.appendLog(ctx, g.finalEntry(res, scope, core.StatusFailed, "list active projects: "+err.Error()))
			return res, fmt.Errorf("list active projects: %w", err)
		}
		projects = list
	}

	slog.InfoContext(ctx, "Generating rundown profiles",
		"execution_id", res.ExecutionID,
		"projects", len(projects),
		"current_month", g.currentMonth().String())

	type projectResult struct {
		outcome Outcome
		err     error
	}
	results := make([]projectResult, len(projects))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for i, p := range projects {
		eg.Go(func() error {
			out, err := g.Regenerate(egCtx, p, core.BaselineScenario, core.Adjustment{})
			results[i] = projectResult{outcome: out, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	for i, p := range projects {
		r := results[i]
		if r.err != nil {
			res.Errors = append(res.Errors, projectError(p, r.err))
			logProjectFailure(ctx, res.ExecutionID, p, r.err)
			continue
		}
		res.ProjectsProcessed++
		res.ProfilesCreated += r.outcome.ProfilesCreated
		if r.outcome.Flagged {
			res.FlaggedProjects = append(res.FlaggedProjects, p.ID)
		}
	}
	res.ExecutionTimeMs = time.Since(start).Milliseconds()

	status, msg := core.StatusCompleted, "generation completed"
	if res.HasPersistenceErrors() {
		status, msg = core.StatusFailed, "generation finished with persistence errors"
	}
	g.appendLog(ctx, g.finalEntry(res, scope, status, msg))

	slog.InfoContext(ctx, "Rundown generation complete",
		"execution_id", res.ExecutionID,
		"status", status,
		"projects_processed", res.ProjectsProcessed,
		"profiles_created", res.ProfilesCreated,
		"errors", len(res.Errors),
		"flagged", len(res.FlaggedProjects),
		"duration_ms", res.ExecutionTimeMs)

	return res, nil
}

// Regenerate builds one scenario of one project and replaces its stored points.
// Runs for the same project are serialized through the locker.
func (g *Generator) Regenerate(ctx context.Context, project core.Project, scenario string, adj core.Adjustment) (Outcome, error) {
	unlock, err := g.locker.Lock(ctx, project.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock project %s: %w", project.ID, err)
	}
	defer unlock()

	events, err := g.events.GetEventsForProject(ctx, project.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("read events: %w", err)
	}

	series, err := rundown.Build(rundown.Input{
		Project:    project,
		Events:     events,
		Scenario:   scenario,
		Adjustment: adj,
		Current:    g.currentMonth(),
	}, g.cfg.Options)
	if err != nil {
		return Outcome{}, err
	}

	points := rundown.Flatten(series)
	if err := g.profiles.ReplaceProfiles(ctx, project.ID, scenario, points); err != nil {
		return Outcome{}, &core.PersistenceError{Op: "replace profiles", Err: err}
	}

	g.hooksMu.RLock()
	hooks := g.hooks
	g.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(project.ID, scenario)
	}

	if g.publisher != nil && scenario == core.BaselineScenario {
		if err := g.publisher.PublishProfiles(ctx, project, points); err != nil {
			slog.WarnContext(ctx, "Failed to publish profiles",
				"project_id", project.ID,
				"error", err)
		}
	}

	return Outcome{ProfilesCreated: len(points), Flagged: rundown.AnyFlagged(series)}, nil
}

func (g *Generator) finalEntry(res core.GenerationResult, scope *string, status core.GenerationStatus, msg string) core.GenerationLogEntry {
	return core.GenerationLogEntry{
		ExecutionID:       res.ExecutionID,
		ProjectID:         scope,
		Status:            status,
		ProjectsProcessed: res.ProjectsProcessed,
		ProfilesCreated:   res.ProfilesCreated,
		Errors:            len(res.Errors),
		DurationMs:        res.ExecutionTimeMs,
		Message:           msg,
	}
}

// appendLog writes a log entry; the run continues if the audit write fails.
func (g *Generator) appendLog(ctx context.Context, e core.GenerationLogEntry) {
	e.CreatedAt = g.cfg.Now().UTC()
	if err := g.log.AppendGenerationLog(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to append generation log",
			"execution_id", e.ExecutionID,
			"status", e.Status,
			"error", err)
	}
}

func projectError(p core.Project, err error) core.ProjectError {
	return core.ProjectError{
		ProjectID:   p.ID,
		ProjectName: p.Name,
		ErrorType:   core.ErrorType(err),
		Message:     err.Error(),
	}
}

func logProjectFailure(ctx context.Context, executionID string, p core.Project, err error) {
	var rangeErr *core.InvalidRangeError
	if errors.As(err, &rangeErr) {
		slog.WarnContext(ctx, "Skipping project without a valid date range",
			"execution_id", executionID,
			"project_id", p.ID,
			"reason", rangeErr.Reason)
		return
	}
	slog.ErrorContext(ctx, "Failed to generate project profiles",
		"execution_id", executionID,
		"project_id", p.ID,
		"error_type", core.ErrorType(err),
		"error", err)
}
