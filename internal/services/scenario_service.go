package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"rundown/internal/core"
	"rundown/internal/lock"
	"rundown/internal/ports"
)

// ScenarioStore is what the scenario service needs from persistence.
type ScenarioStore interface {
	ports.ProjectReader
	ports.ScenarioStore
	ports.ProfileStore
}

// ScenarioService manages named what-if variants of a project's rundown.
// Every operation touches only the named scenario's points.
type ScenarioService struct {
	store     ScenarioStore
	generator *Generator
	locker    lock.Locker
}

// NewScenarioService shares generator's locker so scenario writes and
// regenerations of the same project never interleave.
func NewScenarioService(store ScenarioStore, generator *Generator) *ScenarioService {
	return &ScenarioService{store: store, generator: generator, locker: generator.locker}
}

// ApplyResult reports a scenario regeneration.
type ApplyResult struct {
	Scenario        core.Scenario `json:"-"`
	ProfilesCreated int           `json:"profiles_created"`
	Flagged         bool          `json:"flagged"`
}

// CreateScenario stores a new scenario. The name "baseline" always exists.
func (s *ScenarioService) CreateScenario(ctx context.Context, projectID, name string, adj core.Adjustment, createdBy string) (core.Scenario, error) {
	now := s.generator.cfg.Now().UTC()
	sc := core.Scenario{
		ProjectID:  strings.TrimSpace(projectID),
		Name:       strings.TrimSpace(name),
		Adjustment: adj,
		CreatedBy:  strings.TrimSpace(createdBy),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := sc.Validate(); err != nil {
		return core.Scenario{}, err
	}
	if sc.Name == core.BaselineScenario {
		return core.Scenario{}, &core.DuplicateScenarioError{ProjectID: sc.ProjectID, Name: sc.Name}
	}
	if _, err := s.store.GetProject(ctx, sc.ProjectID); err != nil {
		return core.Scenario{}, err
	}
	if err := s.store.CreateScenario(ctx, sc); err != nil {
		return core.Scenario{}, err
	}

	slog.InfoContext(ctx, "Created scenario",
		"project_id", sc.ProjectID,
		"scenario", sc.Name,
		"adjustment_kind", sc.Adjustment.Kind,
		"adjustment_value", sc.Adjustment.Value.String())
	return sc, nil
}

// ApplyScenario runs the pipeline with the scenario's adjustment and replaces
// the points stored under its name.
func (s *ScenarioService) ApplyScenario(ctx context.Context, projectID, name string) (ApplyResult, error) {
	name = strings.TrimSpace(name)
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return ApplyResult{}, err
	}

	sc := core.Scenario{ProjectID: projectID, Name: core.BaselineScenario}
	if name != core.BaselineScenario {
		if sc, err = s.store.GetScenario(ctx, projectID, name); err != nil {
			return ApplyResult{}, err
		}
	}

	out, err := s.generator.Regenerate(ctx, project, sc.Name, sc.Adjustment)
	if err != nil {
		return ApplyResult{}, err
	}

	slog.InfoContext(ctx, "Applied scenario",
		"project_id", projectID,
		"scenario", sc.Name,
		"profiles_created", out.ProfilesCreated,
		"flagged", out.Flagged)
	return ApplyResult{Scenario: sc, ProfilesCreated: out.ProfilesCreated, Flagged: out.Flagged}, nil
}

// ListScenarios returns the project's scenarios newest first.
func (s *ScenarioService) ListScenarios(ctx context.Context, projectID string) ([]core.Scenario, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, core.ErrEmptyProjectID
	}
	return s.store.ListScenarios(ctx, projectID)
}

// UpdateScenario changes the adjustment and re-applies the scenario.
func (s *ScenarioService) UpdateScenario(ctx context.Context, projectID, name string, adj core.Adjustment) (ApplyResult, error) {
	name = strings.TrimSpace(name)
	if name == core.BaselineScenario {
		return ApplyResult{}, fmt.Errorf("update %s: %w", name, core.ErrReservedScenario)
	}
	if err := adj.Validate(); err != nil {
		return ApplyResult{}, err
	}

	sc, err := s.store.GetScenario(ctx, projectID, name)
	if err != nil {
		return ApplyResult{}, err
	}
	sc.Adjustment = adj
	sc.UpdatedAt = s.generator.cfg.Now().UTC()
	if err := s.store.UpdateScenario(ctx, sc); err != nil {
		return ApplyResult{}, err
	}
	return s.ApplyScenario(ctx, projectID, name)
}

// DeleteScenario removes a scenario together with its stored points.
func (s *ScenarioService) DeleteScenario(ctx context.Context, projectID, name string) error {
	name = strings.TrimSpace(name)
	if name == core.BaselineScenario {
		return fmt.Errorf("delete %s: %w", name, core.ErrReservedScenario)
	}
	if _, err := s.store.GetScenario(ctx, projectID, name); err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, projectID)
	if err != nil {
		return fmt.Errorf("lock project %s: %w", projectID, err)
	}
	defer unlock()

	if err := s.store.DeleteProfiles(ctx, projectID, name); err != nil {
		return &core.PersistenceError{Op: "delete profiles", Err: err}
	}
	if err := s.store.DeleteScenario(ctx, projectID, name); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Deleted scenario", "project_id", projectID, "scenario", name)
	return nil
}
