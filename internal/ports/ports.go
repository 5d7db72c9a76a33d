package ports

import (
	"context"

	"rundown/internal/core"
)

// Ports for outbound adapters.
type (
	// ProjectReader is the read side of the PPM project store.
	ProjectReader interface {
		ListActiveProjects(ctx context.Context) ([]core.Project, error)
		// GetProject returns core.ErrProjectNotFound for an unknown id.
		GetProject(ctx context.Context, id string) (core.Project, error)
	}

	EventReader interface {
		GetEventsForProject(ctx context.Context, projectID string) ([]core.FinancialEvent, error)
	}

	// ProfileStore persists rundown series keyed by (project, month, profile type, scenario).
	ProfileStore interface {
		// ReplaceProfiles atomically swaps every stored point of (projectID, scenario)
		// for points, across all profile types.
		ReplaceProfiles(ctx context.Context, projectID, scenario string, points []core.ProfilePoint) error
		// GetProfiles returns one series in ascending month order.
		GetProfiles(ctx context.Context, projectID string, profileType core.ProfileType, scenario string) ([]core.ProfilePoint, error)
		DeleteProfiles(ctx context.Context, projectID, scenario string) error
	}

	ScenarioStore interface {
		// CreateScenario returns *core.DuplicateScenarioError when the name is taken.
		CreateScenario(ctx context.Context, s core.Scenario) error
		// GetScenario returns core.ErrScenarioNotFound for an unknown name.
		GetScenario(ctx context.Context, projectID, name string) (core.Scenario, error)
		// ListScenarios returns the project's scenarios newest first.
		ListScenarios(ctx context.Context, projectID string) ([]core.Scenario, error)
		UpdateScenario(ctx context.Context, s core.Scenario) error
		DeleteScenario(ctx context.Context, projectID, name string) error
	}

	// GenerationLog is append-only.
	GenerationLog interface {
		AppendGenerationLog(ctx context.Context, e core.GenerationLogEntry) error
		// ListGenerationLog returns entries newest first. An empty executionID lists
		// across runs, bounded by limit.
		ListGenerationLog(ctx context.Context, executionID string, limit int) ([]core.GenerationLogEntry, error)
	}

	// Store is the full persistence surface a backend provides.
	Store interface {
		ProjectReader
		EventReader
		ProfileStore
		ScenarioStore
		GenerationLog
	}

	// ProfilePublisher pushes a freshly generated baseline to a downstream sink.
	ProfilePublisher interface {
		PublishProfiles(ctx context.Context, project core.Project, points []core.ProfilePoint) error
	}
)
