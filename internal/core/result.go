package core

// ProjectError is one per-project failure recorded during a generation run.
type ProjectError struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name,omitempty"`
	ErrorType   string `json:"error_type"`
	Message     string `json:"message"`
}

// GenerationResult is the report returned by a generation run.
type GenerationResult struct {
	ExecutionID       string         `json:"execution_id"`
	ProjectsProcessed int            `json:"projects_processed"`
	ProfilesCreated   int            `json:"profiles_created"`
	Errors            []ProjectError `json:"errors"`
	ExecutionTimeMs   int64          `json:"execution_time_ms"`
	// FlaggedProjects lists projects whose forecast overshoots the plan.
	FlaggedProjects []string `json:"flagged_projects"`
}

// HasPersistenceErrors reports whether any project failed to persist.
func (r GenerationResult) HasPersistenceErrors() bool {
	for _, e := range r.Errors {
		if e.ErrorType == ErrorTypePersistence {
			return true
		}
	}
	return false
}
