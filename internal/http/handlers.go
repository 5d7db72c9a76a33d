package http

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rundown/internal/amqp"
	"rundown/internal/core"
	"rundown/internal/export/xlsx"
	"rundown/internal/log"
	"rundown/internal/services"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
)

// ProfilePointResponse is the wire form of one month of a series. Amounts are
// decimal strings.
type ProfilePointResponse struct {
	Month       core.Month       `json:"month"`
	ProfileType core.ProfileType `json:"profile_type"`
	Scenario    string           `json:"scenario"`
	Planned     decimal.Decimal  `json:"planned"`
	Actual      decimal.Decimal  `json:"actual"`
	Predicted   *decimal.Decimal `json:"predicted"`
}

// ProfilesResponse is returned by GET /api/rundown/profiles.
type ProfilesResponse struct {
	ProjectID   string                 `json:"project_id"`
	ProfileType core.ProfileType       `json:"profile_type"`
	Scenario    string                 `json:"scenario"`
	Points      []ProfilePointResponse `json:"points"`
}

// ScenarioResponse is the wire form of core.Scenario.
type ScenarioResponse struct {
	ProjectID  string             `json:"project_id"`
	Name       string             `json:"name"`
	Adjustment AdjustmentResponse `json:"adjustment"`
	CreatedBy  string             `json:"created_by,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

type AdjustmentResponse struct {
	Kind  core.AdjustmentKind `json:"kind"`
	Value decimal.Decimal     `json:"value"`
}

// ApplyResponse reports a scenario regeneration.
type ApplyResponse struct {
	Scenario        ScenarioResponse `json:"scenario"`
	ProfilesCreated int              `json:"profiles_created"`
	Flagged         bool             `json:"flagged"`
}

// GenerationLogResponse is the wire form of core.GenerationLogEntry.
type GenerationLogResponse struct {
	ExecutionID       string                `json:"execution_id"`
	ProjectID         *string               `json:"project_id"`
	Status            core.GenerationStatus `json:"status"`
	ProjectsProcessed int                   `json:"projects_processed"`
	ProfilesCreated   int                   `json:"profiles_created"`
	Errors            int                   `json:"errors"`
	DurationMs        int64                 `json:"duration_ms"`
	Message           string                `json:"message,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

func toPointResponses(points []core.ProfilePoint) []ProfilePointResponse {
	out := make([]ProfilePointResponse, 0, len(points))
	for _, p := range points {
		r := ProfilePointResponse{
			Month:       p.Month,
			ProfileType: p.ProfileType,
			Scenario:    p.Scenario,
			Planned:     p.Planned,
			Actual:      p.Actual,
		}
		if p.Predicted.Valid {
			v := p.Predicted.Decimal
			r.Predicted = &v
		}
		out = append(out, r)
	}
	return out
}

func toScenarioResponse(sc core.Scenario) ScenarioResponse {
	return ScenarioResponse{
		ProjectID:  sc.ProjectID,
		Name:       sc.Name,
		Adjustment: AdjustmentResponse{Kind: sc.Adjustment.Kind, Value: sc.Adjustment.Value},
		CreatedBy:  sc.CreatedBy,
		CreatedAt:  sc.CreatedAt,
		UpdatedAt:  sc.UpdatedAt,
	}
}

func toApplyResponse(res services.ApplyResult) ApplyResponse {
	return ApplyResponse{
		Scenario:        toScenarioResponse(res.Scenario),
		ProfilesCreated: res.ProfilesCreated,
		Flagged:         res.Flagged,
	}
}

// handleGenerate runs a batch, or a single project with ?project_id=.
// Per-project failures are part of the 200 response.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))

	res, err := s.generator.Generate(r.Context(), projectID)
	if err != nil {
		DomainError(r, err, log.OpGenerate).Write(w)
		return
	}
	if res.Errors == nil {
		res.Errors = []core.ProjectError{}
	}
	if res.FlaggedProjects == nil {
		res.FlaggedProjects = []string{}
	}
	NewJSONResponse().JSON(res).Write(w)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	q, err := ParseProfileQuery(r.URL.Query())
	if err != nil {
		DomainError(r, err, log.OpRead).Write(w)
		return
	}

	points, err := s.loadProfiles(r, q)
	if err != nil {
		DomainError(r, err, log.OpRead).Write(w)
		return
	}
	NewJSONResponse().JSON(ProfilesResponse{
		ProjectID:   q.ProjectID,
		ProfileType: q.ProfileType,
		Scenario:    q.Scenario,
		Points:      toPointResponses(points),
	}).Write(w)
}

// loadProfiles serves a series from the cache, falling back to the store. An
// unknown project is a not-found error rather than an empty series.
func (s *Server) loadProfiles(r *http.Request, q ProfileQuery) ([]core.ProfilePoint, error) {
	key := profileCacheKey(q)
	if s.profileCache != nil {
		if points, ok := s.profileCache.Get(key); ok {
			return points, nil
		}
	}

	if _, err := s.store.GetProject(r.Context(), q.ProjectID); err != nil {
		return nil, err
	}
	points, err := s.store.GetProfiles(r.Context(), q.ProjectID, q.ProfileType, q.Scenario)
	if err != nil {
		return nil, err
	}
	if s.profileCache != nil {
		s.profileCache.Set(key, points)
	}
	return points, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	projectID := strings.TrimSpace(query.Get("project_id"))
	if projectID == "" {
		DomainError(r, core.ErrEmptyProjectID, log.OpExport).Write(w)
		return
	}
	scenario := strings.TrimSpace(query.Get("scenario"))
	if scenario == "" {
		scenario = core.BaselineScenario
	}

	project, err := s.store.GetProject(r.Context(), projectID)
	if err != nil {
		DomainError(r, err, log.OpExport).Write(w)
		return
	}
	var points []core.ProfilePoint
	for _, pt := range project.ProfileTypes() {
		series, err := s.store.GetProfiles(r.Context(), projectID, pt, scenario)
		if err != nil {
			DomainError(r, err, log.OpExport).Write(w)
			return
		}
		points = append(points, series...)
	}

	wb := xlsx.Workbook{Project: project, Scenario: scenario, Points: points}
	var buf bytes.Buffer
	if err := xlsx.Write(&buf, wb); err != nil {
		DomainError(r, err, log.OpExport).Write(w)
		return
	}
	NewJSONResponse().
		Header("Content-Disposition", `attachment; filename="`+wb.Filename()+`"`).
		Body(xlsx.ContentType, buf.Bytes()).
		Write(w)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req CreateScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		DomainError(r, err, log.OpCreate).Write(w)
		return
	}

	sc, err := s.scenarios.CreateScenario(r.Context(), req.ProjectID, req.Name, req.Adjustment.toCore(), req.CreatedBy)
	if err != nil {
		DomainError(r, err, log.OpCreate).Write(w)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Scenario created",
		log.FieldProjectID, sc.ProjectID,
		log.FieldScenario, sc.Name)
	NewJSONResponse().Status(http.StatusCreated).JSON(toScenarioResponse(sc)).Write(w)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	list, err := s.scenarios.ListScenarios(r.Context(), projectID)
	if err != nil {
		DomainError(r, err, log.OpList).Write(w)
		return
	}
	out := make([]ScenarioResponse, 0, len(list))
	for _, sc := range list {
		out = append(out, toScenarioResponse(sc))
	}
	NewJSONResponse().JSON(out).Write(w)
}

func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	var req UpdateScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		DomainError(r, err, log.OpUpdate).Write(w)
		return
	}

	res, err := s.scenarios.UpdateScenario(r.Context(), req.ProjectID, req.Name, req.Adjustment.toCore())
	if err != nil {
		DomainError(r, err, log.OpUpdate).Write(w)
		return
	}
	NewJSONResponse().JSON(toApplyResponse(res)).Write(w)
}

func (s *Server) handleApplyScenario(w http.ResponseWriter, r *http.Request) {
	var req ScenarioRefRequest
	if err := decodeJSON(r, &req); err != nil {
		DomainError(r, err, log.OpApply).Write(w)
		return
	}

	res, err := s.scenarios.ApplyScenario(r.Context(), req.ProjectID, req.Name)
	if err != nil {
		DomainError(r, err, log.OpApply).Write(w)
		return
	}
	NewJSONResponse().JSON(toApplyResponse(res)).Write(w)
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	var req ScenarioRefRequest
	if err := decodeJSON(r, &req); err != nil {
		DomainError(r, err, log.OpDelete).Write(w)
		return
	}

	if err := s.scenarios.DeleteScenario(r.Context(), req.ProjectID, req.Name); err != nil {
		DomainError(r, err, log.OpDelete).Write(w)
		return
	}
	s.InvalidateProfiles(req.ProjectID, req.Name)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Scenario deleted",
		log.FieldProjectID, req.ProjectID,
		log.FieldScenario, req.Name)
	w.WriteHeader(http.StatusNoContent)
}

// handleNotification feeds a change notification into the debouncer and
// answers before the regeneration runs.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		ServiceUnavailableError("change notifications are disabled").Write(w)
		return
	}

	var msg amqp.ProjectChangedMessage
	if err := decodeJSON(r, &msg); err != nil {
		DomainError(r, err, log.OpUpdate).Write(w)
		return
	}
	msg.ProjectID = strings.TrimSpace(msg.ProjectID)
	if err := msg.Validate(); err != nil {
		ErrorResponse(http.StatusUnprocessableEntity, err.Error()).Write(w)
		return
	}
	if !s.notifier.Notify(msg.ProjectID) {
		ServiceUnavailableError("change consumer is shutting down").Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusAccepted).JSON(map[string]string{
		"status":     "scheduled",
		"project_id": msg.ProjectID,
	}).Write(w)
}

func (s *Server) handleGenerationLog(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := ParseLimit(query, defaultLogLimit, maxLogLimit)
	if err != nil {
		DomainError(r, err, log.OpList).Write(w)
		return
	}

	entries, err := s.store.ListGenerationLog(r.Context(), strings.TrimSpace(query.Get("execution_id")), limit)
	if err != nil {
		DomainError(r, err, log.OpList).Write(w)
		return
	}
	out := make([]GenerationLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, GenerationLogResponse{
			ExecutionID:       e.ExecutionID,
			ProjectID:         e.ProjectID,
			Status:            e.Status,
			ProjectsProcessed: e.ProjectsProcessed,
			ProfilesCreated:   e.ProfilesCreated,
			Errors:            e.Errors,
			DurationMs:        e.DurationMs,
			Message:           e.Message,
			CreatedAt:         e.CreatedAt,
		})
	}
	NewJSONResponse().JSON(out).Write(w)
}
