// Package memory is an in-process implementation of ports.Store, used by the
// memory backend and as the fake behind service and HTTP tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"rundown/internal/core"
	"rundown/internal/fixture"
)

type profileKey struct {
	projectID string
	scenario  string
}

type Store struct {
	mu        sync.Mutex
	projects  map[string]core.Project
	order     []string // project ids in insertion order
	events    map[string][]core.FinancialEvent
	profiles  map[profileKey][]core.ProfilePoint
	scenarios map[string][]core.Scenario
	log       []core.GenerationLogEntry

	// FailReplace, when non-nil, is returned by ReplaceProfiles for the given project id.
	FailReplace func(projectID string) error
}

func New() *Store {
	return &Store{
		projects:  map[string]core.Project{},
		events:    map[string][]core.FinancialEvent{},
		profiles:  map[profileKey][]core.ProfilePoint{},
		scenarios: map[string][]core.Scenario{},
	}
}

// NewFromFixture seeds a store from a decoded fixture.
func NewFromFixture(d *fixture.Data) *Store {
	s := New()
	for _, p := range d.Projects {
		s.PutProject(p)
	}
	for _, e := range d.Events {
		s.AddEvent(e)
	}
	return s
}

// PutProject inserts or replaces a project.
func (s *Store) PutProject(p core.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.projects[p.ID] = p
}

// RemoveProject deletes a project and cascades to everything the engine owns for it.
func (s *Store) RemoveProject(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	delete(s.events, id)
	delete(s.scenarios, id)
	for k := range s.profiles {
		if k.projectID == id {
			delete(s.profiles, k)
		}
	}
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
}

func (s *Store) AddEvent(e core.FinancialEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ProjectID] = append(s.events[e.ProjectID], e)
}

func (s *Store) ListActiveProjects(_ context.Context) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Project
	for _, id := range s.order {
		if p := s.projects[id]; p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GetProject(_ context.Context, id string) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return core.Project{}, fmt.Errorf("%w: %s", core.ErrProjectNotFound, id)
	}
	return p, nil
}

func (s *Store) GetEventsForProject(_ context.Context, projectID string) ([]core.FinancialEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.FinancialEvent(nil), s.events[projectID]...), nil
}

// ReplaceProfiles swaps the whole (project, scenario) set under the store lock.
func (s *Store) ReplaceProfiles(_ context.Context, projectID, scenario string, points []core.ProfilePoint) error {
	if s.FailReplace != nil {
		if err := s.FailReplace(projectID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrProjectNotFound, projectID)
	}
	s.profiles[profileKey{projectID, scenario}] = append([]core.ProfilePoint(nil), points...)
	return nil
}

func (s *Store) GetProfiles(_ context.Context, projectID string, profileType core.ProfileType, scenario string) ([]core.ProfilePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ProfilePoint
	for _, p := range s.profiles[profileKey{projectID, scenario}] {
		if p.ProfileType == profileType {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

func (s *Store) DeleteProfiles(_ context.Context, projectID, scenario string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, profileKey{projectID, scenario})
	return nil
}

func (s *Store) CreateScenario(_ context.Context, sc core.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[sc.ProjectID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrProjectNotFound, sc.ProjectID)
	}
	if s.findScenario(sc.ProjectID, sc.Name) >= 0 {
		return &core.DuplicateScenarioError{ProjectID: sc.ProjectID, Name: sc.Name}
	}
	s.scenarios[sc.ProjectID] = append(s.scenarios[sc.ProjectID], sc)
	return nil
}

func (s *Store) GetScenario(_ context.Context, projectID, name string) (core.Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findScenario(projectID, name)
	if i < 0 {
		return core.Scenario{}, fmt.Errorf("%w: %s/%s", core.ErrScenarioNotFound, projectID, name)
	}
	return s.scenarios[projectID][i], nil
}

func (s *Store) ListScenarios(_ context.Context, projectID string) ([]core.Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Scenario(nil), s.scenarios[projectID]...)
	// Newest first; insertion order breaks ties so equal timestamps stay stable.
	slices.Reverse(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateScenario(_ context.Context, sc core.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findScenario(sc.ProjectID, sc.Name)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", core.ErrScenarioNotFound, sc.ProjectID, sc.Name)
	}
	cur := &s.scenarios[sc.ProjectID][i]
	cur.Adjustment = sc.Adjustment
	cur.UpdatedAt = sc.UpdatedAt
	return nil
}

func (s *Store) DeleteScenario(_ context.Context, projectID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findScenario(projectID, name)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", core.ErrScenarioNotFound, projectID, name)
	}
	s.scenarios[projectID] = slices.Delete(s.scenarios[projectID], i, i+1)
	delete(s.profiles, profileKey{projectID, name})
	return nil
}

func (s *Store) AppendGenerationLog(_ context.Context, e core.GenerationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, e)
	return nil
}

func (s *Store) ListGenerationLog(_ context.Context, executionID string, limit int) ([]core.GenerationLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.GenerationLogEntry
	for i := len(s.log) - 1; i >= 0; i-- {
		e := s.log[i]
		if executionID != "" && e.ExecutionID != executionID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// findScenario must be called with mu held.
func (s *Store) findScenario(projectID, name string) int {
	name = strings.TrimSpace(name)
	for i, sc := range s.scenarios[projectID] {
		if sc.Name == name {
			return i
		}
	}
	return -1
}
