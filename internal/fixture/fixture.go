// Package fixture loads projects and financial events from a seed file. The
// memory backend boots from one and rundownctl seed copies one into a SQL store.
package fixture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"rundown/internal/core"
)

// File is the on-disk shape of a fixture. Amounts and dates are strings so every
// format decodes them the same way.
type File struct {
	Projects []Project `json:"projects" yaml:"projects" toml:"projects"`
	Events   []Event   `json:"events" yaml:"events" toml:"events"`
}

type Project struct {
	ID          string `json:"id" yaml:"id" toml:"id"`
	Name        string `json:"name" yaml:"name" toml:"name"`
	Budget      string `json:"budget" yaml:"budget" toml:"budget"`
	Contingency string `json:"contingency,omitempty" yaml:"contingency,omitempty" toml:"contingency"`
	StartDate   string `json:"start_date,omitempty" yaml:"start_date,omitempty" toml:"start_date"`
	EndDate     string `json:"end_date,omitempty" yaml:"end_date,omitempty" toml:"end_date"`
	Inactive    bool   `json:"inactive,omitempty" yaml:"inactive,omitempty" toml:"inactive"`
}

type Event struct {
	ID          string         `json:"id" yaml:"id" toml:"id"`
	ProjectID   string         `json:"project_id" yaml:"project_id" toml:"project_id"`
	Amount      string         `json:"amount" yaml:"amount" toml:"amount"`
	PostingDate string         `json:"posting_date" yaml:"posting_date" toml:"posting_date"`
	Kind        string         `json:"kind" yaml:"kind" toml:"kind"`
	Pool        string         `json:"pool,omitempty" yaml:"pool,omitempty" toml:"pool"`
	Payload     map[string]any `json:"payload,omitempty" yaml:"payload,omitempty" toml:"payload"`
}

// Data is a decoded fixture.
type Data struct {
	Projects []core.Project
	Events   []core.FinancialEvent
}

// Load reads a fixture file. The format follows the extension: .yaml, .yml, .json or .toml.
func Load(path string) (*Data, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing fixture file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading fixture file: %w", err)
	}
	return Parse(strings.ToLower(filepath.Ext(path)), raw)
}

// Parse decodes raw using the format named by ext.
func Parse(ext string, raw []byte) (*Data, error) {
	var f File
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("error parsing YAML fixture: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("error parsing JSON fixture: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("error parsing TOML fixture: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported fixture format: %s", ext)
	}
	return f.Decode()
}

// Decode converts the raw records into domain values.
func (f File) Decode() (*Data, error) {
	d := &Data{}
	for i, p := range f.Projects {
		project, err := p.decode()
		if err != nil {
			return nil, fmt.Errorf("project %d (%s): %w", i, p.ID, err)
		}
		d.Projects = append(d.Projects, project)
	}
	for i, e := range f.Events {
		event, err := e.decode()
		if err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", i, e.ID, err)
		}
		d.Events = append(d.Events, event)
	}
	return d, nil
}

func (p Project) decode() (core.Project, error) {
	budget, err := core.ParseAmount(p.Budget)
	if err != nil {
		return core.Project{}, fmt.Errorf("budget: %w", err)
	}
	out := core.Project{ID: p.ID, Name: p.Name, Budget: budget, Active: !p.Inactive}
	if p.Contingency != "" {
		c, err := core.ParseAmount(p.Contingency)
		if err != nil {
			return core.Project{}, fmt.Errorf("contingency: %w", err)
		}
		out.Contingency.Decimal, out.Contingency.Valid = c, true
	}
	if out.StartDate, err = parseDate(p.StartDate); err != nil {
		return core.Project{}, fmt.Errorf("start_date: %w", err)
	}
	if out.EndDate, err = parseDate(p.EndDate); err != nil {
		return core.Project{}, fmt.Errorf("end_date: %w", err)
	}
	return out, out.Validate()
}

func (e Event) decode() (core.FinancialEvent, error) {
	amount, err := core.ParseAmount(e.Amount)
	if err != nil {
		return core.FinancialEvent{}, fmt.Errorf("amount: %w", err)
	}
	posted, err := parseDate(e.PostingDate)
	if err != nil {
		return core.FinancialEvent{}, fmt.Errorf("posting_date: %w", err)
	}
	out := core.FinancialEvent{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Amount:    amount,
		Kind:      core.EventKind(e.Kind),
		Pool:      core.ProfileType(e.Pool),
	}
	if posted != nil {
		out.PostingDate = *posted
	}
	if out.Pool != "" && !out.Pool.IsValid() {
		return core.FinancialEvent{}, fmt.Errorf("pool %q: %w", e.Pool, core.ErrInvalidType)
	}
	if len(e.Payload) > 0 {
		if out.Payload, err = json.Marshal(e.Payload); err != nil {
			return core.FinancialEvent{}, fmt.Errorf("payload: %w", err)
		}
	}
	return out, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty string is an absent date.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}
