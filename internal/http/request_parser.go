package http

// This file decodes and validates request bodies and query parameters.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"rundown/internal/core"
)

const maxBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// AdjustmentRequest is the wire form of core.Adjustment.
type AdjustmentRequest struct {
	Kind  string           `json:"kind" validate:"required,oneof=percentage absolute"`
	Value *decimal.Decimal `json:"value" validate:"required"`
}

func (a *AdjustmentRequest) toCore() core.Adjustment {
	return core.Adjustment{Kind: core.AdjustmentKind(a.Kind), Value: *a.Value}
}

// CreateScenarioRequest is the body of POST /api/rundown/scenarios.
type CreateScenarioRequest struct {
	ProjectID  string             `json:"project_id" validate:"required,max=128"`
	Name       string             `json:"name" validate:"required,max=64"`
	Adjustment *AdjustmentRequest `json:"adjustment" validate:"required"`
	CreatedBy  string             `json:"created_by" validate:"max=128"`
}

// UpdateScenarioRequest is the body of PUT /api/rundown/scenarios.
type UpdateScenarioRequest struct {
	ProjectID  string             `json:"project_id" validate:"required,max=128"`
	Name       string             `json:"name" validate:"required,max=64"`
	Adjustment *AdjustmentRequest `json:"adjustment" validate:"required"`
}

// ScenarioRefRequest names one scenario; used to apply and delete.
type ScenarioRefRequest struct {
	ProjectID string `json:"project_id" validate:"required,max=128"`
	Name      string `json:"name" validate:"required,max=64"`
}

// decodeJSON reads a bounded JSON body into dst, trims its string fields and
// validates it. Unknown fields are rejected.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return errBodyTooLarge
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &badRequestError{msg: "invalid JSON body: " + err.Error()}
	}
	if t, ok := dst.(interface{ trim() }); ok {
		t.trim()
	}
	return validate.Struct(dst)
}

func (c *CreateScenarioRequest) trim() {
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedBy = strings.TrimSpace(c.CreatedBy)
}

func (u *UpdateScenarioRequest) trim() {
	u.ProjectID = strings.TrimSpace(u.ProjectID)
	u.Name = strings.TrimSpace(u.Name)
}

func (s *ScenarioRefRequest) trim() {
	s.ProjectID = strings.TrimSpace(s.ProjectID)
	s.Name = strings.TrimSpace(s.Name)
}

var errBodyTooLarge = &badRequestError{msg: "request body too large"}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func isBadRequest(err error) bool {
	var br *badRequestError
	return errors.As(err, &br)
}

// ProfileQuery holds the parameters of a profile read.
type ProfileQuery struct {
	ProjectID   string
	ProfileType core.ProfileType
	Scenario    string
}

// ParseProfileQuery reads project_id, profile_type and scenario, defaulting
// to the total budget series of the baseline.
func ParseProfileQuery(q url.Values) (ProfileQuery, error) {
	pq := ProfileQuery{
		ProjectID:   strings.TrimSpace(q.Get("project_id")),
		ProfileType: core.TotalBudget,
		Scenario:    core.BaselineScenario,
	}
	if pq.ProjectID == "" {
		return pq, core.ErrEmptyProjectID
	}
	if v := strings.TrimSpace(q.Get("profile_type")); v != "" {
		pq.ProfileType = core.ProfileType(v)
		if !pq.ProfileType.IsValid() {
			return pq, fmt.Errorf("profile_type %q: %w", v, core.ErrInvalidType)
		}
	}
	if v := strings.TrimSpace(q.Get("scenario")); v != "" {
		pq.Scenario = v
	}
	return pq, nil
}

// ParseLimit reads a positive limit parameter, falling back to def.
func ParseLimit(q url.Values, def, maxLimit int) (int, error) {
	v := strings.TrimSpace(q.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &badRequestError{msg: "limit must be a positive integer"}
	}
	return min(n, maxLimit), nil
}
