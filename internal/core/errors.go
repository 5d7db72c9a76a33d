package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrProjectNotFound  = errors.New("project not found")
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrReservedScenario = errors.New("scenario name is reserved")
	ErrInvalidProject   = errors.New("malformed project record")
)

// Error type names reported in GenerationResult.Errors.
const (
	ErrorTypeInvalidRange = "InvalidRangeError"
	ErrorTypeAggregation  = "AggregationError"
	ErrorTypePersistence  = "PersistenceError"
	ErrorTypeNotFound     = "NotFoundError"
	ErrorTypeInvalidData  = "InvalidProjectError"
	ErrorTypeInternal     = "InternalError"
)

// InvalidRangeError reports a project whose start or end date is missing or inverted.
type InvalidRangeError struct {
	ProjectID string
	Reason    string
}

func (e *InvalidRangeError) Error() string {
	if e.ProjectID == "" {
		return "invalid date range: " + e.Reason
	}
	return fmt.Sprintf("invalid date range for project %s: %s", e.ProjectID, e.Reason)
}

// AggregationError reports malformed financial event data.
type AggregationError struct {
	EventID string
	Reason  string
	Err     error
}

func (e *AggregationError) Error() string {
	msg := fmt.Sprintf("malformed financial event %s: %s", e.EventID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AggregationError) Unwrap() error { return e.Err }

// DuplicateScenarioError is returned when a scenario name already exists for the project.
type DuplicateScenarioError struct {
	ProjectID string
	Name      string
}

func (e *DuplicateScenarioError) Error() string {
	return fmt.Sprintf("scenario %q already exists for project %s", e.Name, e.ProjectID)
}

// PersistenceError wraps a failed write to profile storage.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorType classifies err for reporting.
func ErrorType(err error) string {
	var (
		rangeErr *InvalidRangeError
		aggErr   *AggregationError
		persErr  *PersistenceError
	)
	switch {
	case errors.As(err, &rangeErr):
		return ErrorTypeInvalidRange
	case errors.As(err, &aggErr):
		return ErrorTypeAggregation
	case errors.As(err, &persErr):
		return ErrorTypePersistence
	case errors.Is(err, ErrInvalidProject):
		return ErrorTypeInvalidData
	case errors.Is(err, ErrProjectNotFound):
		return ErrorTypeNotFound
	default:
		return ErrorTypeInternal
	}
}
