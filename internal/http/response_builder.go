// Package http exposes the rundown engine over a JSON API.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the mapping from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"rundown/internal/core"
	"rundown/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       []byte
	headers    map[string]string
	err        error
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the response body.
func (b *JSONResponseBuilder) JSON(v any) *JSONResponseBuilder {
	b.body, b.err = json.Marshal(v)
	return b
}

// Body sets a raw body with its content type.
func (b *JSONResponseBuilder) Body(contentType string, content []byte) *JSONResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.body = content
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		slog.Error("Response encoding failed", log.FieldComponent, log.ComponentHTTP, log.FieldError, b.err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
		if b.headers["Content-Type"] == "application/json" {
			_, _ = w.Write([]byte("\n"))
		}
	}
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error  string            `json:"error"`
	Type   string            `json:"type,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).JSON(ErrorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// ServiceUnavailableError creates a 503 Service Unavailable error response.
func ServiceUnavailableError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}

// ValidationError renders validator failures as 422 with one entry per field.
func ValidationError(errs validator.ValidationErrors) *JSONResponseBuilder {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fe.Tag()
	}
	return NewJSONResponse().
		Status(http.StatusUnprocessableEntity).
		JSON(ErrorBody{Error: "validation failed", Type: "ValidationError", Fields: fields})
}

var validationErrs = []error{
	core.ErrEmptyProjectID,
	core.ErrEmptyScenarioName,
	core.ErrNegativeBudget,
	core.ErrInvalidAdjustment,
	core.ErrInvalidKind,
	core.ErrInvalidType,
	core.ErrInvalidAmount,
	core.ErrReservedScenario,
}

// StatusFor maps a domain error to its HTTP status: malformed requests 400,
// duplicates 409, unknown projects or scenarios 404, invalid input 422 and
// everything else 500.
func StatusFor(err error) int {
	var (
		dup      *core.DuplicateScenarioError
		rangeErr *core.InvalidRangeError
		aggErr   *core.AggregationError
		verrs    validator.ValidationErrors
	)
	switch {
	case isBadRequest(err):
		return http.StatusBadRequest
	case errors.As(err, &dup):
		return http.StatusConflict
	case errors.Is(err, core.ErrProjectNotFound), errors.Is(err, core.ErrScenarioNotFound):
		return http.StatusNotFound
	case errors.As(err, &rangeErr), errors.As(err, &aggErr), errors.As(err, &verrs):
		return http.StatusUnprocessableEntity
	}
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// DomainError builds the response for err. Server errors are logged and their
// detail withheld from the client.
func DomainError(r *http.Request, err error, op string) *JSONResponseBuilder {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return ValidationError(verrs)
	}

	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		return NewJSONResponse().Status(status).JSON(ErrorBody{Error: "internal error", Type: core.ErrorType(err)})
	}

	errType := ""
	var dup *core.DuplicateScenarioError
	switch {
	case errors.As(err, &dup):
		errType = "DuplicateScenarioError"
	case status == http.StatusBadRequest:
		errType = "BadRequest"
	case status == http.StatusNotFound:
		errType = core.ErrorTypeNotFound
	default:
		errType = core.ErrorType(err)
		if errType == core.ErrorTypeInternal {
			errType = "ValidationError"
		}
	}
	return NewJSONResponse().Status(status).JSON(ErrorBody{Error: err.Error(), Type: errType})
}
