package errorx

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryNotFound       ErrorCategory = "not_found"
	CategoryInternal       ErrorCategory = "internal"
	CategoryExternal       ErrorCategory = "external"
	CategoryUnavailable    ErrorCategory = "unavailable"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// APIError represents a structured API error returned by the hub
type APIError struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Category    ErrorCategory  `json:"category"`
	Severity    Severity       `json:"severity"`
	HTTPStatus  int            `json:"-"`
	Details     map[string]any `json:"details,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	TraceID     string         `json:"trace_id,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// Is matches on the error code so that decorated copies still satisfy
// errors.Is against the package level templates.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// JSON returns the error as a JSON string
func (e *APIError) JSON() string {
	out, _ := json.Marshal(e)
	return string(out)
}

func (e *APIError) clone() *APIError {
	c := *e
	c.Details = maps.Clone(e.Details)
	c.Suggestions = slices.Clone(e.Suggestions)
	return &c
}

// WithDetail returns a copy of the error carrying an extra detail
func (e *APIError) WithDetail(key string, value any) *APIError {
	c := e.clone()
	if c.Details == nil {
		c.Details = make(map[string]any)
	}
	c.Details[key] = value
	return c
}

// WithSuggestion returns a copy of the error carrying an extra suggestion
func (e *APIError) WithSuggestion(suggestion string) *APIError {
	c := e.clone()
	c.Suggestions = append(c.Suggestions, suggestion)
	return c
}

// WithMessage returns a copy of the error with its message replaced
func (e *APIError) WithMessage(msg string) *APIError {
	c := e.clone()
	c.Message = msg
	return c
}

// Templates. Never mutate these directly; the With* helpers return copies.
var (
	// Validation errors (E1xxx)
	ErrInvalidInput = &APIError{
		Code:       "E1001",
		Message:    "Invalid input provided",
		Category:   CategoryValidation,
		Severity:   SeverityWarning,
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidEvent = &APIError{
		Code:       "E1002",
		Message:    "Event must carry a type and exactly one target scope",
		Category:   CategoryValidation,
		Severity:   SeverityWarning,
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidScope = &APIError{
		Code:       "E1003",
		Message:    "Unknown stream scope",
		Category:   CategoryValidation,
		Severity:   SeverityWarning,
		HTTPStatus: http.StatusBadRequest,
		Suggestions: []string{
			"Use scope=tenant or scope=user",
		},
	}

	// Authentication errors (E2xxx)
	ErrUnauthorized = &APIError{
		Code:       "E2001",
		Message:    "Authentication required",
		Category:   CategoryAuthentication,
		Severity:   SeverityWarning,
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidToken = &APIError{
		Code:       "E2002",
		Message:    "Invalid access token",
		Category:   CategoryAuthentication,
		Severity:   SeverityWarning,
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpired = &APIError{
		Code:       "E2003",
		Message:    "Access token has expired",
		Category:   CategoryAuthentication,
		Severity:   SeverityInfo,
		HTTPStatus: http.StatusUnauthorized,
		Suggestions: []string{
			"Refresh the token and reconnect",
		},
	}

	// Authorization errors (E3xxx)
	ErrForbidden = &APIError{
		Code:       "E3001",
		Message:    "Access to this resource is forbidden",
		Category:   CategoryAuthorization,
		Severity:   SeverityWarning,
		HTTPStatus: http.StatusForbidden,
	}

	ErrScopeNotPermitted = &APIError{
		Code:       "E3002",
		Message:    "Caller may not publish to this routing key",
		Category:   CategoryAuthorization,
		Severity:   SeverityWarning,
		HTTPStatus: http.StatusForbidden,
	}

	// Not found errors (E4xxx)
	ErrEndpointNotFound = &APIError{
		Code:       "E4001",
		Message:    "Endpoint not found",
		Category:   CategoryNotFound,
		Severity:   SeverityInfo,
		HTTPStatus: http.StatusNotFound,
	}

	// Internal errors (E5xxx)
	ErrInternalServer = &APIError{
		Code:       "E5001",
		Message:    "Internal server error occurred",
		Category:   CategoryInternal,
		Severity:   SeverityCritical,
		HTTPStatus: http.StatusInternalServerError,
		Suggestions: []string{
			"Please try again later",
		},
	}

	ErrStreamingUnsupported = &APIError{
		Code:       "E5002",
		Message:    "Response writer does not support streaming",
		Category:   CategoryInternal,
		Severity:   SeverityError,
		HTTPStatus: http.StatusInternalServerError,
	}

	// Availability errors (E6xxx)
	ErrShuttingDown = &APIError{
		Code:       "E6001",
		Message:    "Server is shutting down",
		Category:   CategoryUnavailable,
		Severity:   SeverityInfo,
		HTTPStatus: http.StatusServiceUnavailable,
		Suggestions: []string{
			"Reconnect to another instance",
		},
	}

	ErrBusUnavailable = &APIError{
		Code:       "E6002",
		Message:    "Event bus is unavailable",
		Category:   CategoryExternal,
		Severity:   SeverityError,
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
