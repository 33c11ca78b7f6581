package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy. The core itself only ever raises invalid_request_error;
// the other types are produced at the edges (auth, card handling) or by the
// api_error fallback for unexpected failures.
const (
	ErrorTypeAPI            = "api_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypeCard           = "card_error"
	ErrorTypeInvalidRequest = "invalid_request_error"
)

// Error is the API-visible failure shape. All validation and not-found
// conditions are terminal for the current request; no partial mutation is
// committed before one is raised.
type Error struct {
	Type       string `json:"type"`
	Code       string `json:"code,omitempty"`
	Param      string `json:"param,omitempty"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Param, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// InvalidRequest builds the 400 validation error the core raises for bad or
// missing fields.
func InvalidRequest(param, format string, args ...any) *Error {
	return &Error{
		Type:       ErrorTypeInvalidRequest,
		Param:      param,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusBadRequest,
	}
}

// NotFound builds the 404 variant used for missing referenced entities.
func NotFound(param, format string, args ...any) *Error {
	return &Error{
		Type:       ErrorTypeInvalidRequest,
		Param:      param,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusNotFound,
	}
}

// Authentication builds the 401 error raised by the key-matching middleware.
func Authentication(message string) *Error {
	return &Error{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// Internal wraps an unexpected failure as an api_error so store or encoding
// problems never propagate raw to the client.
func Internal(err error) *Error {
	return &Error{
		Type:       ErrorTypeAPI,
		Message:    "internal error: " + err.Error(),
		StatusCode: http.StatusInternalServerError,
	}
}

// AsError coerces any error into the API shape, preserving typed errors and
// mapping everything else to api_error.
func AsError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}
