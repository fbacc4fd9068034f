package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinels used for classification with errors.Is.
var (
	ErrNetwork        = errors.New("network error")
	ErrTimeout        = errors.New("request timed out")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrSessionCorrupt = errors.New("persisted session is corrupt")
	ErrCacheMiss      = errors.New("cache entry not found")
)

// APIErrorBody is the error shape returned by the backend.
type APIErrorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// RequestError is a response with a non-success status.
type RequestError struct {
	Status  int
	Body    []byte
	Message string
	Errors  map[string][]string
}

// NewRequestError decodes the backend error body when it has the expected shape.
func NewRequestError(status int, body []byte) *RequestError {
	e := &RequestError{Status: status, Body: body}
	var parsed APIErrorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		e.Message = parsed.Message
		e.Errors = parsed.Errors
	}
	return e
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Is maps the status onto the package sentinels.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrValidation:
		return (e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity) && len(e.Errors) > 0
	}
	return false
}

// NetworkError means no response was received.
type NetworkError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork || (target == ErrTimeout && e.Timeout)
}

// RefreshError is delivered to every request waiting on a failed refresh cycle.
// The session has already been cleared when a caller sees it.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

func (e *RefreshError) Is(target error) bool { return target == ErrRefreshFailed }

// ValidationError is raised before any I/O when a form fails client-side rules.
type ValidationError struct {
	Message string
	Errors  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	fields := make([]string, 0, len(e.Errors))
	for f, msgs := range e.Errors {
		fields = append(fields, fmt.Sprintf("%s: %s", f, strings.Join(msgs, ", ")))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(fields, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ErrorMessage extracts a human-readable message for display.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Message
	}
	return err.Error()
}

// ValidationErrors extracts the field-error map. It never returns nil.
func ValidationErrors(err error) map[string][]string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Errors != nil {
		return reqErr.Errors
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) && valErr.Errors != nil {
		return valErr.Errors
	}
	return map[string][]string{}
}

// ErrorCode classifies errors on the local HTTP surface.
type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "Unauthorized"        // HTTP 401
	ErrCodeValidation   ErrorCode = "ValidationFailed"    // HTTP 400/422
	ErrCodeNotFound     ErrorCode = "NotFound"            // HTTP 404
	ErrCodeBadRequest   ErrorCode = "BadRequest"          // HTTP 400
	ErrCodeUpstream     ErrorCode = "UpstreamUnavailable" // HTTP 502
	ErrCodeInternal     ErrorCode = "InternalServerError" // HTTP 500
)

// ErrorResponse is the error format written by the local HTTP surface.
type ErrorResponse struct {
	Code    ErrorCode           `json:"code"`
	Message string              `json:"message"`
	Details string              `json:"details,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorResponseFor classifies err and returns the response with its HTTP status.
func ErrorResponseFor(err error) (ErrorResponse, int) {
	var reqErr *RequestError
	switch {
	case errors.Is(err, ErrValidation):
		resp := NewErrorResponse(ErrCodeValidation, ErrorMessage(err), "")
		resp.Errors = ValidationErrors(err)
		status := http.StatusBadRequest
		if errors.As(err, &reqErr) {
			status = reqErr.Status
		}
		return resp, status
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrRefreshFailed):
		return NewErrorResponse(ErrCodeUnauthorized, "Session expired, please log in again", ErrorMessage(err)), http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return NewErrorResponse(ErrCodeNotFound, ErrorMessage(err), ""), http.StatusNotFound
	case errors.Is(err, ErrNetwork):
		return NewErrorResponse(ErrCodeUpstream, "Backend unreachable", err.Error()), http.StatusBadGateway
	case errors.As(err, &reqErr) && reqErr.Status >= 400 && reqErr.Status < 500:
		return NewErrorResponse(ErrCodeBadRequest, ErrorMessage(err), ""), reqErr.Status
	}
	return NewErrorResponse(ErrCodeInternal, "An unexpected error occurred", err.Error()), http.StatusInternalServerError
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not typically handled here.
}
