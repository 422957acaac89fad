package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/radio-control/rcpilot/internal/command"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// NewAPIError creates a new API error.
func NewAPIError(code string, message string, statusCode int, details interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrBadRequest is returned for malformed bodies.
var ErrBadRequest = errors.New("BAD_REQUEST")

// statusByCode maps error codes to HTTP status codes.
var statusByCode = map[string]int{
	"INVALID_RANGE":          http.StatusBadRequest,
	"INVALID_CHANNEL":        http.StatusBadRequest,
	"INVALID_ARGUMENT_COUNT": http.StatusBadRequest,
	"UNKNOWN_AXIS":           http.StatusBadRequest,
	"UNKNOWN_COMMAND":        http.StatusNotFound,
	"BUSY":                   http.StatusServiceUnavailable,
	"UNAVAILABLE":            http.StatusServiceUnavailable,
	"UNSUPPORTED":            http.StatusNotImplemented,
	"INTERNAL":               http.StatusInternalServerError,
}

var messageByCode = map[string]string{
	"BUSY":        "Vehicle link is busy, please retry with backoff",
	"UNAVAILABLE": "Vehicle link is temporarily unavailable",
	"UNSUPPORTED": "Operation not supported by this link",
	"INTERNAL":    "Internal server error",
}

// ToAPIError converts an error to an HTTP status code and JSON body.
func ToAPIError(err error) (int, []byte) {
	if err == nil {
		return http.StatusOK, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, marshalErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	}

	if errors.Is(err, ErrBadRequest) {
		return http.StatusBadRequest, marshalErrorResponse("BAD_REQUEST", err.Error(), nil)
	}

	code := command.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	// Input errors carry an operator-facing message; link errors are
	// summarized with the original kept in details.
	if status < http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		var details interface{}
		var usage *command.UsageError
		if errors.As(err, &usage) && usage.Usage != "" {
			details = map[string]interface{}{"usage": usage.Usage, "reason": usage.Err.Error()}
		}
		return status, marshalErrorResponse(code, err.Error(), details)
	}

	message, ok := messageByCode[code]
	if !ok {
		message = err.Error()
	}
	return status, marshalErrorResponse(code, message, map[string]interface{}{
		"original": err.Error(),
	})
}

// marshalErrorResponse creates a JSON error response with correlation ID.
func marshalErrorResponse(code, message string, details interface{}) []byte {
	jsonBytes, err := json.Marshal(ErrorResponse(code, message, details))
	if err != nil {
		jsonBytes, _ = json.Marshal(ErrorResponse("INTERNAL", "Failed to marshal error response", nil))
	}
	return jsonBytes
}
