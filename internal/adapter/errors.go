package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/radio-control/rcpilot/internal/stick"
)

// Normalized link errors.
var (
	ErrInvalidRange = stick.ErrInvalidRange
	ErrBusy         = errors.New("BUSY")
	ErrUnavailable  = errors.New("UNAVAILABLE")
	ErrInternal     = errors.New("INTERNAL")

	// ErrUnsupported is returned by links that lack a capability, such as a
	// raw SITL stream asked for a parameter.
	ErrUnsupported = errors.New("UNSUPPORTED")
)

// TokenMap defines the error token mapping for one link kind.
type TokenMap struct {
	Range       []string // Tokens that map to INVALID_RANGE
	Busy        []string // Tokens that map to BUSY
	Unavailable []string // Tokens that map to UNAVAILABLE
}

// LinkErrorMappings holds the deterministic error tables per link kind.
// Unknown tokens map to INTERNAL; unknown kinds fall back to "generic".
var LinkErrorMappings = map[string]TokenMap{
	"mavlink": {
		Range: []string{
			"MAV_RESULT_DENIED",
			"UNKNOWN MODE",
			"INVALID PARAMETER",
		},
		Busy: []string{
			"MAV_RESULT_TEMPORARILY_REJECTED",
			"MAV_RESULT_IN_PROGRESS",
			"QUEUE FULL",
		},
		Unavailable: []string{
			"MAV_RESULT_UNSUPPORTED",
			"MAV_RESULT_FAILED",
			"NO HEARTBEAT",
			"TIMEOUT",
			"TERMINATED",
		},
	},
	"sitl": {
		Range: []string{
			"SHORT FRAME",
		},
		Busy: []string{
			"I/O TIMEOUT",
			"QUEUE FULL",
			"NO BUFFER SPACE",
		},
		Unavailable: []string{
			"CONNECTION REFUSED",
			"NETWORK IS UNREACHABLE",
			"USE OF CLOSED NETWORK CONNECTION",
			"DISPOSED",
		},
	},
	"generic": {
		Range: []string{
			"OUT_OF_RANGE",
			"INVALID_RANGE",
			"BAD_VALUE",
		},
		Busy: []string{
			"BUSY",
			"RETRY",
			"QUEUE FULL",
		},
		Unavailable: []string{
			"UNAVAILABLE",
			"OFFLINE",
			"CLOSED",
			"NOT_READY",
		},
	},
}

// LinkError wraps a link error with its normalized code.
type LinkError struct {
	Code     error       // Normalized code
	Original error       // Link error
	Details  interface{} // Link payload (opaque)
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%v (link: %v)", e.Code, e.Original)
}

func (e *LinkError) Unwrap() error {
	return e.Code
}

// NormalizeLinkError maps a link error using the generic table.
func NormalizeLinkError(err error, payload interface{}) error {
	return NormalizeLinkErrorWithKind(err, payload, "generic")
}

// NormalizeLinkErrorWithKind maps a link error using the table for kind.
// Errors that already carry a normalized code pass through unchanged.
func NormalizeLinkErrorWithKind(err error, payload interface{}, kind string) error {
	if err == nil {
		return nil
	}

	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		return err
	}
	for _, code := range []error{ErrInvalidRange, ErrBusy, ErrUnavailable, ErrInternal, ErrUnsupported} {
		if errors.Is(err, code) {
			return err
		}
	}

	return &LinkError{
		Code:     mapErrorToCode(err.Error(), kind),
		Original: err,
		Details:  payload,
	}
}

// mapErrorToCode maps an error message to a normalized code.
func mapErrorToCode(msg string, kind string) error {
	tokens, exists := LinkErrorMappings[kind]
	if !exists {
		tokens = LinkErrorMappings["generic"]
	}

	upperMsg := strings.ToUpper(msg)

	for _, token := range tokens.Range {
		if strings.Contains(upperMsg, token) {
			return ErrInvalidRange
		}
	}

	for _, token := range tokens.Busy {
		if strings.Contains(upperMsg, token) {
			return ErrBusy
		}
	}

	for _, token := range tokens.Unavailable {
		if strings.Contains(upperMsg, token) {
			return ErrUnavailable
		}
	}

	return ErrInternal
}

// Code returns the normalized code string of err, or "" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRange):
		return ErrInvalidRange.Error()
	case errors.Is(err, ErrBusy):
		return ErrBusy.Error()
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable.Error()
	case errors.Is(err, ErrUnsupported):
		return ErrUnsupported.Error()
	}
	return ErrInternal.Error()
}
