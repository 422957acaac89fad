package command

import (
	"errors"
	"fmt"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/override"
	"github.com/radio-control/rcpilot/internal/stick"
)

// Command errors. Range and channel errors are shared with the lower layers
// so errors.Is works across them.
var (
	ErrInvalidRange         = stick.ErrInvalidRange
	ErrInvalidChannel       = override.ErrInvalidChannel
	ErrInvalidArgumentCount = errors.New("INVALID_ARGUMENT_COUNT")
	ErrUnknownCommand       = errors.New("UNKNOWN_COMMAND")
)

// UsageError is returned for input rejected at the command boundary.
type UsageError struct {
	Command string
	Usage   string
	Err     error
}

func (e *UsageError) Error() string {
	if e.Usage == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("Usage: %s", e.Usage)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// Code returns the code of the wrapped error.
func (e *UsageError) Code() string {
	return Code(e.Err)
}

// Code maps an error to its wire code. nil maps to "SUCCESS".
func Code(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, ErrInvalidArgumentCount):
		return ErrInvalidArgumentCount.Error()
	case errors.Is(err, ErrUnknownCommand):
		return ErrUnknownCommand.Error()
	case errors.Is(err, ErrInvalidChannel):
		return ErrInvalidChannel.Error()
	case errors.Is(err, stick.ErrUnknownAxis):
		return stick.ErrUnknownAxis.Error()
	}
	return adapter.Code(err)
}

// IsUsage reports whether err was rejected at the command boundary.
func IsUsage(err error) bool {
	var usage *UsageError
	return errors.As(err, &usage)
}

func usageError(name, usage string, err error) error {
	return &UsageError{Command: name, Usage: usage, Err: err}
}
