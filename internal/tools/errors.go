package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned when the model names a function that is not
// one of the five task actions.
type ErrUnknownTool struct {
	Name string
}

// Error implements the error interface.
func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// ErrInvalidArguments wraps argument payloads that are not JSON or do not
// match the action's declared parameters.
var ErrInvalidArguments = errors.New("invalid arguments")

// Failure is an expected, user-facing outcome such as a bad date or a
// missing task. Its message is fed back to the model verbatim.
type Failure struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (f *Failure) Error() string { return f.Message }

// Unwrap returns the underlying cause, if any.
func (f *Failure) Unwrap() error { return f.Err }

func failf(format string, args ...any) *Failure {
	return &Failure{Message: fmt.Sprintf(format, args...)}
}

// ErrorResult renders an Execute error as the tool result the model sees
// on its next exchange.
func ErrorResult(name string, err error) string {
	var unknown *ErrUnknownTool
	var failure *Failure
	switch {
	case errors.As(err, &unknown):
		return fmt.Sprintf("Error: Tool %s not found.", name)
	case errors.As(err, &failure):
		return failure.Message
	default:
		return fmt.Sprintf("Error executing tool %s: %v", name, err)
	}
}
