package raster

import (
	"errors"
	"fmt"
)

var (
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrAllInvalidStack     = errors.New("all pixels invalid in stack")
	ErrCRSResolution       = errors.New("crs resolution error")
	ErrEmptyClipRegion     = errors.New("empty clip region")
	ErrExternalToolFailure = errors.New("external tool failure")
)

// ToolError reports a failed external tool invocation together with the
// paths it was working on.
type ToolError struct {
	Tool   string
	Input  string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s failed (input=%q output=%q)", ErrExternalToolFailure, e.Tool, e.Input, e.Output)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalToolFailure}
	}
	return []error{ErrExternalToolFailure, e.Err}
}

func shapeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...))
}
