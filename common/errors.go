package common

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the sentinel wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrDeviceLost is the sentinel wrapped by every DeviceLostError.
	ErrDeviceLost = errors.New("device lost")

	// ErrResourceExhausted is the sentinel wrapped by every ResourceExhaustionError.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// ValidationError reports malformed build-time input: a broken CSG tree, a shader table
// whose records disagree, mixed geometry types in one bottom-level structure, a root
// signature that does not match the shader library it is linked against.
// Validation errors are fatal and are always raised while building, never while dispatching.
type ValidationError struct {
	// Component names the builder that rejected the input, e.g. "csg" or "shader_table".
	Component string
	// Reason is a human readable description that identifies the offending element.
	Reason string
}

// NewValidationError builds a ValidationError with a formatted reason.
//
// Parameters:
//   - component: the builder that rejected the input
//   - format: fmt-style format string for the reason
//   - args: format arguments
//
// Returns:
//   - *ValidationError: the new error
func NewValidationError(component, format string, args ...any) *ValidationError {
	return &ValidationError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Component, ErrValidation, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DeviceLostError reports that the GPU device was removed or reset. All device resources are
// invalid once this is returned; the only recovery is to recreate the device and rebuild every
// resource from host-retained data.
type DeviceLostError struct {
	Reason string
}

func (e *DeviceLostError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDeviceLost, e.Reason)
}

func (e *DeviceLostError) Unwrap() error {
	return ErrDeviceLost
}

// ResourceExhaustionError reports that a fixed-capacity device resource (a descriptor heap)
// has no free slots left. It is fatal; wrapping around would silently corrupt unrelated bindings.
type ResourceExhaustionError struct {
	Resource string
	Capacity int
}

func (e *ResourceExhaustionError) Error() string {
	return fmt.Sprintf("%s: %s (capacity %d)", ErrResourceExhausted, e.Resource, e.Capacity)
}

func (e *ResourceExhaustionError) Unwrap() error {
	return ErrResourceExhausted
}

// IsDeviceLost reports whether err, or any error it wraps, is a device-lost condition.
func IsDeviceLost(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}
