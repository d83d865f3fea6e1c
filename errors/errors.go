// Package errors provides standardized error handling for the component
// lifecycle manager. It includes error classification, standard error
// variables for registration and load failures, and helper functions for
// consistent error wrapping across the subsystem.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Registration errors
	ErrInvalidDescriptor = errors.New("invalid component descriptor")
	ErrDuplicateID       = errors.New("component id already registered")
	ErrReservedID        = errors.New("component id is reserved")
	ErrInvalidPath       = errors.New("component locator outside trusted directory")
	ErrInvalidTarget     = errors.New("malformed construction target")

	// Load-time errors
	ErrCircularDependency    = errors.New("circular dependency detected")
	ErrMissingDependency     = errors.New("dependency not registered")
	ErrDependencyUnsatisfied = errors.New("dependency has no live instance")
	ErrEntryFileMissing      = errors.New("entry file missing or unreadable")
	ErrConstructionFailed    = errors.New("component construction failed")
	ErrActivationFailed      = errors.New("component activation failed")

	// Lookup errors
	ErrUnknownComponent = errors.New("unknown component")

	// Settings store errors
	ErrSettingsUnavailable = errors.New("settings store unavailable")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and could succeed on retry
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrSettingsUnavailable)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidDescriptor) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrReservedID) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrInvalidTarget)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
