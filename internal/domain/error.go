package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrOperationFailed    = errors.New("operation failed")

	// Task lifecycle
	ErrTaskAlreadyFinal  = errors.New("task already reached a terminal state")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrDispatcherClosed  = errors.New("dispatcher is shut down")
	ErrLockNotAcquired   = errors.New("lock held by another worker")
)

// ConfigurationError reports a missing or unusable provider credential or
// setting. It is returned before any task row is written.
type ConfigurationError struct {
	Provider string
	Key      string
	Message  string
}

func (e *ConfigurationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is not configured: set %s", e.Provider, e.Key)
}

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ProviderError is a non-2xx answer or an explicit failure reported by an
// upstream generation backend.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TimeoutError means the poll budget ran out before the provider reported a
// terminal state.
type TimeoutError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no terminal state after %d poll attempts", e.Provider, e.Attempts)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NormalizationError is a successful provider answer without any recognizable
// image field. It is a ProviderError variant.
type NormalizationError struct {
	Provider string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s: no images in provider response", e.Provider)
}

// RelocationError describes one image that could not be copied into object
// storage. It is logged and never fails a task.
type RelocationError struct {
	URL string
	Op  string // download | upload
	Err error
}

func (e *RelocationError) Error() string {
	return fmt.Sprintf("relocate %s: %s: %v", e.URL, e.Op, e.Err)
}

func (e *RelocationError) Unwrap() error { return e.Err }

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsTimeoutError(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

func IsNormalizationError(err error) bool {
	var target *NormalizationError
	return errors.As(err, &target)
}

// IsProviderError matches ProviderError and its NormalizationError variant.
func IsProviderError(err error) bool {
	var target *ProviderError
	return errors.As(err, &target) || IsNormalizationError(err)
}

// IsClientError reports whether err belongs to the classes returned
// synchronously to a submitter.
func IsClientError(err error) bool {
	return IsConfigurationError(err) || IsValidationError(err)
}

const maxPublicMessage = 500

// PublicMessage converts a dispatch failure into the short text stored on a
// failed task.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	var perr *ProviderError
	switch {
	case IsTimeoutError(err):
		msg = "generation timed out"
	case IsNormalizationError(err):
		msg = "provider returned no images"
	case errors.As(err, &perr):
		msg = perr.Error()
	default:
		msg = err.Error()
	}
	if len(msg) > maxPublicMessage {
		msg = strings.ToValidUTF8(msg[:maxPublicMessage], "")
	}
	if msg == "" {
		msg = "generation failed"
	}
	return msg
}

// ErrorKind is a stable label for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsTimeoutError(err):
		return "timeout"
	case IsNormalizationError(err):
		return "normalization"
	case IsProviderError(err):
		return "provider"
	case IsConfigurationError(err):
		return "configuration"
	case IsValidationError(err):
		return "validation"
	default:
		return "internal"
	}
}
