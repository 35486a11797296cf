package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error type constants for classification and matching
const (
	// ErrorTypeExecution indicates a failure attributable to the submitted
	// scene source, code fragment, or checkpoint id. The worker remains
	// usable and the controller stays (or returns to) Ready.
	ErrorTypeExecution = "execution"

	// ErrorTypeTransport indicates the channel or the worker process itself
	// failed. Always fatal to the current session.
	ErrorTypeTransport = "transport"

	// ErrorTypeTimeout indicates the worker did not answer within the
	// command deadline. A non-responding worker is indistinguishable from a
	// dead one, so timeouts are handled like transport failures: the process
	// is terminated and the session marked failed.
	ErrorTypeTimeout = "timeout"
)

// PreviewError represents a structured error with classification.
// It supports Go's error wrapping patterns with the Unwrap() method.
type PreviewError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *PreviewError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for errors.Is and errors.As
func (e *PreviewError) Unwrap() error {
	return e.Wrapped
}

// NewPreviewError creates a new PreviewError with the specified type and cause.
func NewPreviewError(errorType, cause string) *PreviewError {
	return &PreviewError{Type: errorType, Cause: cause}
}

// ExecutionError builds the recoverable error surfaced for an error-status
// response. The message comes from the worker verbatim.
func ExecutionError(message string) *PreviewError {
	return &PreviewError{Type: ErrorTypeExecution, Cause: message}
}

// TransportError wraps a channel or process failure.
func TransportError(cause string, err error) *PreviewError {
	return &PreviewError{Type: ErrorTypeTransport, Cause: cause, Wrapped: err}
}

// ClassifyError attempts to classify a regular error into a PreviewError.
// Context deadline and cancellation errors become timeouts; anything else
// that isn't already classified is treated as a transport fault, since
// execution failures arrive as error responses rather than Go errors.
func ClassifyError(err error) *PreviewError {
	var previewError *PreviewError
	if errors.As(err, &previewError) {
		return previewError
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &PreviewError{
			Type:    ErrorTypeTimeout,
			Cause:   err.Error(),
			Wrapped: err,
		}
	}
	return &PreviewError{
		Type:    ErrorTypeTransport,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// IsRecoverable reports whether the worker session survives the error.
// Only execution errors are recoverable; transport and timeout errors end
// the session.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	return ClassifyError(err).Type == ErrorTypeExecution
}

// ErrPreviewUnavailable is returned once the single automatic respawn has
// failed. The caller must take explicit action (a retry button, not a silent
// loop) before another spawn is attempted.
var ErrPreviewUnavailable = errors.New("preview unavailable: worker respawn failed")

// ErrNoSceneLoaded is returned for checkpoint or incremental requests made
// before any scene source was loaded.
var ErrNoSceneLoaded = errors.New("no scene loaded")
