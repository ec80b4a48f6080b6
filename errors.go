package kernel

import (
	"errors"
	"fmt"
)

// Sentinel errors. These are the kernel's error taxonomy; kinds
// are distinguished with errors.Is against these values.
var (
	// ErrConfigError is returned when kernel or plugin configuration is invalid.
	ErrConfigError = errors.New("config error")

	// ErrNotFound is returned when a lookup by id or name finds nothing.
	ErrNotFound = errors.New("not found")

	// ErrModelError is returned when a Model Router handler call fails.
	ErrModelError = errors.New("model error")

	// ErrProviderError is returned when a provider's Get fails during composition.
	ErrProviderError = errors.New("provider error")

	// ErrActionError is returned when an action handler or evaluator fails.
	ErrActionError = errors.New("action error")

	// ErrIOError is returned when a Store Adapter call fails.
	ErrIOError = errors.New("io error")

	// ErrAlreadyRegistered names a duplicate registration. No Kernel
	// method returns it: a duplicate plugin name is skipped with a warning.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrKernelNotStarted names use of a kernel before Initialize. No
	// Kernel method returns it.
	ErrKernelNotStarted = errors.New("kernel not started")

	// ErrKernelAlreadyStarted names a repeated start. No Kernel method
	// returns it: a second Initialize logs a warning and returns nil.
	ErrKernelAlreadyStarted = errors.New("kernel already started")
)

// KernelError wraps a sentinel error with the failing operation, optional
// run attribution, and free-form context.
type KernelError struct {
	Op       string         // operation that failed, e.g. "Router.UseModel"
	Err      error          // one of the sentinel Err* values, wrapped
	RunID    string         // run id, if applicable
	Context  map[string]any // additional context
	Critical bool           // informational; the action engine aborts only on errors with a Critical() bool method, such as action.CriticalError
}

// Error implements the error interface.
func (e *KernelError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s (run=%s): %v", e.Op, e.RunID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying sentinel error, so errors.Is(err,
// ErrActionError) works against a *KernelError.
func (e *KernelError) Unwrap() error {
	return e.Err
}

// WithContext attaches a key/value pair and returns the receiver for chaining.
func (e *KernelError) WithContext(key string, value any) *KernelError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewKernelError constructs a *KernelError for the given operation and
// underlying sentinel.
func NewKernelError(op string, err error) *KernelError {
	return &KernelError{Op: op, Err: err}
}

// NewKernelErrorWithRun constructs a *KernelError attributed to a run id.
func NewKernelErrorWithRun(op, runID string, err error) *KernelError {
	return &KernelError{Op: op, Err: err, RunID: runID}
}
