package sagascope

import (
	"errors"
	"fmt"
)

// Precondition violations reported synchronously to the caller of
// RegisterCompensation.
var (
	// ErrNilAction indicates a compensation was registered without an action.
	ErrNilAction = errors.New("compensation action must not be nil")

	// ErrEmptyStepName indicates an explicitly supplied step name was empty.
	ErrEmptyStepName = errors.New("step name must not be empty")

	// ErrScopeResolved indicates a registration after the scope was already
	// committed or rolled back.
	ErrScopeResolved = errors.New("scope already committed or rolled back")

	// ErrNoOperation indicates a context that does not belong to a running
	// operation chain.
	ErrNoOperation = errors.New("context carries no operation scope")
)

// CompensationError records the failure of a single compensation during
// rollback. Failures are captured, never rethrown; the rollback loop
// continues past them.
type CompensationError struct {
	StepName string
	Err      error
}

// Error implements the error interface for CompensationError.
func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation %q failed: %v", e.StepName, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CompensationError) Unwrap() error {
	return e.Err
}

// ConditionFailed wraps an error raised while evaluating a compensation
// condition. A failed condition counts as a failed compensation attempt.
func ConditionFailed(err error) error {
	return fmt.Errorf("condition evaluation failed: %w", err)
}

// OperationError is returned by Operation.Run when the forward chain fails
// or faults. It names the step that caused the failure; any compensation
// errors accumulated during rollback remain observable on the scope.
type OperationError struct {
	Operation string
	Step      string
	Err       error
}

// Error implements the error interface for OperationError.
func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %q failed at step %q: %v", e.Operation, e.Step, e.Err)
}

// Unwrap returns the causal step error.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// PanicError converts a fault recovered from a forward step into an error
// value so the caller of the chain always receives a result, never an
// unhandled panic.
type PanicError struct {
	Value any
}

// Error implements the error interface for PanicError.
func (e *PanicError) Error() string {
	return fmt.Sprintf("step panicked: %v", e.Value)
}
