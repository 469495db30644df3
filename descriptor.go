package sagascope

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CompensationFunc is the reversible operation registered for one forward
// step. It is invoked only during rollback.
type CompensationFunc func(ctx context.Context) error

// ConditionFunc gates a compensation at rollback time. When it returns
// false the compensation is skipped. Absence of a condition means the
// compensation always runs.
type ConditionFunc func(ctx context.Context) (bool, error)

// CompensationStatus represents the execution state of one registered
// compensation.
type CompensationStatus int

const (
	StatusPending CompensationStatus = iota
	StatusExecuting
	StatusSucceeded
	StatusFailed
	StatusSkipped
)

func (s CompensationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuting:
		return "executing"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaler interface for CompensationStatus.
func (s CompensationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for CompensationStatus.
func (s *CompensationStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "pending":
		*s = StatusPending
	case "executing":
		*s = StatusExecuting
	case "succeeded":
		*s = StatusSucceeded
	case "failed":
		*s = StatusFailed
	case "skipped":
		*s = StatusSkipped
	default:
		return fmt.Errorf("invalid CompensationStatus: %s", str)
	}

	return nil
}

// CompensationDescriptor records one registered undo step and its runtime
// status. Descriptors are appended during the forward phase and mutated in
// place only by the rollback loop; the undo order is the reverse of the
// position in the scope's list.
type CompensationDescriptor struct {
	StepName          string
	RegisteredAt      time.Time
	ExecutedAt        time.Time
	ExecutionDuration time.Duration
	ExecutionError    error
	Status            CompensationStatus

	action    CompensationFunc
	condition ConditionFunc
}

// String implements the fmt.Stringer interface for CompensationDescriptor.
func (d CompensationDescriptor) String() string {
	return fmt.Sprintf("%s [%s]", d.StepName, d.Status)
}
