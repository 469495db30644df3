package sagascope

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType defines the lifecycle transitions a compensation can go through.
type EventType int

const (
	EventRegistered EventType = iota
	EventStarted
	EventSucceeded
	EventFailed
	EventSkipped
)

// String returns the string representation of the EventType.
func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventStarted:
		return "started"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("Unknown EventType: %d", t)
	}
}

// MarshalJSON implements the json.Marshaler interface for EventType.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for EventType.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "registered":
		*t = EventRegistered
	case "started":
		*t = EventStarted
	case "succeeded":
		*t = EventSucceeded
	case "failed":
		*t = EventFailed
	case "skipped":
		*t = EventSkipped
	default:
		return fmt.Errorf("invalid EventType: %s", str)
	}

	return nil
}

// Event is an immutable snapshot describing one lifecycle transition of a
// compensation. Events are handed to subscribers synchronously and are not
// retained by the engine.
type Event struct {
	StepName  string
	Type      EventType
	Timestamp time.Time
	Err       error
	Duration  time.Duration
	Context   *SagaContext
}

// String implements the fmt.Stringer interface for Event.
func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.StepName, e.Type)
}

// EventHandler receives lifecycle events from a scope. Handler panics are
// recovered by the scope and must not interrupt rollback or registration.
type EventHandler func(event Event)
