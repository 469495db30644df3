package sagascope

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/btree"
)

// Journal is an in-memory, validated record of the lifecycle events emitted
// by a scope. It rejects transitions the descriptor state machine does not
// allow, which makes it useful both as an audit trail and as a tripwire in
// tests. Nothing is persisted; journal contents are lost with the process.
//
// The journal indexes steps by name, so scopes feeding a journal should use
// unique step names.
type Journal struct {
	sync.Mutex // for thread-safety
	unwinding  bool
	events     []Event
	stepStatus *btree.Map[string, CompensationStatus]
	recordErr  error
}

// NewJournal creates a new, empty Journal.
func NewJournal() *Journal {
	return &Journal{
		events:     make([]Event, 0),
		stepStatus: btree.NewMap[string, CompensationStatus](10),
	}
}

// Attach subscribes the journal to a scope. A handler must not fail the
// scope, so recording errors are retained and surface through Err.
func (j *Journal) Attach(scope *Scope) {
	scope.Subscribe(func(event Event) {
		if err := j.Record(event); err != nil {
			j.Lock()
			if j.recordErr == nil {
				j.recordErr = err
			}
			j.Unlock()
		}
	})
}

// Err returns the first recording error encountered by an attached journal.
func (j *Journal) Err() error {
	j.Lock()
	defer j.Unlock()

	return j.recordErr
}

// nextStatus returns the new status for a step after recording the given
// event type.
func nextStatus(current CompensationStatus, seen bool, eventType EventType) (CompensationStatus, error) {
	if !seen {
		if eventType == EventRegistered {
			return StatusPending, nil
		}
		return StatusPending, fmt.Errorf("event %s for unregistered step", eventType)
	}

	switch current {
	case StatusPending:
		switch eventType {
		case EventStarted:
			return StatusExecuting, nil
		case EventSkipped:
			return StatusSkipped, nil
		}
	case StatusExecuting:
		switch eventType {
		case EventSucceeded:
			return StatusSucceeded, nil
		case EventFailed:
			return StatusFailed, nil
		}
	}

	return current, fmt.Errorf(
		"illegal event type %s for current status %s", eventType, current,
	)
}

// Record adds an event to the journal after validating the transition.
func (j *Journal) Record(event Event) error {
	j.Lock()
	defer j.Unlock()

	current, seen := j.stepStatus.Get(event.StepName)
	next, err := nextStatus(current, seen, event.Type)
	if err != nil {
		return fmt.Errorf("journal: step %q: %w", event.StepName, err)
	}

	switch event.Type {
	case EventStarted, EventSkipped:
		j.unwinding = true
	}

	j.stepStatus.Set(event.StepName, next)
	j.events = append(j.events, event)
	return nil
}

// Unwinding returns true once the first rollback-phase event has been
// recorded.
func (j *Journal) Unwinding() bool {
	j.Lock()
	defer j.Unlock()

	return j.unwinding
}

// Events returns a copy of the recorded events in emission order.
func (j *Journal) Events() []Event {
	j.Lock()
	defer j.Unlock()

	return append([]Event(nil), j.events...)
}

// StepStatus returns the last recorded status for a step.
func (j *Journal) StepStatus(stepName string) (CompensationStatus, bool) {
	j.Lock()
	defer j.Unlock()

	return j.stepStatus.Get(stepName)
}

// JournalPretty is a helper for pretty-printing a Journal.
type JournalPretty struct {
	Journal *Journal
}

// String implements the fmt.Stringer interface for JournalPretty.
func (p *JournalPretty) String() string {
	p.Journal.Lock() // Lock for reading during pretty-printing
	defer p.Journal.Unlock()

	var sb strings.Builder
	sb.WriteString("SAGA JOURNAL:\n")
	direction := "forward"
	if p.Journal.unwinding {
		direction = "unwinding"
	}
	sb.WriteString(fmt.Sprintf("direction: %s\n", direction))
	sb.WriteString(fmt.Sprintf("events (%d total):\n", len(p.Journal.events)))
	for i, event := range p.Journal.events {
		sb.WriteString(fmt.Sprintf("%03d %s\n", i+1, event.String()))
	}
	sb.WriteString("steps:\n")
	p.Journal.stepStatus.Scan(func(step string, status CompensationStatus) bool {
		sb.WriteString(fmt.Sprintf("  %s [%s]\n", step, status))
		return true
	})
	return sb.String()
}
