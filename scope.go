package sagascope

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Scope owns the ordered list of registered compensations for one saga
// instance. Forward steps register their undo actions as they succeed; the
// driver resolves the scope exactly once with Commit or Rollback.
//
// A Scope is driven from the single goroutine running the forward steps.
// Registration is not synchronized; callers that register from multiple
// goroutines must serialize externally.
type Scope struct {
	sagaContext *SagaContext
	logger      *slog.Logger

	// correlationID is staged by WithCorrelationID and applied to the
	// context after all options, so option order does not matter.
	correlationID string

	descriptors []*CompensationDescriptor
	handlers    []EventHandler

	committed  bool
	rolledBack bool

	// registrationCount is the high-water mark of registrations, retained
	// after Commit discards the descriptor list.
	registrationCount int
	executedCount     int
	compErrors        []*CompensationError
}

// ScopeOption configures a Scope at construction.
type ScopeOption func(*Scope)

// WithContext supplies a caller-constructed SagaContext.
func WithContext(sc *SagaContext) ScopeOption {
	return func(s *Scope) {
		s.sagaContext = sc
	}
}

// WithCorrelationID sets the correlation identifier on the scope's context,
// regardless of where a WithContext option appears in the argument list.
func WithCorrelationID(id string) ScopeOption {
	return func(s *Scope) {
		s.correlationID = id
	}
}

// WithLogger sets the logger used for rollback progress and handler
// failures. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ScopeOption {
	return func(s *Scope) {
		s.logger = logger
	}
}

// NewScope creates an unresolved scope with a fresh SagaContext.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{
		sagaContext: NewSagaContext(),
		logger:      slog.Default(),
		descriptors: make([]*CompensationDescriptor, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.correlationID != "" {
		s.sagaContext.SetCorrelationID(s.correlationID)
	}
	return s
}

// RegisterOption configures a single compensation registration.
type RegisterOption func(*CompensationDescriptor) error

// WithStepName labels the compensation. An explicitly empty name is a
// precondition violation; omitting the option yields an auto-generated name.
func WithStepName(name string) RegisterOption {
	return func(d *CompensationDescriptor) error {
		if name == "" {
			return ErrEmptyStepName
		}
		d.StepName = name
		return nil
	}
}

// WithCondition gates the compensation at rollback time. The predicate is
// evaluated only during rollback; returning false skips the compensation.
func WithCondition(cond ConditionFunc) RegisterOption {
	return func(d *CompensationDescriptor) error {
		d.condition = cond
		return nil
	}
}

// RegisterCompensation appends a pending compensation to the scope and emits
// a Registered event synchronously before returning. It must be called from
// the goroutine driving the forward steps.
func (s *Scope) RegisterCompensation(action CompensationFunc, opts ...RegisterOption) error {
	if action == nil {
		return ErrNilAction
	}
	if s.committed || s.rolledBack {
		return ErrScopeResolved
	}

	descriptor := &CompensationDescriptor{
		RegisteredAt: time.Now(),
		Status:       StatusPending,
		action:       action,
	}
	for _, opt := range opts {
		if err := opt(descriptor); err != nil {
			return err
		}
	}
	if descriptor.StepName == "" {
		descriptor.StepName = fmt.Sprintf("Step%d", s.registrationCount)
	}

	s.descriptors = append(s.descriptors, descriptor)
	s.registrationCount++

	s.emit(Event{
		StepName:  descriptor.StepName,
		Type:      EventRegistered,
		Timestamp: descriptor.RegisteredAt,
		Context:   s.sagaContext,
	})

	return nil
}

// Subscribe adds an event handler. Handlers are invoked synchronously in
// subscription order; a panicking handler is recovered and logged and does
// not affect descriptor state or delivery to later handlers.
func (s *Scope) Subscribe(handler EventHandler) {
	if handler == nil {
		return
	}
	s.handlers = append(s.handlers, handler)
}

// Commit marks the scope committed and discards all descriptors; their undo
// actions are no longer needed. The registration high-water mark is retained
// for audit. Committing an already-resolved scope is a no-op.
func (s *Scope) Commit(ctx context.Context) error {
	if s.committed || s.rolledBack {
		return nil
	}

	s.committed = true
	s.descriptors = nil
	s.logger.Debug("saga committed",
		"saga_id", s.sagaContext.ID(),
		"compensations_discarded", s.registrationCount)
	return nil
}

// Rollback marks the scope rolled back and executes the registered
// compensations in the reverse of their registration order. Compensation
// failures are captured per descriptor and never returned; the loop always
// visits every descriptor. Rolling back an already-resolved scope is a
// no-op, so Committed and RolledBack are never both true.
func (s *Scope) Rollback(ctx context.Context) error {
	if s.committed || s.rolledBack {
		return nil
	}

	s.rolledBack = true
	s.logger.Info("rolling back saga",
		"saga_id", s.sagaContext.ID(),
		"compensations", len(s.descriptors))

	for i := len(s.descriptors) - 1; i >= 0; i-- {
		s.executeCompensation(ctx, s.descriptors[i])
	}

	if len(s.compErrors) > 0 {
		s.logger.Warn("saga rolled back with compensation failures",
			"saga_id", s.sagaContext.ID(),
			"executed", s.executedCount,
			"failures", len(s.compErrors))
	}
	return nil
}

// executeCompensation runs one descriptor through its terminal state:
// Pending -> Skipped, or Pending -> Executing -> Succeeded/Failed.
func (s *Scope) executeCompensation(ctx context.Context, d *CompensationDescriptor) {
	// A broken condition counts as a failed attempt; the step still goes
	// through Executing so the event grammar per descriptor stays
	// Started then Failed.
	var condErr error
	if d.condition != nil {
		run, err := d.condition(ctx)
		if err != nil {
			condErr = ConditionFailed(err)
		} else if !run {
			d.Status = StatusSkipped
			s.logger.Debug("compensation skipped", "step", d.StepName)
			s.emit(Event{
				StepName:  d.StepName,
				Type:      EventSkipped,
				Timestamp: time.Now(),
				Context:   s.sagaContext,
			})
			return
		}
	}

	d.Status = StatusExecuting
	d.ExecutedAt = time.Now()
	s.logger.Info("compensating step", "step", d.StepName)
	s.emit(Event{
		StepName:  d.StepName,
		Type:      EventStarted,
		Timestamp: d.ExecutedAt,
		Context:   s.sagaContext,
	})

	err := condErr
	if err == nil {
		err = d.action(ctx)
	}
	duration := time.Since(d.ExecutedAt)

	if err != nil {
		s.recordFailure(d, d.ExecutedAt, duration, err)
		return
	}

	d.Status = StatusSucceeded
	d.ExecutionDuration = duration
	s.executedCount++
	s.emit(Event{
		StepName:  d.StepName,
		Type:      EventSucceeded,
		Timestamp: time.Now(),
		Duration:  duration,
		Context:   s.sagaContext,
	})
}

// recordFailure captures a failed attempt and keeps the loop going.
func (s *Scope) recordFailure(d *CompensationDescriptor, executedAt time.Time, duration time.Duration, err error) {
	d.Status = StatusFailed
	d.ExecutedAt = executedAt
	d.ExecutionDuration = duration
	d.ExecutionError = err
	s.executedCount++

	compErr := &CompensationError{StepName: d.StepName, Err: err}
	s.compErrors = append(s.compErrors, compErr)

	s.logger.Warn("compensation failed", "step", d.StepName, "error", err)
	s.emit(Event{
		StepName:  d.StepName,
		Type:      EventFailed,
		Timestamp: time.Now(),
		Err:       err,
		Duration:  duration,
		Context:   s.sagaContext,
	})
}

// emit delivers an event to every subscriber, isolating handler panics so a
// bad subscriber cannot corrupt registration or rollback.
func (s *Scope) emit(event Event) {
	for _, handler := range s.handlers {
		s.deliver(handler, event)
	}
}

func (s *Scope) deliver(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("event handler panicked",
				"step", event.StepName,
				"event", event.Type.String(),
				"panic", r)
		}
	}()
	handler(event)
}

// Committed reports whether the scope was resolved by Commit.
func (s *Scope) Committed() bool {
	return s.committed
}

// RolledBack reports whether the scope was resolved by Rollback.
func (s *Scope) RolledBack() bool {
	return s.rolledBack
}

// CompensationCount returns the total number of registrations, retained even
// after Commit discards the descriptor list.
func (s *Scope) CompensationCount() int {
	return s.registrationCount
}

// ExecutedCompensationCount returns the number of compensation attempts made
// during rollback. Skipped compensations are not counted.
func (s *Scope) ExecutedCompensationCount() int {
	return s.executedCount
}

// CompensationErrors returns the captured failures in rollback order.
func (s *Scope) CompensationErrors() []*CompensationError {
	return append([]*CompensationError(nil), s.compErrors...)
}

// Context returns the scope's SagaContext.
func (s *Scope) Context() *SagaContext {
	return s.sagaContext
}

// Descriptors returns snapshot copies of the registered descriptors for
// inspection; mutating the copies has no effect on the scope.
func (s *Scope) Descriptors() []CompensationDescriptor {
	snapshot := make([]CompensationDescriptor, len(s.descriptors))
	for i, d := range s.descriptors {
		snapshot[i] = *d
	}
	return snapshot
}
