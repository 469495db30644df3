package sagascope

import (
	"context"
)

// StepFunc is one forward step in an operation chain.
type StepFunc func(ctx context.Context) error

type operationStep struct {
	name string
	fn   StepFunc
}

// Operation sequences forward steps and resolves a lazily created saga
// scope from the chain's outcome: Commit exactly once on overall success,
// Rollback exactly once on a step failure or a recovered fault.
//
// The scope is not constructed until a step first asks for it through
// ScopeFrom or Register; purely non-compensating steps never force scope
// creation.
type Operation struct {
	name      string
	steps     []operationStep
	scopeOpts []ScopeOption
	scope     *Scope
}

// OperationOption configures an Operation at construction.
type OperationOption func(*Operation)

// WithScopeOptions forwards scope options to the lazily created scope.
func WithScopeOptions(opts ...ScopeOption) OperationOption {
	return func(o *Operation) {
		o.scopeOpts = append(o.scopeOpts, opts...)
	}
}

// NewOperation creates a named, empty operation chain.
func NewOperation(name string, opts ...OperationOption) *Operation {
	o := &Operation{name: name}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Step appends a named forward step and returns the operation for chaining.
func (o *Operation) Step(name string, fn StepFunc) *Operation {
	o.steps = append(o.steps, operationStep{name: name, fn: fn})
	return o
}

// Scope returns the saga scope created during Run, or nil if no step
// requested one. Useful for inspecting counters and compensation errors
// after a rollback.
func (o *Operation) Scope() *Scope {
	return o.scope
}

// Run executes the forward steps in order. A step error or recovered panic
// stops the chain, triggers rollback of the scope (if one was created), and
// is returned wrapped in an *OperationError; a panic is never re-raised.
// On success the scope, if created, is committed.
func (o *Operation) Run(ctx context.Context) error {
	ctx = withScopeHolder(ctx, o)

	for _, step := range o.steps {
		err := o.runStep(ctx, step)
		if err != nil {
			if o.scope != nil {
				// Rollback must not be short-circuited by the cancellation
				// that failed the forward chain.
				o.scope.Rollback(context.WithoutCancel(ctx))
			}
			return &OperationError{Operation: o.name, Step: step.name, Err: err}
		}
	}

	if o.scope != nil {
		return o.scope.Commit(ctx)
	}
	return nil
}

// runStep invokes one forward step, converting a panic into an error value.
func (o *Operation) runStep(ctx context.Context, step operationStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return step.fn(ctx)
}

// scopeHolderKey carries the owning operation through the step context so
// scope creation can stay lazy.
type scopeHolderKey struct{}

func withScopeHolder(ctx context.Context, o *Operation) context.Context {
	return context.WithValue(ctx, scopeHolderKey{}, o)
}

// ScopeFrom returns the saga scope for the running operation, creating it on
// first use. The second return is false when the context does not belong to
// an operation chain.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	o, ok := ctx.Value(scopeHolderKey{}).(*Operation)
	if !ok {
		return nil, false
	}
	if o.scope == nil {
		o.scope = NewScope(o.scopeOpts...)
	}
	return o.scope, true
}

// Register registers a compensation on the running operation's scope,
// creating the scope on first use. It is the usual way a forward step records
// its undo action immediately after its side effect succeeds.
func Register(ctx context.Context, action CompensationFunc, opts ...RegisterOption) error {
	scope, ok := ScopeFrom(ctx)
	if !ok {
		return ErrNoOperation
	}
	return scope.RegisterCompensation(action, opts...)
}
