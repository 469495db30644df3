package sagascope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRollbackLIFOOrder(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	var executed []string
	register := func(name string) {
		err := scope.RegisterCompensation(func(ctx context.Context) error {
			executed = append(executed, name)
			return nil
		}, WithStepName(name))
		require.NoError(t, err)
	}

	register("A")
	register("B")
	register("C")

	require.NoError(t, scope.Rollback(context.Background()))

	assert.Equal(t, []string{"C", "B", "A"}, executed,
		"compensations should run in reverse registration order")
	assert.Equal(t, 3, scope.ExecutedCompensationCount())
	assert.Empty(t, scope.CompensationErrors())
}

func TestRollbackBestEffortContinuation(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	var attempted []string
	boom := errors.New("release inventory failed")

	require.NoError(t, scope.RegisterCompensation(func(ctx context.Context) error {
		attempted = append(attempted, "refund")
		return nil
	}, WithStepName("refund")))

	require.NoError(t, scope.RegisterCompensation(func(ctx context.Context) error {
		attempted = append(attempted, "release-inventory")
		return boom
	}, WithStepName("release-inventory")))

	require.NoError(t, scope.RegisterCompensation(func(ctx context.Context) error {
		attempted = append(attempted, "void-confirmation")
		return nil
	}, WithStepName("void-confirmation")))

	require.NoError(t, scope.Rollback(context.Background()))

	assert.Equal(t, []string{"void-confirmation", "release-inventory", "refund"}, attempted,
		"a failing compensation must not short-circuit the rest")
	assert.Equal(t, 3, scope.ExecutedCompensationCount())

	compErrors := scope.CompensationErrors()
	require.Len(t, compErrors, 1)
	assert.Equal(t, "release-inventory", compErrors[0].StepName)
	assert.ErrorIs(t, compErrors[0], boom)

	descriptors := scope.Descriptors()
	require.Len(t, descriptors, 3)
	assert.Equal(t, StatusSucceeded, descriptors[0].Status)
	assert.Equal(t, StatusFailed, descriptors[1].Status)
	assert.Equal(t, StatusSucceeded, descriptors[2].Status)
	assert.ErrorIs(t, descriptors[1].ExecutionError, boom)
}

func TestConditionalSkip(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	var events []Event
	scope.Subscribe(func(event Event) {
		events = append(events, event)
	})

	executed := false
	err := scope.RegisterCompensation(func(ctx context.Context) error {
		executed = true
		return nil
	},
		WithStepName("conditional"),
		WithCondition(func(ctx context.Context) (bool, error) {
			return false, nil
		}),
	)
	require.NoError(t, err)

	require.NoError(t, scope.Rollback(context.Background()))

	assert.False(t, executed, "skipped compensation must not run")
	assert.Equal(t, 0, scope.ExecutedCompensationCount(),
		"skips do not count as attempts")

	var skips int
	for _, event := range events {
		if event.Type == EventSkipped {
			skips++
		}
	}
	assert.Equal(t, 1, skips, "exactly one Skipped event")

	descriptors := scope.Descriptors()
	require.Len(t, descriptors, 1)
	assert.Equal(t, StatusSkipped, descriptors[0].Status)
}

func TestConditionTrueExecutes(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	executed := false
	err := scope.RegisterCompensation(func(ctx context.Context) error {
		executed = true
		return nil
	}, WithCondition(func(ctx context.Context) (bool, error) {
		return true, nil
	}))
	require.NoError(t, err)

	require.NoError(t, scope.Rollback(context.Background()))
	assert.True(t, executed)
	assert.Equal(t, 1, scope.ExecutedCompensationCount())
}

func TestConditionErrorCountsAsFailure(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	var events []EventType
	scope.Subscribe(func(event Event) {
		events = append(events, event.Type)
	})

	executed := false
	condErr := errors.New("lookup timed out")
	err := scope.RegisterCompensation(func(ctx context.Context) error {
		executed = true
		return nil
	},
		WithStepName("guarded"),
		WithCondition(func(ctx context.Context) (bool, error) {
			return false, condErr
		}),
	)
	require.NoError(t, err)

	require.NoError(t, scope.Rollback(context.Background()))

	assert.False(t, executed, "action must not run when the condition errors")
	assert.Equal(t, 1, scope.ExecutedCompensationCount())

	compErrors := scope.CompensationErrors()
	require.Len(t, compErrors, 1)
	assert.ErrorIs(t, compErrors[0], condErr)

	descriptors := scope.Descriptors()
	assert.Equal(t, StatusFailed, descriptors[0].Status)

	assert.Equal(t, []EventType{EventRegistered, EventStarted, EventFailed}, events,
		"a failed attempt keeps the per-step event grammar: Started then Failed")
}

func TestCommitClearsState(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	executed := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, scope.RegisterCompensation(func(ctx context.Context) error {
			executed++
			return nil
		}))
	}

	require.NoError(t, scope.Commit(context.Background()))

	assert.True(t, scope.Committed())
	assert.Equal(t, 3, scope.CompensationCount(),
		"historical peak is retained for audit")
	assert.Empty(t, scope.Descriptors())

	// A mistaken rollback after commit executes nothing and does not flip
	// the resolution flags.
	require.NoError(t, scope.Rollback(context.Background()))
	assert.Equal(t, 0, executed)
	assert.Equal(t, 0, scope.ExecutedCompensationCount())
	assert.True(t, scope.Committed())
	assert.False(t, scope.RolledBack())
}

func TestMutualExclusivity(t *testing.T) {
	commitFirst := NewScope(WithLogger(quietLogger()))
	require.NoError(t, commitFirst.Commit(context.Background()))
	require.NoError(t, commitFirst.Rollback(context.Background()))
	assert.True(t, commitFirst.Committed())
	assert.False(t, commitFirst.RolledBack())

	rollbackFirst := NewScope(WithLogger(quietLogger()))
	require.NoError(t, rollbackFirst.Rollback(context.Background()))
	require.NoError(t, rollbackFirst.Commit(context.Background()))
	assert.True(t, rollbackFirst.RolledBack())
	assert.False(t, rollbackFirst.Committed())
}

func TestRollbackIdempotent(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	executed := 0
	require.NoError(t, scope.RegisterCompensation(func(ctx context.Context) error {
		executed++
		return nil
	}))

	require.NoError(t, scope.Rollback(context.Background()))
	require.NoError(t, scope.Rollback(context.Background()))

	assert.Equal(t, 1, executed, "second rollback must not re-execute")
	assert.Equal(t, 1, scope.ExecutedCompensationCount())
}

func TestEventOrderingPerStep(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	var events []Event
	scope.Subscribe(func(event Event) {
		events = append(events, event)
	})

	require.NoError(t, scope.RegisterCompensation(func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	}, WithStepName("only")))

	require.NoError(t, scope.Rollback(context.Background()))

	require.Len(t, events, 3)
	assert.Equal(t, EventRegistered, events[0].Type)
	assert.Equal(t, EventStarted, events[1].Type)
	assert.Equal(t, EventSucceeded, events[2].Type)
	for _, event := range events {
		assert.Equal(t, "only", event.StepName)
		assert.Same(t, scope.Context(), event.Context)
	}
	assert.GreaterOrEqual(t, events[2].Duration, time.Duration(0),
		"Succeeded must carry a non-negative duration")
}

func TestFailedEventCarriesErrorAndDuration(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	var failedEvent *Event
	scope.Subscribe(func(event Event) {
		if event.Type == EventFailed {
			failedEvent = &event
		}
	})

	boom := errors.New("undo exploded")
	require.NoError(t, scope.RegisterCompensation(func(ctx context.Context) error {
		return boom
	}))

	require.NoError(t, scope.Rollback(context.Background()))

	require.NotNil(t, failedEvent)
	assert.ErrorIs(t, failedEvent.Err, boom)
	assert.GreaterOrEqual(t, failedEvent.Duration, time.Duration(0))
}

func TestRegistrationPreconditions(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	err := scope.RegisterCompensation(nil)
	assert.ErrorIs(t, err, ErrNilAction)

	err = scope.RegisterCompensation(func(ctx context.Context) error { return nil },
		WithStepName(""))
	assert.ErrorIs(t, err, ErrEmptyStepName)

	assert.Equal(t, 0, scope.CompensationCount(),
		"rejected registrations must not be recorded")

	require.NoError(t, scope.Commit(context.Background()))
	err = scope.RegisterCompensation(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrScopeResolved)
}

func TestAutoGeneratedStepNames(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, scope.RegisterCompensation(noop))
	require.NoError(t, scope.RegisterCompensation(noop, WithStepName("explicit")))
	require.NoError(t, scope.RegisterCompensation(noop))

	descriptors := scope.Descriptors()
	require.Len(t, descriptors, 3)
	assert.Equal(t, "Step0", descriptors[0].StepName)
	assert.Equal(t, "explicit", descriptors[1].StepName)
	assert.Equal(t, "Step2", descriptors[2].StepName)
}

func TestRegisteredEventEmittedSynchronously(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	var seen []string
	scope.Subscribe(func(event Event) {
		seen = append(seen, fmt.Sprintf("%s:%s", event.StepName, event.Type))
	})

	require.NoError(t, scope.RegisterCompensation(
		func(ctx context.Context) error { return nil },
		WithStepName("first")))

	assert.Equal(t, []string{"first:registered"}, seen,
		"Registered must be delivered before RegisterCompensation returns")
}

func TestHandlerPanicIsolation(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	var delivered []EventType
	scope.Subscribe(func(event Event) {
		panic("bad subscriber")
	})
	scope.Subscribe(func(event Event) {
		delivered = append(delivered, event.Type)
	})

	require.NoError(t, scope.RegisterCompensation(
		func(ctx context.Context) error { return nil }))
	require.NoError(t, scope.Rollback(context.Background()))

	assert.Equal(t, []EventType{EventRegistered, EventStarted, EventSucceeded}, delivered,
		"a panicking handler must not block later handlers or the rollback loop")
	assert.Equal(t, 1, scope.ExecutedCompensationCount())
	assert.Empty(t, scope.CompensationErrors())
}

func TestCancelledCompensationRecordedAsFailed(t *testing.T) {
	scope := NewScope(WithLogger(quietLogger()))

	var attempted []string
	require.NoError(t, scope.RegisterCompensation(func(ctx context.Context) error {
		attempted = append(attempted, "first")
		return nil
	}, WithStepName("first")))
	require.NoError(t, scope.RegisterCompensation(func(ctx context.Context) error {
		attempted = append(attempted, "second")
		return ctx.Err()
	}, WithStepName("second")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, scope.Rollback(ctx))

	assert.Equal(t, []string{"second", "first"}, attempted,
		"cancellation of one compensation must not stop the loop")
	compErrors := scope.CompensationErrors()
	require.Len(t, compErrors, 1)
	assert.ErrorIs(t, compErrors[0], context.Canceled,
		"the cancellation cause stays distinguishable")
}
