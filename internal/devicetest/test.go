// Package devicetest provides the test orchestration core of the station:
// result types, progress observers, the setup/execute/teardown lifecycle and
// the sequential test handler.
package devicetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TeardownTimeout bounds teardown when it runs after cancellation.
const TeardownTimeout = 60 * time.Second

// State is the lifecycle state of a test.
type State int

const (
	// StateCreated is the initial state.
	StateCreated State = iota
	// StatePreTest is set while setup runs.
	StatePreTest
	// StateExecuting is set while measurements run.
	StateExecuting
	// StatePostTest is set while teardown runs.
	StatePostTest
	// StateCompleted means every phase returned without fault.
	StateCompleted
	// StateFaulted means a phase raised a fault.
	StateFaulted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePreTest:
		return "pre_test"
	case StateExecuting:
		return "executing"
	case StatePostTest:
		return "post_test"
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Device is anything the engine can run a test against. The engine only
// needs a label; the device package adds the command surface.
type Device interface {
	Label() string
}

// Test is a single device test. Implementations embed *Base, which supplies
// identity, observers and lifecycle state along with no-op PreTest and
// PostTest hooks.
type Test interface {
	Name() string
	ErrorCode() string
	Devices() []Device
	Attach(o Observer)
	Detach(o Observer)
	Notify(msg Message)
	State() State

	PreTest(ctx context.Context) error
	Run(ctx context.Context) ([]AssertionResult, error)
	PostTest(ctx context.Context) error

	setState(s State)
}

// Base carries the shared parts of every test.
type Base struct {
	Subject

	name      string
	errorCode string
	devices   []Device

	stateMu sync.RWMutex
	state   State
}

// NewBase creates the embeddable test base.
func NewBase(name, errorCode string, devices ...Device) *Base {
	return &Base{
		name:      name,
		errorCode: errorCode,
		devices:   devices,
		state:     StateCreated,
	}
}

// Name returns the test name.
func (b *Base) Name() string { return b.name }

// ErrorCode returns the letter reported when the test fails.
func (b *Base) ErrorCode() string { return b.errorCode }

// Devices returns the devices the test touches.
func (b *Base) Devices() []Device { return b.devices }

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()

	return b.state
}

func (b *Base) setState(s State) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	b.state = s
}

// PreTest is a no-op setup.
func (b *Base) PreTest(_ context.Context) error { return nil }

// PostTest is a no-op teardown.
func (b *Base) PostTest(_ context.Context) error { return nil }

// Running emits an in-progress message from this test.
func (b *Base) Running(content string) {
	b.Notify(NewMessage(StatusRunning, b.name, content))
}

// Runningf emits a formatted in-progress message from this test.
func (b *Base) Runningf(format string, args ...interface{}) {
	b.Running(fmt.Sprintf(format, args...))
}

// Failing emits a fail message without ending the test.
func (b *Base) Failing(content string) {
	b.Notify(NewMessage(StatusFail, b.name, content))
}

// Execute runs t through pre-test, execute and post-test and always returns
// an outcome. A setup fault skips the remaining phases. Teardown runs whenever
// setup succeeded, including after an execute fault or cancellation.
func Execute(ctx context.Context, t Test) Outcome {
	started := time.Now()

	t.Notify(NewMessage(StatusRunning, t.Name(), fmt.Sprintf("Starting %s", t.Name())))

	outcome := Outcome{
		Name:    t.Name(),
		Started: started,
	}

	t.setState(StatePreTest)

	if err := runPhase(ctx, PhasePreTest, t.PreTest); err != nil {
		return finish(t, outcome, nil, err, PhasePreTest)
	}

	t.setState(StateExecuting)

	var assertions []AssertionResult

	execErr := runPhase(ctx, PhaseExecute, func(ctx context.Context) error {
		results, err := t.Run(ctx)
		assertions = results

		return err
	})

	t.setState(StatePostTest)

	teardownCtx := ctx
	if ctx.Err() != nil || execErr != nil {
		var cancel context.CancelFunc

		teardownCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), TeardownTimeout)
		defer cancel()
	}

	teardownErr := runPhase(teardownCtx, PhasePostTest, t.PostTest)

	switch {
	case execErr != nil && teardownErr != nil:
		return finish(t, outcome, assertions, errors.Join(execErr, teardownErr), PhaseExecute)
	case execErr != nil:
		return finish(t, outcome, assertions, execErr, PhaseExecute)
	case teardownErr != nil:
		return finish(t, outcome, assertions, teardownErr, PhasePostTest)
	default:
		return finish(t, outcome, assertions, nil, PhaseNone)
	}
}

func finish(t Test, outcome Outcome, assertions []AssertionResult, fault error, phase Phase) Outcome {
	outcome.Assertions = assertions
	outcome.Fault = fault
	outcome.FaultPhase = phase
	outcome.Passed = fault == nil && allPassed(assertions)
	outcome.ErrorCode = ""

	if !outcome.Passed {
		outcome.ErrorCode = outcomeErrorCode(t.ErrorCode(), assertions, fault)
	}

	if fault != nil {
		t.setState(StateFaulted)
	} else {
		t.setState(StateCompleted)
	}

	outcome.State = t.State()
	outcome.Duration = time.Since(outcome.Started)

	msg := NewMessage(StatusPass, t.Name(), fmt.Sprintf("%s passed", t.Name()))

	if !outcome.Passed {
		msg = NewMessage(StatusFail, t.Name(), fmt.Sprintf("%s failed", t.Name()))

		if fault != nil {
			msg.Content = fmt.Sprintf("%s failed: %v", t.Name(), fault)
			msg.Fault = fault
		}
	}

	t.Notify(msg)

	return outcome
}

// runPhase calls fn, converting panics, cancellation and plain errors into
// a *PhaseError for the given phase.
func runPhase(ctx context.Context, phase Phase, fn func(context.Context) error) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &PhaseError{Phase: phase, Err: errors.Join(ErrCanceled, ctxErr)}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &PhaseError{Phase: phase, Err: fmt.Errorf("panic: %v", r)} //nolint:err113 // panic value is only known at runtime
		}
	}()

	if err = fn(ctx); err == nil {
		return nil
	}

	if ctx.Err() != nil && IsCanceled(err) && !errors.Is(err, ErrCanceled) {
		err = errors.Join(ErrCanceled, err)
	}

	var phaseErr *PhaseError
	if errors.As(err, &phaseErr) {
		return err
	}

	return &PhaseError{Phase: phase, Err: err}
}
