package devicetest

import (
	"context"
	"errors"
	"fmt"
)

// Phase identifies the lifecycle phase a fault occurred in.
type Phase string

const (
	// PhaseNone is used when no fault occurred.
	PhaseNone Phase = ""
	// PhasePreTest is the setup phase.
	PhasePreTest Phase = "pre_test"
	// PhaseExecute is the measurement phase.
	PhaseExecute Phase = "execute"
	// PhasePostTest is the teardown phase.
	PhasePostTest Phase = "post_test"
)

// Sentinel errors for fault classification.
var (
	ErrSetup           = errors.New("setup fault")
	ErrExecute         = errors.New("execute fault")
	ErrTeardown        = errors.New("teardown fault")
	ErrConfiguration   = errors.New("configuration fault")
	ErrCanceled        = errors.New("test canceled")
	ErrRetriesExceeded = errors.New("retries exceeded")
)

// PhaseError wraps a fault with the phase it surfaced in. It matches both the
// phase sentinel and the underlying error under errors.Is.
type PhaseError struct {
	Phase Phase
	Err   error
}

// Error implements the error interface.
func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

// Unwrap exposes the phase sentinel and the underlying error.
func (e *PhaseError) Unwrap() []error {
	return []error{phaseSentinel(e.Phase), e.Err}
}

func phaseSentinel(p Phase) error {
	switch p {
	case PhasePreTest:
		return ErrSetup
	case PhasePostTest:
		return ErrTeardown
	default:
		return ErrExecute
	}
}

// Kind classifies err as one of the sentinel fault kinds. It returns nil for
// a nil error and ErrExecute for anything unclassified.
func Kind(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCanceled):
		return ErrCanceled
	case errors.Is(err, ErrConfiguration):
		return ErrConfiguration
	case errors.Is(err, ErrSetup):
		return ErrSetup
	case errors.Is(err, ErrTeardown):
		return ErrTeardown
	default:
		return ErrExecute
	}
}

// Configf returns a configuration fault with a formatted message.
func Configf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether err stems from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
