package devicetest

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler runs an ordered list of tests sequentially against one DUT and
// forwards every test message to its own observers.
type Handler struct {
	Subject

	tests      []Test
	stopOnFail bool
	label      string
	log        logrus.FieldLogger
	shared     []sharedDevice
}

type sharedDevice struct {
	device Device
	lock   sync.Locker
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithStopOnFail stops execution after the first test that does not pass.
func WithStopOnFail(stop bool) HandlerOption {
	return func(h *Handler) {
		h.stopOnFail = stop
	}
}

// WithLogger sets the handler's logger.
func WithLogger(log logrus.FieldLogger) HandlerOption {
	return func(h *Handler) {
		h.log = log
	}
}

// WithLabel sets the label stamped onto forwarded messages and outcomes.
func WithLabel(label string) HandlerOption {
	return func(h *Handler) {
		h.label = label
	}
}

// WithSharedDevice registers a device used by several handlers at once. The
// lock is held for the whole execution of any test that touches the device.
func WithSharedDevice(device Device, lock sync.Locker) HandlerOption {
	return func(h *Handler) {
		h.shared = append(h.shared, sharedDevice{device: device, lock: lock})
	}
}

// NewHandler creates a handler for the given tests.
func NewHandler(tests []Test, opts ...HandlerOption) *Handler {
	h := &Handler{
		tests: tests,
		log:   logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.log = h.log.WithField("component", "test_handler")
	if h.label != "" {
		h.log = h.log.WithField("dut", h.label)
	}

	h.SetLogger(h.log)

	return h
}

// Tests returns the handler's tests in execution order.
func (h *Handler) Tests() []Test {
	return h.tests
}

// Label returns the handler's label.
func (h *Handler) Label() string {
	return h.label
}

// ExecuteTests runs the tests in order. With stop-on-fail the first failing
// test ends the run and only the outcomes so far are returned. A done context
// skips the tests that have not started.
func (h *Handler) ExecuteTests(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(h.tests))

	forward := NewFuncObserver(func(msg Message) error {
		if msg.Device == "" {
			msg.Device = h.label
		}

		h.Notify(msg)

		return nil
	})

	for i, test := range h.tests {
		if ctx.Err() != nil {
			h.log.WithField("remaining", len(h.tests)-i).Warn("Run canceled, skipping remaining tests")
			break
		}

		test.Attach(forward)
		outcome := h.execute(ctx, test)
		test.Detach(forward)

		outcome.Device = h.label
		outcomes = append(outcomes, outcome)

		entry := h.log.WithFields(logrus.Fields{
			"test":     outcome.Name,
			"passed":   outcome.Passed,
			"duration": outcome.Duration,
		})

		if outcome.Fault != nil {
			entry = entry.WithError(outcome.Fault).WithField("phase", outcome.FaultPhase)
		}

		entry.Debug("Test finished")

		if h.stopOnFail && !outcome.Passed {
			h.log.WithField("test", outcome.Name).Info("Stopping on first failure")
			break
		}
	}

	return outcomes
}

func (h *Handler) execute(ctx context.Context, test Test) Outcome {
	for _, lock := range h.locksFor(test) {
		lock.Lock()
		defer lock.Unlock()
	}

	return Execute(ctx, test)
}

func (h *Handler) locksFor(test Test) []sync.Locker {
	locks := make([]sync.Locker, 0, len(h.shared))

	for _, shared := range h.shared {
		for _, d := range test.Devices() {
			if d == shared.device {
				locks = append(locks, shared.lock)
				break
			}
		}
	}

	return locks
}
