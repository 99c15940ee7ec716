package suite

import (
	"context"
	"errors"
	"time"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// ErrMockRaised is the fault raised by MockRaisesTest.
var ErrMockRaised = errors.New("mock test raised")

// MockTimerTest waits a fixed time in every phase and passes.
type MockTimerTest struct {
	*devicetest.Base
	Timing

	pre, exec, post time.Duration
}

// NewMockTimerTest creates a timer mock with per-phase durations.
func NewMockTimerTest(name string, pre, exec, post time.Duration, devices ...devicetest.Device) *MockTimerTest {
	return &MockTimerTest{
		Base: devicetest.NewBase(name, CodeMock, devices...),
		pre:  pre,
		exec: exec,
		post: post,
	}
}

// PreTest implements devicetest.Test.
func (t *MockTimerTest) PreTest(ctx context.Context) error {
	t.Runningf("Pre-test waiting %s", t.pre)
	return t.sleep(ctx, t.pre)
}

// Run implements devicetest.Test.
func (t *MockTimerTest) Run(ctx context.Context) ([]devicetest.AssertionResult, error) {
	t.Runningf("Executing for %s", t.exec)

	if err := t.sleep(ctx, t.exec); err != nil {
		return nil, err
	}

	return []devicetest.AssertionResult{
		devicetest.NewResult("timer_elapsed", true, devicetest.Fields("seconds", t.exec.Seconds())),
	}, nil
}

// PostTest implements devicetest.Test.
func (t *MockTimerTest) PostTest(ctx context.Context) error {
	t.Runningf("Post-test waiting %s", t.post)
	return t.sleep(ctx, t.post)
}

// MockRetriesTest fails until a given attempt, bounded by a retry budget.
type MockRetriesTest struct {
	*devicetest.Base
	Timing

	retries   int
	succeedOn int
	interval  time.Duration
}

// NewMockRetriesTest creates a retries mock that succeeds on attempt
// succeedOn out of retries.
func NewMockRetriesTest(name string, retries, succeedOn int, devices ...devicetest.Device) *MockRetriesTest {
	return &MockRetriesTest{
		Base:      devicetest.NewBase(name, CodeMock, devices...),
		retries:   retries,
		succeedOn: succeedOn,
		interval:  100 * time.Millisecond,
	}
}

// Run implements devicetest.Test.
func (t *MockRetriesTest) Run(ctx context.Context) ([]devicetest.AssertionResult, error) {
	var used int

	err := devicetest.Retry(ctx, t.retries, t.interval, t.sleepFunc(), func(attempt int) error {
		used = attempt
		t.Runningf("Attempt %d of %d", attempt, t.retries)

		if attempt < t.succeedOn {
			return errors.New("mock attempt failed")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return []devicetest.AssertionResult{
		devicetest.NewResult("retries", true, devicetest.Fields(
			"attempts", used,
			"allowed", t.retries,
		)),
	}, nil
}

// MockRaisesTest faults during execute.
type MockRaisesTest struct {
	*devicetest.Base
}

// NewMockRaisesTest creates a faulting mock.
func NewMockRaisesTest(name string, devices ...devicetest.Device) *MockRaisesTest {
	return &MockRaisesTest{Base: devicetest.NewBase(name, CodeMock, devices...)}
}

// Run implements devicetest.Test.
func (t *MockRaisesTest) Run(_ context.Context) ([]devicetest.AssertionResult, error) {
	t.Running("About to raise")
	return nil, ErrMockRaised
}

// MockTests builds the five-test mock sequence used to exercise the station
// without hardware.
func MockTests(reference, dut device.Device, timing Timing) []devicetest.Test {
	const phase = time.Second

	timer := func(name string) *MockTimerTest {
		t := NewMockTimerTest(name, phase, phase, phase, reference, dut)
		t.Timing = timing

		return t
	}

	retries := NewMockRetriesTest("mock_retries", 5, 4, reference, dut)
	retries.Timing = timing

	return []devicetest.Test{
		timer("mock_timer_1"),
		retries,
		timer("mock_timer_2"),
		NewMockRaisesTest("mock_raises", reference, dut),
		timer("mock_timer_3"),
	}
}

// MockFactory returns a handler over MockTests that runs every test.
func MockFactory(reference, dut device.Device, timing Timing, opts ...devicetest.HandlerOption) *devicetest.Handler {
	opts = append([]devicetest.HandlerOption{devicetest.WithStopOnFail(false), devicetest.WithLabel(dut.Label())}, opts...)

	return devicetest.NewHandler(MockTests(reference, dut, timing), opts...)
}
