package suite

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/harness"
	"github.com/ethpandaops/rf-ate/internal/rfid"
)

// MeterSource opens the power meter observing the given DUT.
type MeterSource func(ctx context.Context, dut device.Device) (PowerMeter, error)

// Factory builds the configured test sequence for each DUT.
type Factory struct {
	cfg       *config.Config
	log       logrus.FieldLogger
	meters    MeterSource
	allocator rfid.Allocator
	timing    Timing

	// meterMu serializes meter use across DUTs sharing one harness.
	meterMu sync.Mutex
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithMeterSource replaces the serial harness as the power meter.
func WithMeterSource(source MeterSource) FactoryOption {
	return func(f *Factory) {
		f.meters = source
	}
}

// WithAllocator replaces the HTTP RFID allocator.
func WithAllocator(allocator rfid.Allocator) FactoryOption {
	return func(f *Factory) {
		f.allocator = allocator
	}
}

// WithTiming sets the clock used by the built tests.
func WithTiming(timing Timing) FactoryOption {
	return func(f *Factory) {
		f.timing = timing
	}
}

// NewFactory creates a factory for the given configuration.
func NewFactory(cfg *config.Config, log logrus.FieldLogger, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg: cfg,
		log: log.WithField("component", "test_factory"),
	}

	f.meters = f.serialMeter
	f.allocator = rfid.NewClient(cfg.Tests.RFIDAssignment.URL, cfg.Tests.RFIDAssignment.Timeout, log)

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Build creates the tests for one DUT in sequence order.
func (f *Factory) Build(ctx context.Context, reference, dut device.Device) ([]devicetest.Test, error) {
	tests := make([]devicetest.Test, 0, len(f.cfg.Sequence))

	for _, name := range f.cfg.Sequence {
		test, err := f.build(ctx, name, reference, dut)
		if err != nil {
			return nil, fmt.Errorf("building %s for %s: %w", name, dut.Label(), err)
		}

		test.SetLogger(f.log.WithField("dut", dut.Label()))
		tests = append(tests, test)
	}

	return tests, nil
}

// Handler builds the tests for one DUT and wraps them in a handler that
// serializes access to the reference device.
func (f *Factory) Handler(
	ctx context.Context,
	reference, dut device.Device,
	referenceLock sync.Locker,
	opts ...devicetest.HandlerOption,
) (*devicetest.Handler, error) {
	tests, err := f.Build(ctx, reference, dut)
	if err != nil {
		return nil, err
	}

	opts = append([]devicetest.HandlerOption{
		devicetest.WithStopOnFail(f.cfg.ShouldStopOnFail()),
		devicetest.WithLabel(dut.Label()),
		devicetest.WithLogger(f.log),
		devicetest.WithSharedDevice(reference, referenceLock),
	}, opts...)

	return devicetest.NewHandler(tests, opts...), nil
}

type buildableTest interface {
	devicetest.Test
	SetLogger(logrus.FieldLogger)
}

func (f *Factory) build(ctx context.Context, name string, reference, dut device.Device) (buildableTest, error) {
	tests := f.cfg.Tests

	switch name {
	case config.TestFirmwareVersion:
		return NewFirmwareVersionTest(dut, tests.Firmware.MinMCUVersion, tests.Firmware.MinNordicVersion)

	case config.TestNVM:
		address, expected, err := tests.NVM.Resolve()
		if err != nil {
			return nil, devicetest.Configf("nvm: %v", err)
		}

		return NewNVMTest(dut, address, expected)

	case config.TestConnectionStats:
		test, err := NewConnectionStatsTest(dut, reference, f.cfg.Gender, ConnectionStatsParams{
			DurationShort: tests.ConnectionStats.DurationShort,
			DurationLong:  tests.ConnectionStats.DurationLong,
			MinRSSI:       tests.ConnectionStats.MinRSSI,
			AllowedErrors: tests.ConnectionStats.AllowedErrors,
			Ch2Source:     tests.ConnectionStats.Ch2Source,
		}, f.log)
		if err != nil {
			return nil, err
		}

		test.Timing = f.timing

		return test, nil

	case config.TestRFPower:
		channels, err := tests.RFPower.ResolveChannels()
		if err != nil {
			return nil, devicetest.Configf("rf power: %v", err)
		}

		antennae, err := tests.RFPower.ResolveAntennae()
		if err != nil {
			return nil, devicetest.Configf("rf power: %v", err)
		}

		test, err := NewRFPowerTest(dut, f.meterOpener(dut), channels, antennae, f.log)
		if err != nil {
			return nil, err
		}

		test.Timing = f.timing

		return test, nil

	case config.TestBattery:
		return NewBatteryTest(ctx, dut, f.timing)

	case config.TestRFIDAssignment:
		return NewRFIDAssignmentTest(dut, f.allocator, tests.RFIDAssignment.ExpectedFirstNibble)

	default:
		return nil, devicetest.Configf("unknown test %q", name)
	}
}

// meterOpener binds the meter source to dut and holds the shared meter
// until the opened meter is closed.
func (f *Factory) meterOpener(dut device.Device) MeterOpener {
	return func(ctx context.Context) (PowerMeter, error) {
		f.meterMu.Lock()

		meter, err := f.meters(ctx, dut)
		if err != nil {
			f.meterMu.Unlock()
			return nil, err
		}

		return &lockedMeter{PowerMeter: meter, unlock: f.meterMu.Unlock}, nil
	}
}

func (f *Factory) serialMeter(_ context.Context, _ device.Device) (PowerMeter, error) {
	return harness.Open(harness.DefaultConfig(f.cfg.ArduinoPort), f.log)
}

// lockedMeter releases the shared meter lock once on Close.
type lockedMeter struct {
	PowerMeter

	once   sync.Once
	unlock func()
}

func (m *lockedMeter) Close() error {
	err := m.PowerMeter.Close()
	m.once.Do(m.unlock)

	return err
}
