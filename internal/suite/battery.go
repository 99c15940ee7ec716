package suite

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// FullCharge is the state of charge of a full battery.
const FullCharge = 100

// BatteryTest checks that the battery charged between construction and
// execution, or is full.
type BatteryTest struct {
	*devicetest.Base
	Timing

	dut        device.Device
	baseline   device.Battery
	baselineAt time.Time
}

var _ devicetest.Test = (*BatteryTest)(nil)

// NewBatteryTest reads the baseline fuel gauge. The test should be built
// when DUTs are first connected so the charge has time to rise.
func NewBatteryTest(ctx context.Context, dut device.Device, timing Timing) (*BatteryTest, error) {
	baseline, err := device.FuelGauge(ctx, dut)
	if err != nil {
		return nil, fmt.Errorf("reading baseline battery: %w", err)
	}

	return &BatteryTest{
		Base:       devicetest.NewBase(config.TestBattery, CodeBattery, dut),
		Timing:     timing,
		dut:        dut,
		baseline:   baseline,
		baselineAt: timing.now(),
	}, nil
}

// Baseline returns the reading taken at construction.
func (t *BatteryTest) Baseline() device.Battery {
	return t.baseline
}

// Run implements devicetest.Test.
func (t *BatteryTest) Run(ctx context.Context) ([]devicetest.AssertionResult, error) {
	reading, err := device.FuelGauge(ctx, t.dut)
	if err != nil {
		return nil, fmt.Errorf("reading battery: %w", err)
	}

	elapsed := t.now().Sub(t.baselineAt)
	passed := reading.StateOfCharge > t.baseline.StateOfCharge || reading.StateOfCharge == FullCharge

	return []devicetest.AssertionResult{
		devicetest.NewResult("battery_stats", passed, devicetest.Fields(
			"initial_percentage", t.baseline.StateOfCharge,
			"time_since_measurement", elapsed.Seconds(),
			"percentage", reading.StateOfCharge,
			"voltage", reading.Voltage,
			"temperature", reading.Temperature,
		)),
	}, nil
}
