package suite

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/harness"
)

const (
	// PowerHigh is the register value of the high continuous-wave level.
	PowerHigh byte = 0x04
	// PowerLow is the register value of the low continuous-wave level.
	PowerLow byte = 0xEC
	// MeasurementSettle is the wait between commanding a power level and
	// reading the meter. Readings taken sooner, or after a full second, are
	// wrong.
	MeasurementSettle = 300 * time.Millisecond

	// PowerOnAttempts bounds the power-state poll after power on.
	PowerOnAttempts = 5
	// PowerOnInterval is the pause between power-state polls.
	PowerOnInterval = time.Second
	// ResetPollAttempts bounds the firmware poll after a reset.
	ResetPollAttempts = 20
	// ResetPollInterval is the pause between post-reset polls.
	ResetPollInterval = time.Second
)

// PowerMeter reads radiated power from the measurement harness.
type PowerMeter interface {
	SetMode(ctx context.Context, mode harness.Mode) error
	RadioPower(ctx context.Context) (float64, error)
	Close() error
}

// MeterOpener opens the power meter for one test execution.
type MeterOpener func(ctx context.Context) (PowerMeter, error)

// RFPowerTest measures the high/low power delta per antenna across channels.
type RFPowerTest struct {
	*devicetest.Base
	Timing

	dut      device.Device
	open     MeterOpener
	channels []device.Channel
	antennae []config.Antenna
	log      logrus.FieldLogger
}

var _ devicetest.Test = (*RFPowerTest)(nil)

// NewRFPowerTest creates the RF power test.
func NewRFPowerTest(
	dut device.Device,
	open MeterOpener,
	channels []device.Channel,
	antennae []config.Antenna,
	log logrus.FieldLogger,
) (*RFPowerTest, error) {
	if open == nil {
		return nil, devicetest.Configf("rf power: no power meter")
	}

	if len(channels) == 0 {
		return nil, devicetest.Configf("rf power: no channels")
	}

	if len(antennae) == 0 {
		return nil, devicetest.Configf("rf power: no antennae")
	}

	return &RFPowerTest{
		Base:     devicetest.NewBase(config.TestRFPower, CodeRFPower, dut),
		dut:      dut,
		open:     open,
		channels: channels,
		antennae: antennae,
		log: log.WithFields(logrus.Fields{
			"component": "rf_power",
			"dut":       dut.Label(),
		}),
	}, nil
}

// PreTest powers the DUT on and polls until it reports on.
func (t *RFPowerTest) PreTest(ctx context.Context) error {
	t.Running("Powering on devices...")

	if err := device.SetSystemState(ctx, t.dut, true); err != nil {
		return fmt.Errorf("powering on: %w", err)
	}

	return devicetest.Retry(ctx, PowerOnAttempts, PowerOnInterval, t.sleepFunc(), func(_ int) error {
		on, err := device.SystemIsOn(ctx, t.dut)
		if err != nil {
			return err
		}

		if !on {
			return fmt.Errorf("%w: %s", ErrPowerOn, t.dut.Label())
		}

		return nil
	})
}

// Run measures every antenna on every channel.
func (t *RFPowerTest) Run(ctx context.Context) ([]devicetest.AssertionResult, error) {
	meter, err := t.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening power meter: %w", err)
	}

	defer func() {
		if err := meter.Close(); err != nil {
			t.log.WithError(err).Warn("Failed to close power meter")
		}
	}()

	if err := meter.SetMode(ctx, harness.ModeMeasure); err != nil {
		return nil, err
	}

	results := make([]devicetest.AssertionResult, 0, len(t.antennae))

	for _, antenna := range t.antennae {
		result, err := t.measureAntenna(ctx, meter, antenna)
		if err != nil {
			return results, err
		}

		results = append(results, result)
	}

	if err := meter.SetMode(ctx, harness.ModePark); err != nil {
		return results, err
	}

	return results, nil
}

func (t *RFPowerTest) measureAntenna(ctx context.Context, meter PowerMeter, antenna config.Antenna) (devicetest.AssertionResult, error) {
	var (
		deltas   = make(stats.Float64Data, 0, len(t.channels))
		channels = devicetest.Fields()
	)

	for _, channel := range t.channels {
		t.Runningf("Testing power high on antennae %s @ %s", antenna.Antenna, channel)

		high, err := t.measureLevel(ctx, meter, channel, antenna.Antenna, PowerHigh)
		if err != nil {
			return devicetest.AssertionResult{}, err
		}

		t.Runningf("Antenna %s power high measured at %.2f dBm", antenna.Antenna, high)
		t.Runningf("Testing power low on antennae %s @ %s", antenna.Antenna, channel)

		low, err := t.measureLevel(ctx, meter, channel, antenna.Antenna, PowerLow)
		if err != nil {
			return devicetest.AssertionResult{}, err
		}

		delta := math.Abs(high - low)
		deltas = append(deltas, delta)

		t.Runningf("Antenna %s power delta measured at %.2f dBm", antenna.Antenna, delta)

		channels.Set(channel.String(), devicetest.Fields(
			"power_high", high,
			"power_low", low,
			"pow_delta", delta,
		))
	}

	mean, err := stats.Mean(deltas)
	if err != nil {
		return devicetest.AssertionResult{}, fmt.Errorf("averaging power deltas: %w", err)
	}

	return devicetest.NewResult(fmt.Sprintf("%s_avg_power", antenna.Antenna), mean > antenna.MinDelta, devicetest.Fields(
		"channels", channels,
		"limits", devicetest.Fields("delta_power", devicetest.Fields("min", antenna.MinDelta)),
		"mean_delta_power", mean,
	)), nil
}

func (t *RFPowerTest) measureLevel(
	ctx context.Context,
	meter PowerMeter,
	channel device.Channel,
	antenna device.Antenna,
	level byte,
) (float64, error) {
	if err := device.StartContinuousWave(ctx, t.dut, channel, antenna, level); err != nil {
		return 0, err
	}

	if err := t.sleep(ctx, MeasurementSettle); err != nil {
		return 0, err
	}

	power, err := meter.RadioPower(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading power at %s %s: %w", channel, antenna, err)
	}

	return power, nil
}

// PostTest returns the radio to receive mode, resets the DUT and waits for
// the firmware to answer again.
func (t *RFPowerTest) PostTest(ctx context.Context) error {
	for _, antenna := range []device.Antenna{device.Antenna1, device.Antenna2} {
		if err := device.StartContinuousReceive(ctx, t.dut, device.Channel(0), antenna); err != nil {
			return err
		}
	}

	t.Running("Resetting DUT...")

	if err := device.Reset(ctx, t.dut); err != nil {
		return err
	}

	err := devicetest.Retry(ctx, ResetPollAttempts, ResetPollInterval, t.sleepFunc(), func(_ int) error {
		_, err := device.AppVersion(ctx, t.dut)
		return err
	})
	if err != nil {
		t.Failing("Resetting failed!")
		return fmt.Errorf("waiting for reset: %w", err)
	}

	t.Running("Resetting complete!")

	return nil
}
