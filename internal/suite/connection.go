package suite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

const (
	// PowerOnSettle is the pause between powering on and checking power state.
	PowerOnSettle = time.Second
	// PairingSettle is the pause after exchanging pairing identifiers.
	PairingSettle = 2 * time.Second

	// pairingIndex is the RFID slot holding the paired counterpart, for both
	// genders.
	pairingIndex = 1
	statsChannel = 0
)

// ErrPowerOn is returned when a device stays off after being powered on.
var ErrPowerOn = errors.New("device could not be powered on")

// ErrPairingReset is returned when the DUT keeps its paired identifier after
// teardown.
var ErrPairingReset = errors.New("failed to reset DUT's paired RFID to zero")

// ConnectionStatsParams are the windows and limits of the link test.
type ConnectionStatsParams struct {
	DurationShort int
	DurationLong  int
	MinRSSI       int
	AllowedErrors int
	Ch2Source     string
}

// ConnectionStatsTest pairs the DUT with the reference and checks link
// quality over a short and a long window.
type ConnectionStatsTest struct {
	*devicetest.Base
	Timing

	dut       device.Device
	reference device.Device
	dutIdx    int
	refIdx    int
	params    ConnectionStatsParams
	log       logrus.FieldLogger
}

var _ devicetest.Test = (*ConnectionStatsTest)(nil)

// NewConnectionStatsTest creates the link test for the given DUT gender.
func NewConnectionStatsTest(
	dut, reference device.Device,
	gender device.Gender,
	params ConnectionStatsParams,
	log logrus.FieldLogger,
) (*ConnectionStatsTest, error) {
	if _, err := device.ClassesFor(gender); err != nil {
		return nil, devicetest.Configf("connection stats: %v", err)
	}

	if params.Ch2Source == "" {
		params.Ch2Source = config.Ch2SourceCh1
	}

	log = log.WithFields(logrus.Fields{
		"component": "connection_stats",
		"dut":       dut.Label(),
	})

	if params.Ch2Source == config.Ch2SourceCh1 {
		// TODO: confirm with the RF team whether ch2_total_errors should sum
		// channel 2 counters, then switch the default ch2_source to ch2.
		log.Debug("ch2_total_errors uses channel 1 counters")
	}

	return &ConnectionStatsTest{
		Base:      devicetest.NewBase(config.TestConnectionStats, CodeConnection, dut, reference),
		dut:       dut,
		reference: reference,
		dutIdx:    pairingIndex,
		refIdx:    pairingIndex,
		params:    params,
		log:       log,
	}, nil
}

// PreTest powers on both devices.
func (t *ConnectionStatsTest) PreTest(ctx context.Context) error {
	t.Running("Powering on devices...")

	for _, d := range []device.Device{t.dut, t.reference} {
		if err := device.SetSystemState(ctx, d, true); err != nil {
			return fmt.Errorf("powering on %s: %w", d.Label(), err)
		}
	}

	if err := t.sleep(ctx, PowerOnSettle); err != nil {
		return err
	}

	for _, d := range []device.Device{t.dut, t.reference} {
		on, err := device.SystemIsOn(ctx, d)
		if err != nil {
			return fmt.Errorf("checking power of %s: %w", d.Label(), err)
		}

		if !on {
			return fmt.Errorf("%w: %s", ErrPowerOn, d.Label())
		}
	}

	return nil
}

// Run exchanges pairing identifiers, verifies them and measures the link.
func (t *ConnectionStatsTest) Run(ctx context.Context) ([]devicetest.AssertionResult, error) {
	results := make([]devicetest.AssertionResult, 0, 7)

	dutRFID, err := device.GetRFID(ctx, t.dut, 0)
	if err != nil {
		return nil, err
	}

	refRFID, err := device.GetRFID(ctx, t.reference, 0)
	if err != nil {
		return nil, err
	}

	t.Runningf("Pairing %s with %s", t.dut.Label(), t.reference.Label())

	if err := device.SetRFID(ctx, t.dut, t.dutIdx, refRFID); err != nil {
		return nil, err
	}

	if err := device.SetRFID(ctx, t.reference, t.refIdx, dutRFID); err != nil {
		return nil, err
	}

	if err := t.sleep(ctx, PairingSettle); err != nil {
		return nil, err
	}

	dutPaired, err := device.GetRFID(ctx, t.dut, t.dutIdx)
	if err != nil {
		return nil, err
	}

	results = append(results, pairingResult("dut_paired", dutPaired, refRFID))

	refPaired, err := device.GetRFID(ctx, t.reference, t.refIdx)
	if err != nil {
		return results, err
	}

	results = append(results, pairingResult("ref_paired", refPaired, dutRFID))

	if dutPaired != refRFID || refPaired != dutRFID {
		return results, nil
	}

	t.Runningf("Measuring connection stats for %ds", t.params.DurationShort)

	short, measured, err := t.measure(ctx, t.params.DurationShort)
	if err != nil {
		return results, err
	}

	results = append(results, devicetest.NewResult("connection_stats_short_measured", measured, nil))

	if !measured {
		return results, nil
	}

	results = append(results, devicetest.NewResult("min_rssi", short.Ch1.AvgRSSI >= t.params.MinRSSI, devicetest.Fields(
		"measured_average", short.Ch1.AvgRSSI,
		"limits", devicetest.Fields("min", t.params.MinRSSI),
	)))

	t.Runningf("Measuring connection stats for %ds", t.params.DurationLong)

	long, measured, err := t.measure(ctx, t.params.DurationLong)
	if err != nil {
		return results, err
	}

	results = append(results, devicetest.NewResult("connection_stats_long_measured", measured, nil))

	if !measured {
		return results, nil
	}

	ch2 := long.Ch2
	if t.params.Ch2Source == config.Ch2SourceCh1 {
		ch2 = long.Ch1
	}

	return append(results,
		t.errorsResult("ch1_total_errors", long.Ch1),
		t.errorsResult("ch2_total_errors", ch2),
	), nil
}

// PostTest clears the DUT's paired identifier and checks it reads back zero.
func (t *ConnectionStatsTest) PostTest(ctx context.Context) error {
	if err := device.SetRFID(ctx, t.dut, t.dutIdx, device.ZeroRFID); err != nil {
		return err
	}

	rfid, err := device.GetRFID(ctx, t.dut, t.dutIdx)
	if err != nil {
		return err
	}

	if rfid != device.ZeroRFID {
		return fmt.Errorf("%w: read back %s", ErrPairingReset, rfid)
	}

	return nil
}

// measure returns measured=false when the device declines the measurement.
func (t *ConnectionStatsTest) measure(ctx context.Context, duration int) (device.ConnectionStats, bool, error) {
	stats, err := device.GetConnectionStats(ctx, t.dut, statsChannel, duration)

	switch {
	case err == nil:
		return stats, true, nil
	case errors.Is(err, device.ErrNack):
		t.log.WithError(err).WithField("duration", duration).Warn("Connection stats not measured")
		return device.ConnectionStats{}, false, nil
	default:
		return device.ConnectionStats{}, false, err
	}
}

func (t *ConnectionStatsTest) errorsResult(name string, stats device.ChannelStats) devicetest.AssertionResult {
	total := stats.TotalErrors()

	return devicetest.NewResult(name, total < t.params.AllowedErrors, devicetest.Fields(
		"total", total,
		"allowed", t.params.AllowedErrors,
	))
}

func pairingResult(name string, found, expected device.RFID) devicetest.AssertionResult {
	return devicetest.NewResult(name, found == expected, devicetest.Fields(
		"found_rfid", found.String(),
		"expected_rfid", expected.String(),
	))
}
