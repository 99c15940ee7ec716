package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/harness"
)

// Scanner returns a fixed set of simulated devices.
type Scanner struct {
	Devices []*Device
}

var _ device.Scanner = (*Scanner)(nil)

// Scan implements device.Scanner.
func (s *Scanner) Scan(ctx context.Context) ([]device.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]device.Device, 0, len(s.Devices))
	for _, d := range s.Devices {
		out = append(out, d)
	}

	return out, nil
}

// Fixture is a simulated station: one reference and up to four DUTs.
type Fixture struct {
	Reference *Device
	DUTs      []*Device
}

// NewFixture builds a fixture of powered-off units that pass every default
// test threshold.
func NewFixture(classes device.Classes, duts int) *Fixture {
	if duts > device.Slots {
		duts = device.Slots
	}

	f := &Fixture{
		Reference: NewDevice(device.ReferenceLabel, classes.Reference,
			WithRFID(device.RFID{0x80, 0x00, 0x00, 0x01}),
		),
	}

	for i := 0; i < duts; i++ {
		f.DUTs = append(f.DUTs, NewDevice(device.SlotLabel(i), classes.DUT,
			WithSlot(i+1),
			WithFirmware(device.Version{Major: 0, Minor: 1, Patch: 3}, device.Version{Major: 0, Minor: 2, Patch: 6}),
			WithRFID(device.RFID{0x80, 0x10, 0x00, byte(i + 1)}), //nolint:gosec // slot index fits a byte
			WithBattery(
				device.Battery{StateOfCharge: 60, Voltage: 3.8, Temperature: 24.5},
				device.Battery{StateOfCharge: 61, Voltage: 3.81, Temperature: 24.7},
			),
			WithNVM(0xC, []byte{0x00, 0x00, 0x04, 0x01}),
			WithNVM(0x8, []byte{0x00, 0x04, 0x01, 0x00}),
		))
	}

	return f
}

// Scanner returns a scanner over every fixture device.
func (f *Fixture) Scanner() *Scanner {
	devices := append([]*Device{f.Reference}, f.DUTs...)

	return &Scanner{Devices: devices}
}

// Meter is a simulated power meter that samples a device's carrier. It is
// method compatible with the serial harness.
type Meter struct {
	mu     sync.Mutex
	source *Device
	mode   harness.Mode
	closed bool
}

// NewMeter creates a meter that reads the carrier of source.
func NewMeter(source *Device) *Meter {
	return &Meter{source: source}
}

// MeterFor returns a meter for a device discovered from a simulated fixture.
func MeterFor(d device.Device) (*Meter, error) {
	simulated, ok := device.Unwrap(d).(*Device)
	if !ok {
		return nil, fmt.Errorf("%s is not a simulated device", d.Label())
	}

	return NewMeter(simulated), nil
}

// SetMode records the harness mode.
func (m *Meter) SetMode(_ context.Context, mode harness.Mode) error {
	if _, err := harness.ParseMode(string(mode)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.mode = mode

	return nil
}

// Mode returns the last mode set.
func (m *Meter) Mode() harness.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mode
}

// RadioPower samples the source carrier in dBm.
func (m *Meter) RadioPower(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return m.source.RadiatedPower(), nil
}

// Close marks the meter closed.
func (m *Meter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}

// Closed reports whether Close was called.
func (m *Meter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
