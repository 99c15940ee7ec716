// Package sim provides simulated wireless devices, a scanner over them and a
// simulated power meter. It backs the --simulate station mode and the tests.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethpandaops/rf-ate/internal/device"
)

// HandlerFunc overrides the simulated response to a command.
type HandlerFunc func(ctx context.Context, cmd device.Command) (any, error)

// Device is an in-memory wireless unit. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	label    string
	info     device.Info
	on       bool
	firmware device.Version
	radio    device.Version
	nvm      map[uint32]byte
	rfids    map[int]device.RFID
	stats    device.ConnectionStats
	battery  []device.Battery
	reads    int
	cwPower  byte
	cwActive bool
	downtime int
	pending  int

	overrides map[string]HandlerFunc
	calls     []device.Command
}

var _ device.Device = (*Device)(nil)

// Option configures a simulated device.
type Option func(*Device)

// WithFirmware sets the MCU and radio firmware versions.
func WithFirmware(app, radio device.Version) Option {
	return func(d *Device) {
		d.firmware = app
		d.radio = radio
	}
}

// WithRFID sets the identifier stored at index 0.
func WithRFID(rfid device.RFID) Option {
	return func(d *Device) {
		d.rfids[0] = rfid
	}
}

// WithNVM writes bytes into simulated NVM starting at address.
func WithNVM(address uint32, values []byte) Option {
	return func(d *Device) {
		for i, v := range values {
			d.nvm[address+uint32(i)] = v //nolint:gosec // simulated address space
		}
	}
}

// WithStats sets the connection statistics returned by measurements.
func WithStats(stats device.ConnectionStats) Option {
	return func(d *Device) {
		d.stats = stats
	}
}

// WithBattery sets successive fuel gauge readings. The last reading repeats.
func WithBattery(readings ...device.Battery) Option {
	return func(d *Device) {
		d.battery = readings
	}
}

// WithPoweredOn starts the device powered on.
func WithPoweredOn() Option {
	return func(d *Device) {
		d.on = true
	}
}

// WithResetDowntime makes the device fail the given number of commands with
// a transport error after a reset.
func WithResetDowntime(commands int) Option {
	return func(d *Device) {
		d.downtime = commands
	}
}

// WithSlot sets the fixture slot reported to the scanner.
func WithSlot(slot int) Option {
	return func(d *Device) {
		d.info.Slot = slot
	}
}

// NewDevice creates a simulated device of the given class.
func NewDevice(label string, class device.Class, opts ...Option) *Device {
	d := &Device{
		label: label,
		info: device.Info{
			Class:     class,
			Serial:    "SIM-" + label,
			Family:    familyOf(class),
			ProductID: productIDOf(class),
		},
		firmware:  device.Version{Major: 0, Minor: 1, Patch: 2},
		radio:     device.Version{Major: 0, Minor: 2, Patch: 5},
		nvm:       make(map[uint32]byte),
		rfids:     map[int]device.RFID{0: device.UnassignedRFID},
		battery:   []device.Battery{{StateOfCharge: 50, Voltage: 3.7, Temperature: 25}},
		overrides: make(map[string]HandlerFunc),
		stats: device.ConnectionStats{
			Ch1: device.ChannelStats{AvgRSSI: -60},
			Ch2: device.ChannelStats{AvgRSSI: -60},
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Label implements device.Device.
func (d *Device) Label() string { return d.label }

// Info implements device.Device.
func (d *Device) Info() device.Info {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.info
}

// Intercept routes every command of the same type as sample to fn.
func (d *Device) Intercept(sample device.Command, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.overrides[kindOf(sample)] = fn
}

// Calls returns the commands handled so far.
func (d *Device) Calls() []device.Command {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]device.Command(nil), d.calls...)
}

// CallCount returns how many commands of the same type as sample were handled.
func (d *Device) CallCount(sample device.Command) int {
	kind := kindOf(sample)

	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0

	for _, c := range d.calls {
		if kindOf(c) == kind {
			count++
		}
	}

	return count
}

// RFIDAt returns the identifier stored at index.
func (d *Device) RFIDAt(index int) device.RFID {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.rfids[index]
}

// PoweredOn reports the simulated power state.
func (d *Device) PoweredOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.on
}

// RadiatedPower returns the simulated carrier power in dBm. The power byte of
// the active continuous-wave mode is read as a signed dBm value; the radio
// emits a floor of -60 dBm otherwise.
func (d *Device) RadiatedPower() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.cwActive {
		return -60
	}

	return float64(int8(d.cwPower)) //nolint:gosec // the power byte is a signed register
}

// HandleCommand implements device.Device.
func (d *Device) HandleCommand(ctx context.Context, cmd device.Command) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", device.ErrTransport, err)
	}

	d.mu.Lock()
	d.calls = append(d.calls, cmd)
	override, ok := d.overrides[kindOf(cmd)]
	d.mu.Unlock()

	if ok {
		return override(ctx, cmd)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending > 0 {
		d.pending--
		return nil, fmt.Errorf("%w: device rebooting", device.ErrTransport)
	}

	switch c := cmd.(type) {
	case device.SetSystemStateCommand:
		d.on = c.On
		return nil, nil
	case device.SystemIsOnCommand:
		return d.on, nil
	case device.AppVersionCommand:
		return d.firmware, nil
	case device.RadioVersionCommand:
		return d.radio, nil
	case device.NVMReadCommand:
		out := make([]byte, c.Length)
		for i := range out {
			out[i] = d.nvm[c.Address+uint32(i)] //nolint:gosec // simulated address space
		}

		return out, nil
	case device.GetRFIDCommand:
		return d.rfids[c.Index], nil
	case device.SetRFIDCommand:
		d.rfids[c.Index] = c.RFID
		return nil, nil
	case device.ConnectionStatsCommand:
		if !d.on {
			return nil, fmt.Errorf("%w: radio off", device.ErrNack)
		}

		return d.stats, nil
	case device.ContinuousWaveCommand:
		if !d.on {
			return nil, fmt.Errorf("%w: radio off", device.ErrNack)
		}

		d.cwActive = true
		d.cwPower = c.Power

		return nil, nil
	case device.ContinuousReceiveCommand:
		d.cwActive = false
		return nil, nil
	case device.ResetCommand:
		d.cwActive = false
		d.pending = d.downtime

		return nil, nil
	case device.FuelGaugeCommand:
		if len(d.battery) == 0 {
			return nil, fmt.Errorf("%w: no fuel gauge", device.ErrDeviceError)
		}

		idx := d.reads
		if idx >= len(d.battery) {
			idx = len(d.battery) - 1
		}

		d.reads++

		return d.battery[idx], nil
	default:
		return nil, fmt.Errorf("%w: unsupported command %s", device.ErrNack, cmd.Name())
	}
}

func kindOf(cmd device.Command) string {
	return fmt.Sprintf("%T", cmd)
}

func familyOf(class device.Class) string {
	switch class {
	case device.WirelessGo2Rx, device.WirelessGo2Tx:
		return "WIRELESS_GO_II"
	default:
		return "WIRELESS_GO_III"
	}
}

func productIDOf(class device.Class) int {
	switch class {
	case device.WirelessGo2Rx:
		return 1
	case device.WirelessGo2Tx:
		return 2
	case device.WirelessGo3Rx:
		return 3
	default:
		return 4
	}
}
