// Package device defines the command capability of a wireless unit, the
// command and response values the station exchanges with it, and discovery
// of the reference and DUT slots.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// Sentinel errors raised by a device's command capability.
var (
	ErrNack               = errors.New("command not acknowledged")
	ErrDeviceError        = errors.New("device reported an error")
	ErrTransport          = errors.New("device transport failure")
	ErrUnexpectedResponse = errors.New("unexpected response type")
)

// Class identifies a device model.
type Class string

// Known device classes.
const (
	WirelessGo2Rx Class = "WirelessGo2Rx"
	WirelessGo2Tx Class = "WirelessGo2Tx"
	WirelessGo3Rx Class = "WirelessGo3Rx"
	WirelessGo3Tx Class = "WirelessGo3Tx"
)

// Info describes a connected unit as reported by the scanner.
type Info struct {
	Class     Class
	Serial    string
	Family    string
	ProductID int
	// Slot is the physical fixture slot (1-4) when the scanner can resolve
	// it, or zero.
	Slot int
}

// Device is a handle to a physical unit. HandleCommand may block on I/O and
// fails with ErrNack, ErrDeviceError or ErrTransport.
type Device interface {
	devicetest.Device

	Info() Info
	HandleCommand(ctx context.Context, cmd Command) (any, error)
}

// Labeled wraps a device with a new label.
func Labeled(d Device, label string) Device {
	return &labeled{Device: d, label: label}
}

type labeled struct {
	Device
	label string
}

func (l *labeled) Label() string { return l.label }

func (l *labeled) Unwrap() Device { return l.Device }

// Unwrap returns the device underneath any label wrappers.
func Unwrap(d Device) Device {
	for {
		w, ok := d.(interface{ Unwrap() Device })
		if !ok {
			return d
		}

		d = w.Unwrap()
	}
}

// call issues cmd and asserts the response type.
func call[T any](ctx context.Context, d Device, cmd Command) (T, error) {
	var zero T

	resp, err := d.HandleCommand(ctx, cmd)
	if err != nil {
		return zero, fmt.Errorf("%s on %s: %w", cmd.Name(), d.Label(), err)
	}

	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("%s on %s: %w: got %T", cmd.Name(), d.Label(), ErrUnexpectedResponse, resp)
	}

	return typed, nil
}

// send issues cmd and discards the response.
func send(ctx context.Context, d Device, cmd Command) error {
	if _, err := d.HandleCommand(ctx, cmd); err != nil {
		return fmt.Errorf("%s on %s: %w", cmd.Name(), d.Label(), err)
	}

	return nil
}

// SetSystemState powers the unit on or off.
func SetSystemState(ctx context.Context, d Device, on bool) error {
	return send(ctx, d, SetSystemStateCommand{On: on})
}

// SystemIsOn reports whether the unit is powered on.
func SystemIsOn(ctx context.Context, d Device) (bool, error) {
	return call[bool](ctx, d, SystemIsOnCommand{})
}

// AppVersion reads the MCU application firmware version.
func AppVersion(ctx context.Context, d Device) (Version, error) {
	return call[Version](ctx, d, AppVersionCommand{})
}

// RadioVersion reads the radio SoC firmware version.
func RadioVersion(ctx context.Context, d Device) (Version, error) {
	return call[Version](ctx, d, RadioVersionCommand{})
}

// ReadNVM reads length bytes of non-volatile memory at address.
func ReadNVM(ctx context.Context, d Device, address uint32, length int) ([]byte, error) {
	return call[[]byte](ctx, d, NVMReadCommand{Address: address, Length: length})
}

// GetRFID reads the pairing identifier stored at index.
func GetRFID(ctx context.Context, d Device, index int) (RFID, error) {
	return call[RFID](ctx, d, GetRFIDCommand{Index: index})
}

// SetRFID writes the pairing identifier at index.
func SetRFID(ctx context.Context, d Device, index int, rfid RFID) error {
	return send(ctx, d, SetRFIDCommand{Index: index, RFID: rfid})
}

// GetConnectionStats measures link statistics over the given window in seconds.
func GetConnectionStats(ctx context.Context, d Device, channel, duration int) (ConnectionStats, error) {
	return call[ConnectionStats](ctx, d, ConnectionStatsCommand{Channel: channel, Duration: duration})
}

// StartContinuousWave starts fixed-frequency continuous-wave test mode.
func StartContinuousWave(ctx context.Context, d Device, channel Channel, antenna Antenna, power byte) error {
	return send(ctx, d, ContinuousWaveCommand{Channel: channel, Antenna: antenna, Power: power})
}

// StartContinuousReceive puts the radio into continuous receive test mode.
func StartContinuousReceive(ctx context.Context, d Device, channel Channel, antenna Antenna) error {
	return send(ctx, d, ContinuousReceiveCommand{Channel: channel, Antenna: antenna})
}

// Reset reboots the unit.
func Reset(ctx context.Context, d Device) error {
	return send(ctx, d, ResetCommand{})
}

// FuelGauge reads the battery fuel gauge.
func FuelGauge(ctx context.Context, d Device) (Battery, error) {
	return call[Battery](ctx, d, FuelGaugeCommand{})
}
