package device

import "fmt"

// Command is an opaque request passed to a device's HandleCommand.
type Command interface {
	Name() string
}

// SetSystemStateCommand powers the unit on or off. Responds with nil.
type SetSystemStateCommand struct {
	On bool
}

// Name implements Command.
func (SetSystemStateCommand) Name() string { return "set_system_state" }

// SystemIsOnCommand queries the power state. Responds with a bool.
type SystemIsOnCommand struct{}

// Name implements Command.
func (SystemIsOnCommand) Name() string { return "system_is_on" }

// AppVersionCommand queries the MCU firmware version. Responds with a Version.
type AppVersionCommand struct{}

// Name implements Command.
func (AppVersionCommand) Name() string { return "app_version" }

// RadioVersionCommand queries the radio firmware version. Responds with a Version.
type RadioVersionCommand struct{}

// Name implements Command.
func (RadioVersionCommand) Name() string { return "radio_version" }

// NVMReadCommand reads non-volatile memory. Responds with []byte.
type NVMReadCommand struct {
	Address uint32
	Length  int
}

// Name implements Command.
func (c NVMReadCommand) Name() string {
	return fmt.Sprintf("nvm_read(0x%X,%d)", c.Address, c.Length)
}

// GetRFIDCommand reads the pairing identifier slot. Responds with an RFID.
type GetRFIDCommand struct {
	Index int
}

// Name implements Command.
func (c GetRFIDCommand) Name() string { return fmt.Sprintf("radio_get_rfid(%d)", c.Index) }

// SetRFIDCommand writes the pairing identifier slot. Responds with nil.
type SetRFIDCommand struct {
	Index int
	RFID  RFID
}

// Name implements Command.
func (c SetRFIDCommand) Name() string { return fmt.Sprintf("radio_set_rfid(%d)", c.Index) }

// ConnectionStatsCommand measures link statistics. Responds with
// ConnectionStats, or fails with ErrNack when nothing could be measured.
type ConnectionStatsCommand struct {
	Channel  int
	Duration int
}

// Name implements Command.
func (c ConnectionStatsCommand) Name() string {
	return fmt.Sprintf("radio_get_advanced_connection_stats(%d,%d)", c.Channel, c.Duration)
}

// ContinuousWaveCommand starts fixed-frequency continuous-wave test mode.
type ContinuousWaveCommand struct {
	Channel Channel
	Antenna Antenna
	Power   byte
}

// Name implements Command.
func (c ContinuousWaveCommand) Name() string {
	return fmt.Sprintf("radio_start_continuous_wave(%s,%s,0x%02X)", c.Channel, c.Antenna, c.Power)
}

// ContinuousReceiveCommand starts continuous receive test mode.
type ContinuousReceiveCommand struct {
	Channel Channel
	Antenna Antenna
}

// Name implements Command.
func (c ContinuousReceiveCommand) Name() string {
	return fmt.Sprintf("radio_start_continuous_receive(%s,%s)", c.Channel, c.Antenna)
}

// ResetCommand reboots the unit.
type ResetCommand struct{}

// Name implements Command.
func (ResetCommand) Name() string { return "reset" }

// FuelGaugeCommand reads the battery gauge. Responds with a Battery.
type FuelGaugeCommand struct{}

// Name implements Command.
func (FuelGaugeCommand) Name() string { return "get_fuel_gauge" }
