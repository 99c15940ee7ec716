package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// Antenna is a resolved antenna limit.
type Antenna struct {
	Antenna  device.Antenna
	MinDelta float64
}

// Validate checks the configuration before any device I/O. Every problem is
// reported, joined, as a configuration fault.
func (c *Config) Validate() error {
	var errs []error

	if _, err := device.ClassesFor(c.Gender); err != nil {
		errs = append(errs, devicetest.Configf("gender: %v", err))
	}

	if len(c.Sequence) == 0 {
		errs = append(errs, devicetest.Configf("sequence is empty"))
	}

	for _, name := range c.Sequence {
		if !slices.Contains(KnownTests, name) {
			errs = append(errs, devicetest.Configf("unknown test %q in sequence, expected one of %s",
				name, strings.Join(KnownTests, ", ")))
		}
	}

	if c.Discovery.Retries < 0 {
		errs = append(errs, devicetest.Configf("discovery.retries must not be negative"))
	}

	if _, err := device.ParseVersion(c.Tests.Firmware.MinMCUVersion); err != nil {
		errs = append(errs, devicetest.Configf("tests.firmware.min_mcu_version: %v", err))
	}

	if _, err := device.ParseVersion(c.Tests.Firmware.MinNordicVersion); err != nil {
		errs = append(errs, devicetest.Configf("tests.firmware.min_nordic_version: %v", err))
	}

	if _, _, err := c.Tests.NVM.Resolve(); err != nil {
		errs = append(errs, devicetest.Configf("tests.nvm: %v", err))
	}

	cs := c.Tests.ConnectionStats
	if cs.DurationShort <= 0 || cs.DurationLong <= 0 {
		errs = append(errs, devicetest.Configf("tests.connection_stats durations must be positive"))
	}

	if cs.Ch2Source != Ch2SourceCh1 && cs.Ch2Source != Ch2SourceCh2 {
		errs = append(errs, devicetest.Configf("tests.connection_stats.ch2_source %q, expected ch1 or ch2", cs.Ch2Source))
	}

	if _, err := c.Tests.RFPower.ResolveChannels(); err != nil {
		errs = append(errs, devicetest.Configf("tests.rf_power.channels: %v", err))
	}

	if _, err := c.Tests.RFPower.ResolveAntennae(); err != nil {
		errs = append(errs, devicetest.Configf("tests.rf_power.antennae: %v", err))
	}

	if n := c.Tests.RFIDAssignment.ExpectedFirstNibble; n < 0 || n > 0xF {
		errs = append(errs, devicetest.Configf("tests.rfid_assignment.expected_first_nibble %d out of range", n))
	}

	if c.Logging.Format != LogFormatText && c.Logging.Format != LogFormatJSON {
		errs = append(errs, devicetest.Configf("logging.format %q, expected text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Resolve parses the NVM address and expected bytes.
func (n NVMConfig) Resolve() (uint32, []byte, error) {
	address, err := strconv.ParseUint(strings.TrimSpace(n.Address), 0, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("address %q: %w", n.Address, err)
	}

	expected, err := device.ParseHexBytes(n.Expected)
	if err != nil {
		return 0, nil, fmt.Errorf("expected_values: %w", err)
	}

	if len(expected) == 0 {
		return 0, nil, fmt.Errorf("expected_values is empty")
	}

	return uint32(address), expected, nil
}

// ResolveChannels parses the configured channel names.
func (r RFPowerConfig) ResolveChannels() ([]device.Channel, error) {
	if len(r.Channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}

	channels := make([]device.Channel, 0, len(r.Channels))

	for _, name := range r.Channels {
		ch, err := device.ParseChannel(name)
		if err != nil {
			return nil, err
		}

		channels = append(channels, ch)
	}

	return channels, nil
}

// ResolveAntennae parses the configured antenna names and limits.
func (r RFPowerConfig) ResolveAntennae() ([]Antenna, error) {
	if len(r.Antennae) == 0 {
		return nil, fmt.Errorf("no antennae configured")
	}

	antennae := make([]Antenna, 0, len(r.Antennae))

	for _, a := range r.Antennae {
		antenna, err := device.ParseAntenna(a.Antenna)
		if err != nil {
			return nil, err
		}

		antennae = append(antennae, Antenna{Antenna: antenna, MinDelta: a.MinDelta})
	}

	return antennae, nil
}
