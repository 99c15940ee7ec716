package config

import "time"

// Test names accepted in the sequence.
const (
	TestFirmwareVersion = "firmware_version"
	TestNVM             = "nvm"
	TestConnectionStats = "connection_stats"
	TestRFPower         = "rf_power"
	TestBattery         = "battery"
	TestRFIDAssignment  = "rfid_assignment"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Sources for the channel 2 error total.
const (
	// Ch2SourceCh1 sums channel 1 counters for the channel 2 assertion, as
	// deployed stations always have.
	Ch2SourceCh1 = "ch1"
	// Ch2SourceCh2 sums the channel 2 counters.
	Ch2SourceCh2 = "ch2"
)

const (
	// DefaultConfigPath is the station file read when no path is given.
	DefaultConfigPath = "config.yaml"
	// DefaultStation is the station name used in topics and records.
	DefaultStation = "station-1"
	// DefaultArduinoPort is the serial port of the power harness.
	DefaultArduinoPort = "COM4"
	// DefaultDiscoveryDelay is the pause between device scans.
	DefaultDiscoveryDelay = 100 * time.Millisecond
	// DefaultMinMCUVersion is the lowest accepted MCU firmware.
	DefaultMinMCUVersion = "0.1.2"
	// DefaultMinNordicVersion is the lowest accepted radio firmware.
	DefaultMinNordicVersion = "0.2.5"
	// DefaultNVMAddressRx is the NVM address checked on receivers.
	DefaultNVMAddressRx = "0xC"
	// DefaultNVMExpectedRx is the NVM content expected on receivers.
	DefaultNVMExpectedRx = "00 00 04 01"
	// DefaultNVMAddressTx is the NVM address checked on transmitters.
	DefaultNVMAddressTx = "0x8"
	// DefaultNVMExpectedTx is the NVM content expected on transmitters.
	DefaultNVMExpectedTx = "00 04 01 00"
	// DefaultDurationShort is the short link measurement window in seconds.
	DefaultDurationShort = 120
	// DefaultDurationLong is the long link measurement window in seconds.
	DefaultDurationLong = 500
	// DefaultMinRSSI is the lowest accepted average RSSI.
	DefaultMinRSSI = -95
	// DefaultAllowedErrors is the exclusive upper bound on link errors.
	DefaultAllowedErrors = 1000
	// DefaultMinDelta is the minimum high/low power delta in dBm.
	DefaultMinDelta = 5.0
	// DefaultRFIDServerURL is the RFID allocation service.
	DefaultRFIDServerURL = "http://RMSPS01.rode.local:1234"
	// DefaultRFIDTimeout bounds each allocation request.
	DefaultRFIDTimeout = 10 * time.Second
	// DefaultExpectedFirstNibble is the high nibble of a valid RFID.
	DefaultExpectedFirstNibble = 0x8
	// DefaultTopicPrefix is the MQTT topic root.
	DefaultTopicPrefix = "rf-ate"
	// DefaultInfluxBucket is the InfluxDB bucket for measurements.
	DefaultInfluxBucket = "rf_ate"
)

var (
	// DefaultSequence is the test order when none is configured.
	DefaultSequence = []string{TestFirmwareVersion, TestConnectionStats, TestRFPower, TestBattery}
	// DefaultChannels are the RF channels measured by default.
	DefaultChannels = []string{"CHANNEL_0", "CHANNEL_20", "CHANNEL_40", "CHANNEL_60", "CHANNEL_80"}
	// KnownTests lists every test name the factory can build.
	KnownTests = []string{
		TestFirmwareVersion,
		TestNVM,
		TestConnectionStats,
		TestRFPower,
		TestBattery,
		TestRFIDAssignment,
	}
)
