// Package config handles station configuration loading and management
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/rf-ate/internal/device"
)

// Config holds the station configuration.
type Config struct {
	Station     string          `yaml:"station"`
	Gender      device.Gender   `yaml:"gender"`
	ArduinoPort string          `yaml:"arduino_com_port"`
	StopOnFail  *bool           `yaml:"stop_on_fail"`
	Sequence    []string        `yaml:"sequence"`
	Discovery   DiscoveryConfig `yaml:"discovery"`
	Tests       TestsConfig     `yaml:"tests"`
	Logging     LoggingConfig   `yaml:"logging"`
	Results     ResultsConfig   `yaml:"results"`
	Telemetry   InfluxConfig    `yaml:"telemetry"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	Feed        FeedConfig      `yaml:"feed"`
	Report      ReportConfig    `yaml:"report"`
}

// DiscoveryConfig controls device scanning.
type DiscoveryConfig struct {
	Retries int           `yaml:"retries"`
	Delay   time.Duration `yaml:"delay"`
}

// TestsConfig holds per-test thresholds.
type TestsConfig struct {
	Firmware        FirmwareConfig        `yaml:"firmware"`
	NVM             NVMConfig             `yaml:"nvm"`
	ConnectionStats ConnectionStatsConfig `yaml:"connection_stats"`
	RFPower         RFPowerConfig         `yaml:"rf_power"`
	RFIDAssignment  RFIDAssignmentConfig  `yaml:"rfid_assignment"`
}

// FirmwareConfig holds the minimum firmware versions.
type FirmwareConfig struct {
	MinMCUVersion    string `yaml:"min_mcu_version"`
	MinNordicVersion string `yaml:"min_nordic_version"`
}

// NVMConfig holds the NVM address and expected bytes, as hex strings.
type NVMConfig struct {
	Address  string `yaml:"address"`
	Expected string `yaml:"expected_values"`
}

// ConnectionStatsConfig holds link measurement windows and limits.
type ConnectionStatsConfig struct {
	DurationShort int    `yaml:"duration_short"`
	DurationLong  int    `yaml:"duration_long"`
	MinRSSI       int    `yaml:"min_rssi"`
	AllowedErrors int    `yaml:"allowed_errors"`
	Ch2Source     string `yaml:"ch2_source"`
}

// AntennaConfig is one antenna under RF power test.
type AntennaConfig struct {
	Antenna  string  `yaml:"antenna"`
	MinDelta float64 `yaml:"min_delta"`
}

// RFPowerConfig lists the channels and antennae to measure.
type RFPowerConfig struct {
	Channels []string        `yaml:"channels"`
	Antennae []AntennaConfig `yaml:"antennae"`
}

// RFIDAssignmentConfig points at the RFID allocation service.
type RFIDAssignmentConfig struct {
	URL                 string        `yaml:"url"`
	Timeout             time.Duration `yaml:"timeout"`
	ExpectedFirstNibble int           `yaml:"expected_first_nibble"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ResultsConfig selects the result stores. Empty values disable a store.
type ResultsConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`
	ClickHouseURL string `yaml:"clickhouse_url"`
}

// InfluxConfig configures the measurement sink. An empty URL disables it.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// MQTTConfig configures the progress publisher. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// FeedConfig configures the live event feed. An empty address disables it.
type FeedConfig struct {
	Listen string `yaml:"listen"`
}

// ReportConfig configures the XLSX report. An empty directory disables it.
type ReportConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads the .env file, the YAML station file and ATE_* overrides, in that
// order, then validates the result. A missing file at the default path is
// not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// It's okay if the file doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{}

	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator supplied config path
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath:
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates, without touching the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a validated-default configuration for the given gender.
func Default(gender device.Gender) *Config {
	cfg := &Config{Gender: gender}
	cfg.ApplyDefaults()

	return cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Station == "" {
		c.Station = DefaultStation
	}

	c.Gender = device.Gender(strings.ToLower(string(c.Gender)))
	if c.Gender == "" {
		c.Gender = device.GenderRx
	}

	if c.ArduinoPort == "" {
		c.ArduinoPort = DefaultArduinoPort
	}

	if c.StopOnFail == nil {
		stop := true
		c.StopOnFail = &stop
	}

	if len(c.Sequence) == 0 {
		c.Sequence = append([]string(nil), DefaultSequence...)
	}

	if c.Discovery.Delay == 0 {
		c.Discovery.Delay = DefaultDiscoveryDelay
	}

	c.Tests.applyDefaults(c.Gender)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "rf-ate-" + c.Station
	}

	if c.Telemetry.Bucket == "" {
		c.Telemetry.Bucket = DefaultInfluxBucket
	}
}

func (t *TestsConfig) applyDefaults(gender device.Gender) {
	if t.Firmware.MinMCUVersion == "" {
		t.Firmware.MinMCUVersion = DefaultMinMCUVersion
	}

	if t.Firmware.MinNordicVersion == "" {
		t.Firmware.MinNordicVersion = DefaultMinNordicVersion
	}

	if t.NVM.Address == "" && t.NVM.Expected == "" {
		switch gender {
		case device.GenderTx:
			t.NVM.Address, t.NVM.Expected = DefaultNVMAddressTx, DefaultNVMExpectedTx
		default:
			t.NVM.Address, t.NVM.Expected = DefaultNVMAddressRx, DefaultNVMExpectedRx
		}
	}

	cs := &t.ConnectionStats
	if cs.DurationShort == 0 {
		cs.DurationShort = DefaultDurationShort
	}

	if cs.DurationLong == 0 {
		cs.DurationLong = DefaultDurationLong
	}

	if cs.MinRSSI == 0 {
		cs.MinRSSI = DefaultMinRSSI
	}

	if cs.AllowedErrors == 0 {
		cs.AllowedErrors = DefaultAllowedErrors
	}

	if cs.Ch2Source == "" {
		cs.Ch2Source = Ch2SourceCh1
	}

	if len(t.RFPower.Channels) == 0 {
		t.RFPower.Channels = append([]string(nil), DefaultChannels...)
	}

	if len(t.RFPower.Antennae) == 0 {
		t.RFPower.Antennae = []AntennaConfig{
			{Antenna: "ANTENNA_1", MinDelta: DefaultMinDelta},
			{Antenna: "ANTENNA_2", MinDelta: DefaultMinDelta},
		}
	}

	for i := range t.RFPower.Antennae {
		if t.RFPower.Antennae[i].MinDelta == 0 {
			t.RFPower.Antennae[i].MinDelta = DefaultMinDelta
		}
	}

	if t.RFIDAssignment.URL == "" {
		t.RFIDAssignment.URL = DefaultRFIDServerURL
	}

	if t.RFIDAssignment.Timeout == 0 {
		t.RFIDAssignment.Timeout = DefaultRFIDTimeout
	}

	if t.RFIDAssignment.ExpectedFirstNibble == 0 {
		t.RFIDAssignment.ExpectedFirstNibble = DefaultExpectedFirstNibble
	}
}

// ShouldStopOnFail reports whether a DUT's run stops at its first failure.
func (c *Config) ShouldStopOnFail() bool {
	return c.StopOnFail == nil || *c.StopOnFail
}

// Classes returns the DUT and reference device classes for the gender.
func (c *Config) Classes() (device.Classes, error) {
	return device.ClassesFor(c.Gender)
}

func (c *Config) String() string {
	return fmt.Sprintf(`Current Configuration:
======================
Station:                  %s
Gender:                   %s
Arduino Port:             %s
Stop On Fail:             %t
Sequence:                 %s
Discovery Retries:        %d
Discovery Delay:          %s
Firmware Floors:          mcu %s, radio %s
NVM:                      %s = %s
Connection Stats:         short %ds, long %ds, min rssi %d, allowed errors %d, ch2 from %s
RF Channels:              %s
RF Antennae:              %s
RFID Server:              %s
Log Level:                %s (%s)
Results SQLite:           %s
Results ClickHouse:       %s
InfluxDB:                 %s
InfluxDB Token:           %s
MQTT Broker:              %s
MQTT Password:            %s
Feed Listen:              %s
Report Dir:               %s`,
		c.Station,
		c.Gender,
		c.ArduinoPort,
		c.ShouldStopOnFail(),
		strings.Join(c.Sequence, ", "),
		c.Discovery.Retries,
		c.Discovery.Delay,
		c.Tests.Firmware.MinMCUVersion, c.Tests.Firmware.MinNordicVersion,
		c.Tests.NVM.Address, c.Tests.NVM.Expected,
		c.Tests.ConnectionStats.DurationShort,
		c.Tests.ConnectionStats.DurationLong,
		c.Tests.ConnectionStats.MinRSSI,
		c.Tests.ConnectionStats.AllowedErrors,
		c.Tests.ConnectionStats.Ch2Source,
		strings.Join(c.Tests.RFPower.Channels, ", "),
		antennaeDisplay(c.Tests.RFPower.Antennae),
		c.Tests.RFIDAssignment.URL,
		c.Logging.Level, c.Logging.Format,
		orNotSet(c.Results.SQLitePath),
		redactURL(c.Results.ClickHouseURL),
		orNotSet(c.Telemetry.URL),
		secretDisplay(c.Telemetry.Token),
		orNotSet(c.MQTT.Broker),
		secretDisplay(c.MQTT.Password),
		orNotSet(c.Feed.Listen),
		orNotSet(c.Report.Dir),
	)
}

func antennaeDisplay(antennae []AntennaConfig) string {
	parts := make([]string, 0, len(antennae))
	for _, a := range antennae {
		parts = append(parts, fmt.Sprintf("%s (min delta %.1f dBm)", a.Antenna, a.MinDelta))
	}

	return strings.Join(parts, ", ")
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}

	return s
}

func secretDisplay(s string) string {
	if s == "" {
		return "(not set)"
	}

	return "********"
}
