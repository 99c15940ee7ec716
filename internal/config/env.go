package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ethpandaops/rf-ate/internal/device"
)

// applyEnv overrides file values with ATE_* environment variables.
func (c *Config) applyEnv() error {
	c.Station = getEnv("ATE_STATION", c.Station)
	c.Gender = device.Gender(getEnv("ATE_GENDER", string(c.Gender)))
	c.ArduinoPort = getEnv("ATE_ARDUINO_PORT", c.ArduinoPort)
	c.Results.SQLitePath = getEnv("ATE_RESULTS_SQLITE", c.Results.SQLitePath)
	c.Results.ClickHouseURL = getEnv("ATE_CLICKHOUSE_URL", c.Results.ClickHouseURL)
	c.MQTT.Broker = getEnv("ATE_MQTT_BROKER", c.MQTT.Broker)
	c.Telemetry.URL = getEnv("ATE_INFLUX_URL", c.Telemetry.URL)
	c.Telemetry.Token = getEnv("ATE_INFLUX_TOKEN", c.Telemetry.Token)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)

	if raw := os.Getenv("ATE_STOP_ON_FAIL"); raw != "" {
		stop, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid ATE_STOP_ON_FAIL: %w", err)
		}

		c.StopOnFail = &stop
	}

	if raw := os.Getenv("ATE_SEQUENCE"); raw != "" {
		c.Sequence = parseList(raw)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseList parses a comma-separated list.
func parseList(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}

	return items
}

// ParseList parses a comma-separated flag value.
func ParseList(s string) []string {
	return parseList(s)
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return "(not set)"
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid)"
	}

	return u.Redacted()
}
