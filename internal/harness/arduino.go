// Package harness drives the Arduino-based RF power-measurement harness over
// a serial line.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

const (
	// DefaultBaudRate is the harness line speed.
	DefaultBaudRate = 57600
	// DefaultReadTimeout bounds each serial read.
	DefaultReadTimeout = 300 * time.Millisecond
	// DefaultWriteDelay is the pause before each request.
	DefaultWriteDelay = 300 * time.Millisecond
	// DefaultEOL terminates every line on the wire.
	DefaultEOL = "\r\n"

	analogAttempts = 5
	modeAttempts   = 5
	maxDrainLines  = 256
	maxLineBytes   = 1024
)

var (
	// ErrDecode is returned when an analog reading cannot be parsed.
	ErrDecode = errors.New("failed to decode harness response")
	// ErrModeNotAcknowledged is returned when the harness does not confirm a mode change.
	ErrModeNotAcknowledged = errors.New("harness did not acknowledge mode")
	// ErrInvalidMode is returned for an unknown harness mode.
	ErrInvalidMode = errors.New("invalid harness mode")
	// ErrInvalidChannel is returned for an analog channel other than 0 or 1.
	ErrInvalidChannel = errors.New("invalid analog channel")
	// ErrNoPort is returned when no serial port is configured.
	ErrNoPort = errors.New("no serial port configured")
)

// Mode is an operating mode of the harness.
type Mode string

// Harness modes.
const (
	ModeMeasure Mode = "M"
	ModeZero    Mode = "Z"
	ModePark    Mode = "P"
)

// ParseMode validates a mode letter.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeMeasure, ModeZero, ModePark:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q, expected M, Z or P", ErrInvalidMode, s)
	}
}

// Config holds the serial settings of the harness.
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	WriteDelay  time.Duration
	EOL         string
}

// DefaultConfig returns the harness defaults for the given port.
func DefaultConfig(port string) Config {
	return Config{
		Port:        port,
		BaudRate:    DefaultBaudRate,
		ReadTimeout: DefaultReadTimeout,
		WriteDelay:  DefaultWriteDelay,
		EOL:         DefaultEOL,
	}
}

// Option configures an Arduino.
type Option func(*Arduino)

// WithSleep replaces the function used for the pre-write delay.
func WithSleep(sleep devicetest.SleepFunc) Option {
	return func(a *Arduino) {
		a.sleep = sleep
	}
}

// Arduino is a connected harness. Calls are serialized.
type Arduino struct {
	mu    sync.Mutex
	port  io.ReadWriteCloser
	cfg   Config
	log   logrus.FieldLogger
	sleep devicetest.SleepFunc
}

// Open opens the serial port and drains any pending output.
func Open(cfg Config, log logrus.FieldLogger, opts ...Option) (*Arduino, error) {
	if cfg.Port == "" {
		return nil, ErrNoPort
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("opening harness on %s: %w", cfg.Port, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", cfg.Port, err)
	}

	return New(port, cfg, log, opts...)
}

// New wraps an already-open line and drains any pending output. A read that
// returns no data is treated as a timeout.
func New(port io.ReadWriteCloser, cfg Config, log logrus.FieldLogger, opts ...Option) (*Arduino, error) {
	if cfg.EOL == "" {
		cfg.EOL = DefaultEOL
	}

	a := &Arduino{
		port:  port,
		cfg:   cfg,
		log:   log.WithField("component", "harness"),
		sleep: devicetest.Sleep,
	}

	for _, opt := range opts {
		opt(a)
	}

	drained := 0

	for ; drained < maxDrainLines; drained++ {
		line, err := a.readLine()
		if err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("draining harness: %w", err)
		}

		if len(line) == 0 {
			break
		}
	}

	a.log.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"drained": drained,
	}).Debug("Harness connected")

	return a, nil
}

// Close closes the serial line.
func (a *Arduino) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.port.Close()
}

// WriteRead waits the write delay, sends msg and returns the next line with
// the terminator stripped.
func (a *Arduino) WriteRead(ctx context.Context, msg string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.writeRead(ctx, msg)
}

func (a *Arduino) writeRead(ctx context.Context, msg string) (string, error) {
	if err := a.sleep(ctx, a.cfg.WriteDelay); err != nil {
		return "", err
	}

	if err := a.writeLine(msg); err != nil {
		return "", err
	}

	line, err := a.readLine()
	if err != nil {
		return "", err
	}

	return a.trim(line), nil
}

// Analog reads the voltage on analog channel 0 or 1. Lines that do not parse
// as a number are skipped, up to five reads in total.
func (a *Arduino) Analog(ctx context.Context, channel int) (float64, error) {
	if channel != 0 && channel != 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	response, err := a.writeRead(ctx, fmt.Sprintf("A%d", channel))
	if err != nil {
		return 0, fmt.Errorf("reading analog channel %d: %w", channel, err)
	}

	for attempt := 1; ; attempt++ {
		value, parseErr := strconv.ParseFloat(strings.TrimSpace(response), 64)
		if parseErr == nil {
			return value, nil
		}

		if attempt >= analogAttempts {
			break
		}

		line, err := a.readLine()
		if err != nil {
			return 0, fmt.Errorf("reading analog channel %d: %w", channel, err)
		}

		response = a.trim(line)
	}

	return 0, fmt.Errorf("%w: analog channel %d, response %q", ErrDecode, channel, response)
}

// RadioPower converts the detector voltage on channel 0 to dBm.
func (a *Arduino) RadioPower(ctx context.Context) (float64, error) {
	voltage, err := a.Analog(ctx, 0)
	if err != nil {
		return 0, err
	}

	return VoltageToPower(voltage), nil
}

// VoltageToPower maps the detector voltage to radiated power in dBm.
func VoltageToPower(voltage float64) float64 {
	return -40*voltage + 20
}

// SetMode switches the harness mode and waits for an OK line.
func (a *Arduino) SetMode(_ context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writeLine("M" + string(mode)); err != nil {
		return fmt.Errorf("setting harness mode %s: %w", mode, err)
	}

	var response string

	for attempt := 0; attempt < modeAttempts; attempt++ {
		line, err := a.readLine()
		if err != nil {
			return fmt.Errorf("setting harness mode %s: %w", mode, err)
		}

		response = a.trim(line)
		if strings.Contains(response, "OK") {
			a.log.WithField("mode", mode).Debug("Harness mode set")
			return nil
		}
	}

	return fmt.Errorf("%w: mode %s, response %q", ErrModeNotAcknowledged, mode, response)
}

func (a *Arduino) writeLine(msg string) error {
	if _, err := a.port.Write([]byte(msg + a.cfg.EOL)); err != nil {
		return fmt.Errorf("writing %q: %w", msg, err)
	}

	return nil
}

// readLine reads until the terminator or a read returns no data.
func (a *Arduino) readLine() ([]byte, error) {
	var (
		line []byte
		buf  = make([]byte, 1)
		eol  = []byte(a.cfg.EOL)
	)

	for len(line) < maxLineBytes {
		n, err := a.port.Read(buf)
		if n > 0 {
			line = append(line, buf[0])
			if bytes.HasSuffix(line, eol) {
				return line, nil
			}
		}

		if errors.Is(err, io.EOF) || (n == 0 && err == nil) {
			return line, nil
		}

		if err != nil {
			return line, fmt.Errorf("reading harness line: %w", err)
		}
	}

	return line, nil
}

func (a *Arduino) trim(line []byte) string {
	return strings.ReplaceAll(string(line), a.cfg.EOL, "")
}
