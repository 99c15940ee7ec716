package device

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidChannel is returned for an unknown channel name.
	ErrInvalidChannel = errors.New("invalid radio channel")
	// ErrInvalidAntenna is returned for an unknown antenna name.
	ErrInvalidAntenna = errors.New("invalid antenna")
	// ErrInvalidRFID is returned for a malformed pairing identifier.
	ErrInvalidRFID = errors.New("invalid rfid")
	// ErrInvalidVersion is returned for a malformed firmware version.
	ErrInvalidVersion = errors.New("invalid version")
)

// MaxChannel is the highest radio channel index.
const MaxChannel = 80

// Channel is a radio channel index, named CHANNEL_<n>.
type Channel int

// String returns the channel name.
func (c Channel) String() string {
	return fmt.Sprintf("CHANNEL_%d", int(c))
}

// ParseChannel parses a CHANNEL_<n> name.
func ParseChannel(name string) (Channel, error) {
	raw, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(name)), "CHANNEL_")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > MaxChannel {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}

	return Channel(n), nil
}

// Antenna is a radio antenna index, named ANTENNA_<n>.
type Antenna int

// Known antennas.
const (
	Antenna1 Antenna = 1
	Antenna2 Antenna = 2
)

// String returns the antenna name.
func (a Antenna) String() string {
	return fmt.Sprintf("ANTENNA_%d", int(a))
}

// ParseAntenna parses an ANTENNA_<n> name.
func ParseAntenna(name string) (Antenna, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ANTENNA_1":
		return Antenna1, nil
	case "ANTENNA_2":
		return Antenna2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAntenna, name)
	}
}

// RFIDLength is the byte length of a pairing identifier.
const RFIDLength = 4

// RFID is a pairing identifier.
type RFID [RFIDLength]byte

var (
	// UnassignedRFID is the value of a factory-blank identifier.
	UnassignedRFID = RFID{0xFF, 0xFF, 0xFF, 0xFF}
	// ZeroRFID clears a pairing slot.
	ZeroRFID = RFID{}
)

// String returns the identifier as lower-case hex.
func (r RFID) String() string {
	return hex.EncodeToString(r[:])
}

// ParseRFID decodes a hex identifier with an optional 0x prefix.
func ParseRFID(s string) (RFID, error) {
	var rfid RFID

	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	raw = strings.ReplaceAll(raw, " ", "")

	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return rfid, fmt.Errorf("%w: %q: %w", ErrInvalidRFID, s, err)
	}

	if len(decoded) != RFIDLength {
		return rfid, fmt.Errorf("%w: %q has %d bytes", ErrInvalidRFID, s, len(decoded))
	}

	copy(rfid[:], decoded)

	return rfid, nil
}

// Version is a firmware version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// String returns the dotted version.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses a dotted version with an optional v prefix. Missing
// minor or patch parts are zero.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")

	parts := strings.Split(raw, ".")
	if raw == "" || len(parts) > 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	nums := make([]int, 3)

	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}

		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// ChannelStats are the link counters of one audio channel.
type ChannelStats struct {
	AvgRSSI           int
	AudioMissedErrors int
	AudioCRCErrors    int
	BeaconErrors      int
}

// TotalErrors sums missed, CRC and beacon errors.
func (s ChannelStats) TotalErrors() int {
	return s.AudioMissedErrors + s.AudioCRCErrors + s.BeaconErrors
}

// ConnectionStats is the result of a link statistics measurement.
type ConnectionStats struct {
	Ch1 ChannelStats
	Ch2 ChannelStats
}

// Battery is a fuel gauge reading.
type Battery struct {
	StateOfCharge int
	Voltage       float64
	Temperature   float64
}

// HexBytes formats b as space separated hex for diagnostics.
func HexBytes(b []byte) string {
	var buf bytes.Buffer

	for i, v := range b {
		if i > 0 {
			buf.WriteByte(' ')
		}

		fmt.Fprintf(&buf, "%02X", v)
	}

	return buf.String()
}

// ParseHexBytes decodes space separated or contiguous hex.
func ParseHexBytes(s string) ([]byte, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), " ", "")

	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding hex %q: %w", s, err)
	}

	return b, nil
}
