package device_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/device/sim"
)

func TestParseChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected device.Channel
		wantErr  bool
	}{
		{input: "CHANNEL_0", expected: 0},
		{input: "channel_40", expected: 40},
		{input: "CHANNEL_80", expected: 80},
		{input: "CHANNEL_81", wantErr: true},
		{input: "CHAN_1", wantErr: true},
		{input: "CHANNEL_x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			channel, err := device.ParseChannel(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, device.ErrInvalidChannel)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, channel)
		})
	}

	assert.Equal(t, "CHANNEL_20", device.Channel(20).String())
}

func TestParseAntenna(t *testing.T) {
	t.Parallel()

	antenna, err := device.ParseAntenna("ANTENNA_2")
	require.NoError(t, err)
	assert.Equal(t, device.Antenna2, antenna)
	assert.Equal(t, "ANTENNA_1", device.Antenna1.String())

	_, err = device.ParseAntenna("ANTENNA_3")
	assert.ErrorIs(t, err, device.ErrInvalidAntenna)
}

func TestParseRFID(t *testing.T) {
	t.Parallel()

	rfid, err := device.ParseRFID("0x80A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, device.RFID{0x80, 0xA1, 0xB2, 0xC3}, rfid)
	assert.Equal(t, "80a1b2c3", rfid.String())

	_, err = device.ParseRFID("0x80A1")
	assert.ErrorIs(t, err, device.ErrInvalidRFID)

	_, err = device.ParseRFID("zz")
	assert.ErrorIs(t, err, device.ErrInvalidRFID)
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected device.Version
		wantErr  bool
	}{
		{input: "0.1.2", expected: device.Version{Major: 0, Minor: 1, Patch: 2}},
		{input: "v1.4", expected: device.Version{Major: 1, Minor: 4}},
		{input: "2", expected: device.Version{Major: 2}},
		{input: "", wantErr: true},
		{input: "1.2.3.4", wantErr: true},
		{input: "1.x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			version, err := device.ParseVersion(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, device.ErrInvalidVersion)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, version)
		})
	}
}

func TestHexBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "00 00 04 01", device.HexBytes([]byte{0, 0, 4, 1}))

	b, err := device.ParseHexBytes("00 04 01 00")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 4, 1, 0}, b)

	_, err = device.ParseHexBytes("0g")
	assert.Error(t, err)
}

func TestTypedCommands(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dut := sim.NewDevice("dut1", device.WirelessGo3Rx, sim.WithPoweredOn())

	on, err := device.SystemIsOn(ctx, dut)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, device.SetRFID(ctx, dut, 1, device.RFID{1, 2, 3, 4}))

	rfid, err := device.GetRFID(ctx, dut, 1)
	require.NoError(t, err)
	assert.Equal(t, device.RFID{1, 2, 3, 4}, rfid)

	dut.Intercept(device.AppVersionCommand{}, func(_ context.Context, _ device.Command) (any, error) {
		return "not a version", nil
	})

	_, err = device.AppVersion(ctx, dut)
	assert.ErrorIs(t, err, device.ErrUnexpectedResponse)

	dut.Intercept(device.ResetCommand{}, func(_ context.Context, _ device.Command) (any, error) {
		return nil, device.ErrTransport
	})

	err = device.Reset(ctx, dut)
	assert.ErrorIs(t, err, device.ErrTransport)
	assert.Contains(t, err.Error(), "dut1")
}

func TestLabeled(t *testing.T) {
	t.Parallel()

	raw := sim.NewDevice("serial", device.WirelessGo3Rx)
	wrapped := device.Labeled(device.Labeled(raw, "dut1"), "dut2")

	assert.Equal(t, "dut2", wrapped.Label())
	assert.Same(t, raw, device.Unwrap(wrapped))
}

func TestClassesFor(t *testing.T) {
	t.Parallel()

	rx, err := device.ClassesFor(device.GenderRx)
	require.NoError(t, err)
	assert.Equal(t, device.Classes{DUT: device.WirelessGo3Rx, Reference: device.WirelessGo2Tx}, rx)

	tx, err := device.ClassesFor(device.GenderTx)
	require.NoError(t, err)
	assert.Equal(t, device.Classes{DUT: device.WirelessGo3Tx, Reference: device.WirelessGo2Rx}, tx)

	_, err = device.ClassesFor("xx")
	assert.ErrorIs(t, err, device.ErrUnknownGender)
}

type countingScanner struct {
	scans   int
	batches [][]*sim.Device
	err     error
}

func (c *countingScanner) Scan(_ context.Context) ([]device.Device, error) {
	if c.err != nil {
		return nil, c.err
	}

	idx := c.scans
	if idx >= len(c.batches) {
		idx = len(c.batches) - 1
	}

	c.scans++

	out := make([]device.Device, 0, len(c.batches[idx]))
	for _, d := range c.batches[idx] {
		out = append(out, d)
	}

	return out, nil
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	classes := device.Classes{DUT: device.WirelessGo3Rx, Reference: device.WirelessGo2Tx}
	ref := sim.NewDevice("ref-serial", device.WirelessGo2Tx)
	stray := sim.NewDevice("stray", device.WirelessGo3Tx)
	slot3 := sim.NewDevice("a", device.WirelessGo3Rx, sim.WithSlot(3))
	free1 := sim.NewDevice("b", device.WirelessGo3Rx)
	free2 := sim.NewDevice("c", device.WirelessGo3Rx)

	t.Run("places slotted devices and fills the rest", func(t *testing.T) {
		t.Parallel()

		scanner := &countingScanner{batches: [][]*sim.Device{{free1, stray, slot3, ref, free2}}}

		roster, err := device.Discover(context.Background(), scanner, classes, 0, 0)
		require.NoError(t, err)

		require.NotNil(t, roster.Reference)
		assert.Equal(t, "reference", roster.Reference.Label())
		assert.Same(t, slot3, device.Unwrap(roster.DUTs[2]))
		assert.Same(t, free1, device.Unwrap(roster.DUTs[0]))
		assert.Same(t, free2, device.Unwrap(roster.DUTs[1]))
		assert.Nil(t, roster.DUTs[3])
		assert.Equal(t, "dut3", roster.DUTs[2].Label())
		assert.Len(t, roster.Present(), 3)
		assert.False(t, roster.Complete())
	})

	t.Run("retries until complete", func(t *testing.T) {
		t.Parallel()

		d4 := sim.NewDevice("d", device.WirelessGo3Rx)
		scanner := &countingScanner{batches: [][]*sim.Device{
			{ref, free1},
			{ref, free1, free2, slot3, d4},
		}}

		roster, err := device.Discover(context.Background(), scanner, classes, 3, 0)
		require.NoError(t, err)
		assert.True(t, roster.Complete())
		assert.Equal(t, 2, scanner.scans)
	})

	t.Run("missing reference", func(t *testing.T) {
		t.Parallel()

		scanner := &countingScanner{batches: [][]*sim.Device{{free1}}}

		roster, err := device.Discover(context.Background(), scanner, classes, 2, 0)
		require.ErrorIs(t, err, device.ErrReferenceNotFound)
		assert.Equal(t, 3, scanner.scans)
		assert.NotNil(t, roster.DUTs[0])
	})

	t.Run("scanner error", func(t *testing.T) {
		t.Parallel()

		errScan := errors.New("hid unavailable")
		_, err := device.Discover(context.Background(), &countingScanner{err: errScan}, classes, 0, 0)
		assert.ErrorIs(t, err, errScan)
	})

	t.Run("no scanner", func(t *testing.T) {
		t.Parallel()

		_, err := device.Discover(context.Background(), nil, classes, 0, 0)
		assert.ErrorIs(t, err, device.ErrNoScanner)
	})
}

func TestRosterFilter(t *testing.T) {
	t.Parallel()

	fixture := sim.NewFixture(device.Classes{DUT: device.WirelessGo3Rx, Reference: device.WirelessGo2Tx}, 4)

	roster, err := device.Discover(context.Background(), fixture.Scanner(), device.Classes{
		DUT:       device.WirelessGo3Rx,
		Reference: device.WirelessGo2Tx,
	}, 0, 0)
	require.NoError(t, err)
	require.True(t, roster.Complete())

	filtered := roster.Filter([]string{"dut1", "dut3"})
	assert.Len(t, filtered.Present(), 2)
	assert.NotNil(t, filtered.DUTs[0])
	assert.Nil(t, filtered.DUTs[1])
	assert.NotNil(t, filtered.Reference)

	assert.Len(t, roster.Filter(nil).Present(), 4)
}
