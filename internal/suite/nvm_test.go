package suite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/device/sim"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

func TestNVMTest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stored   []byte
		passed   bool
		readInfo string
	}{
		{name: "matching", stored: []byte{0x00, 0x00, 0x04, 0x01}, passed: true, readInfo: "00 00 04 01"},
		{name: "mismatch", stored: []byte{0x00, 0x00, 0x04, 0x00}, passed: false, readInfo: "00 00 04 00"},
		{name: "blank", stored: nil, passed: false, readInfo: "00 00 00 00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dut := sim.NewDevice("dut1", device.WirelessGo3Rx, sim.WithNVM(0xC, tt.stored))

			test, err := NewNVMTest(dut, 0xC, []byte{0x00, 0x00, 0x04, 0x01})
			require.NoError(t, err)

			outcome := devicetest.Execute(context.Background(), test)
			require.NoError(t, outcome.Fault)

			result := assertion(t, outcome, "nvm_value")
			assert.Equal(t, tt.passed, result.Passed)
			assert.Equal(t, tt.readInfo, infoValue(t, result, "read"))
			assert.Equal(t, "00 00 04 01", infoValue(t, result, "expected"))

			if !tt.passed {
				assert.Equal(t, CodeNVM, outcome.ErrorCode)
			}
		})
	}
}

func TestNVMTest_GenderExpectations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		class    device.Class
		address  uint32
		expected []byte
	}{
		{name: "rx", class: device.WirelessGo3Rx, address: 0xC, expected: []byte{0x00, 0x00, 0x04, 0x01}},
		{name: "tx", class: device.WirelessGo3Tx, address: 0x8, expected: []byte{0x00, 0x04, 0x01, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dut := sim.NewDevice("dut1", tt.class, sim.WithNVM(tt.address, tt.expected))

			test, err := NewNVMTest(dut, tt.address, tt.expected)
			require.NoError(t, err)

			outcome := devicetest.Execute(context.Background(), test)
			require.NoError(t, outcome.Fault)
			assert.True(t, outcome.Passed)

			// Erased memory must not match.
			other := sim.NewDevice("dut2", tt.class, sim.WithNVM(tt.address, []byte{0xFF, 0xFF, 0xFF, 0xFF}))

			test, err = NewNVMTest(other, tt.address, tt.expected)
			require.NoError(t, err)

			outcome = devicetest.Execute(context.Background(), test)
			require.NoError(t, outcome.Fault)
			assert.False(t, outcome.Passed)
			assert.Equal(t, "FF FF FF FF", infoValue(t, assertion(t, outcome, "nvm_value"), "read"))
		})
	}
}

func TestNVMTest_RepeatedRunsAgree(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stored []byte
	}{
		{name: "matching", stored: []byte{0x00, 0x00, 0x04, 0x01}},
		{name: "mismatch", stored: []byte{0x00, 0x01, 0x04, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dut := sim.NewDevice("dut1", device.WirelessGo3Rx, sim.WithNVM(0xC, tt.stored))

			run := func() devicetest.Outcome {
				test, err := NewNVMTest(dut, 0xC, []byte{0x00, 0x00, 0x04, 0x01})
				require.NoError(t, err)

				outcome := devicetest.Execute(context.Background(), test)
				require.NoError(t, outcome.Fault)

				return outcome
			}

			first := run()
			reads := dut.CallCount(device.NVMReadCommand{})

			second := run()

			assert.Equal(t, first.Passed, second.Passed)
			assert.Equal(t, first.ErrorCode, second.ErrorCode)
			assert.Equal(t, first.Assertions, second.Assertions)
			assert.Equal(t, 2*reads, dut.CallCount(device.NVMReadCommand{}))
		})
	}
}

func TestNVMTest_EmptyExpectation(t *testing.T) {
	t.Parallel()

	_, err := NewNVMTest(sim.NewDevice("dut1", device.WirelessGo3Rx), 0xC, nil)
	require.ErrorIs(t, err, devicetest.ErrConfiguration)
}
