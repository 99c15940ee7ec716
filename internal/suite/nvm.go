package suite

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// NVMTest compares a span of non-volatile memory with the expected bytes.
type NVMTest struct {
	*devicetest.Base

	dut      device.Device
	address  uint32
	expected []byte
}

var _ devicetest.Test = (*NVMTest)(nil)

// NewNVMTest creates the NVM content test.
func NewNVMTest(dut device.Device, address uint32, expected []byte) (*NVMTest, error) {
	if len(expected) == 0 {
		return nil, devicetest.Configf("nvm expected values are empty")
	}

	return &NVMTest{
		Base:     devicetest.NewBase(config.TestNVM, CodeNVM, dut),
		dut:      dut,
		address:  address,
		expected: append([]byte(nil), expected...),
	}, nil
}

// Run implements devicetest.Test.
func (t *NVMTest) Run(ctx context.Context) ([]devicetest.AssertionResult, error) {
	read, err := device.ReadNVM(ctx, t.dut, t.address, len(t.expected))
	if err != nil {
		return nil, fmt.Errorf("reading nvm at 0x%X: %w", t.address, err)
	}

	passed := bytes.Equal(read, t.expected)

	return []devicetest.AssertionResult{
		devicetest.NewResult("nvm_value", passed, devicetest.Fields(
			"read", device.HexBytes(read),
			"expected", device.HexBytes(t.expected),
		)),
	}, nil
}
