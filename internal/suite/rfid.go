package suite

import (
	"context"
	"fmt"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/rfid"
)

// AllocationComment tags identifiers allocated by this station.
const AllocationComment = "filmmaker_rf_ate"

// RFIDAssignmentTest gives a factory-blank DUT its own identifier, or checks
// that an existing one is in the product range.
type RFIDAssignmentTest struct {
	*devicetest.Base

	dut         device.Device
	allocator   rfid.Allocator
	firstNibble byte
}

var _ devicetest.Test = (*RFIDAssignmentTest)(nil)

// NewRFIDAssignmentTest creates the identifier assignment test.
func NewRFIDAssignmentTest(dut device.Device, allocator rfid.Allocator, expectedFirstNibble int) (*RFIDAssignmentTest, error) {
	if allocator == nil {
		return nil, devicetest.Configf("rfid assignment: no allocator")
	}

	if expectedFirstNibble < 0 || expectedFirstNibble > 0xF {
		return nil, devicetest.Configf("rfid assignment: first nibble %d out of range", expectedFirstNibble)
	}

	return &RFIDAssignmentTest{
		Base:        devicetest.NewBase(config.TestRFIDAssignment, CodeRFID, dut),
		dut:         dut,
		allocator:   allocator,
		firstNibble: byte(expectedFirstNibble), //nolint:gosec // range checked above
	}, nil
}

// Run implements devicetest.Test.
func (t *RFIDAssignmentTest) Run(ctx context.Context) ([]devicetest.AssertionResult, error) {
	current, err := device.GetRFID(ctx, t.dut, 0)
	if err != nil {
		return nil, err
	}

	var result devicetest.AssertionResult

	if current == device.UnassignedRFID {
		result, err = t.assign(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		result = devicetest.NewResult("rfid_valid", current[0]&0xF0 == t.firstNibble<<4, devicetest.Fields(
			"device_rfid", current.String(),
		))
	}

	return []devicetest.AssertionResult{result}, nil
}

func (t *RFIDAssignmentTest) assign(ctx context.Context) (devicetest.AssertionResult, error) {
	info := t.dut.Info()

	raw, err := t.allocator.Next(ctx, info.Family, info.ProductID, AllocationComment)
	if err != nil {
		return devicetest.AssertionResult{}, fmt.Errorf("allocating rfid: %w", err)
	}

	allocated, err := device.ParseRFID(raw)
	if err != nil {
		return devicetest.AssertionResult{}, fmt.Errorf("allocating rfid: %w", err)
	}

	t.Runningf("Assigning device RFID %s", allocated)

	if err := device.SetRFID(ctx, t.dut, 0, allocated); err != nil {
		return devicetest.AssertionResult{}, err
	}

	readBack, err := device.GetRFID(ctx, t.dut, 0)
	if err != nil {
		return devicetest.AssertionResult{}, err
	}

	return devicetest.NewResult("rfid_assigned", readBack == allocated, devicetest.Fields(
		"device_rfid", readBack.String(),
		"expected", allocated.String(),
	)), nil
}
