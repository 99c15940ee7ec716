package suite

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// FirmwareVersionTest checks the MCU and radio firmware against minimum
// versions.
type FirmwareVersionTest struct {
	*devicetest.Base

	dut      device.Device
	minMCU   device.Version
	minRadio device.Version
}

var _ devicetest.Test = (*FirmwareVersionTest)(nil)

// NewFirmwareVersionTest creates the firmware floor test.
func NewFirmwareVersionTest(dut device.Device, minMCU, minRadio string) (*FirmwareVersionTest, error) {
	mcu, err := device.ParseVersion(minMCU)
	if err != nil {
		return nil, devicetest.Configf("minimum mcu version: %v", err)
	}

	radio, err := device.ParseVersion(minRadio)
	if err != nil {
		return nil, devicetest.Configf("minimum radio version: %v", err)
	}

	return &FirmwareVersionTest{
		Base:     devicetest.NewBase(config.TestFirmwareVersion, CodeFirmware, dut),
		dut:      dut,
		minMCU:   mcu,
		minRadio: radio,
	}, nil
}

// Run implements devicetest.Test.
func (t *FirmwareVersionTest) Run(ctx context.Context) ([]devicetest.AssertionResult, error) {
	app, err := device.AppVersion(ctx, t.dut)
	if err != nil {
		return nil, fmt.Errorf("reading firmware version: %w", err)
	}

	results := []devicetest.AssertionResult{versionResult("firmware_version", app, t.minMCU)}

	radio, err := device.RadioVersion(ctx, t.dut)
	if err != nil {
		return results, fmt.Errorf("reading radio version: %w", err)
	}

	return append(results, versionResult("nordic_version", radio, t.minRadio)), nil
}

func versionResult(name string, found, minimum device.Version) devicetest.AssertionResult {
	passed := semver.Compare(canonicalSemver(found), canonicalSemver(minimum)) >= 0

	return devicetest.NewResult(name, passed, devicetest.Fields(
		"found", found.String(),
		"minimum", minimum.String(),
	))
}

// canonicalSemver renders a version as a canonical vMAJOR.MINOR.PATCH string.
func canonicalSemver(v device.Version) string {
	candidate := "v" + strings.TrimPrefix(v.String(), "v")
	if semver.IsValid(candidate) {
		return semver.Canonical(candidate)
	}

	return ""
}
