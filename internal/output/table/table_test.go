package table

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/results"
)

func TestMain(m *testing.M) {
	// Plain text for stable assertions.
	color.NoColor = true

	os.Exit(m.Run())
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestColorHelper_FormatStatus(t *testing.T) {
	helper := NewColorHelper()

	tests := []struct {
		name     string
		outcome  devicetest.Outcome
		expected string
	}{
		{name: "passed", outcome: devicetest.Outcome{Passed: true}, expected: "✓ PASS"},
		{name: "failed", outcome: devicetest.Outcome{}, expected: "✗ FAIL"},
		{name: "faulted", outcome: devicetest.Outcome{Fault: errors.New("boom")}, expected: "⚠ FAULT"},
		{name: "canceled", outcome: devicetest.Outcome{Fault: context.Canceled}, expected: "⊘ CANCELED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, helper.FormatStatus(tt.outcome))
		})
	}
}

func TestColorHelper_FormatAssertions(t *testing.T) {
	helper := NewColorHelper()

	tests := []struct {
		name     string
		passed   int
		total    int
		expected string
	}{
		{name: "all passed", passed: 5, total: 5, expected: "5/5"},
		{name: "partial pass", passed: 3, total: 5, expected: "3/5"},
		{name: "all failed", passed: 0, total: 5, expected: "0/5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, helper.FormatAssertions(tt.passed, tt.total))
		})
	}
}

func TestColorHelper_FormatPercentage(t *testing.T) {
	helper := NewColorHelper()

	assert.Equal(t, "100.0%", helper.FormatPercentage(100))
	assert.Equal(t, "75.0%", helper.FormatPercentage(75))
	assert.Equal(t, "0.0%", helper.FormatPercentage(0))
}

func TestColorHelper_ColorsDisabledWhenNoColor(t *testing.T) {
	helper := NewColorHelper()
	assert.False(t, helper.enabled)

	assert.Equal(t, "test", helper.Success("test"))
	assert.Equal(t, "test", helper.Failure("test"))
	assert.Equal(t, "test", helper.Header("test"))
	assert.Equal(t, "REJECT CR", helper.FormatVerdict(results.DUTResult{ErrorCodes: "CR"}))
	assert.Equal(t, "ACCEPT", helper.FormatVerdict(results.DUTResult{Passed: true}))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "250ms", Duration(250*time.Millisecond))
	assert.Equal(t, "12.5s", Duration(12500*time.Millisecond))
	assert.Equal(t, "10m05s", Duration(10*time.Minute+5*time.Second))
}

func sampleRun() *results.Run {
	failing := devicetest.NewResult("min_rssi", false, devicetest.Fields(
		"measured_average", -97,
		"limits", devicetest.Fields("min", -95),
	))

	dut1 := results.NewDUTResult("dut1", device.Info{Serial: "SN-1", Class: device.WirelessGo3Rx}, []devicetest.Outcome{
		{Name: "firmware_version", Passed: true, Assertions: []devicetest.AssertionResult{devicetest.NewResult("firmware_version", true, nil)}},
	}, time.Now(), time.Second)

	dut2 := results.NewDUTResult("dut2", device.Info{Serial: "SN-2", Class: device.WirelessGo3Rx}, []devicetest.Outcome{
		{Name: "connection_stats", ErrorCode: "C", Assertions: []devicetest.AssertionResult{failing}},
		{Name: "rf_power", ErrorCode: "R", Fault: errors.New("opening power meter: port busy"), FaultPhase: devicetest.PhaseExecute},
	}, time.Now(), time.Second)

	return &results.Run{
		ID:       uuid.MustParse("b9a3f0c2-1d7e-4e55-9a1e-7f0c2d3e4a5b"),
		Station:  "station-1",
		Gender:   device.GenderRx,
		Duration: 90 * time.Second,
		DUTs:     []results.DUTResult{dut1, dut2},
	}
}

func TestResultsFormatter_Format(t *testing.T) {
	f := NewResultsFormatter(quietLogger(), NewRenderer(quietLogger()))

	out := f.Format(sampleRun().DUTs)

	assert.Contains(t, out, "Test Results")
	assert.Contains(t, out, "firmware_version")
	assert.Contains(t, out, "✓ PASS")
	assert.Contains(t, out, "✗ FAIL")
	assert.Contains(t, out, "⚠ FAULT")
	assert.Contains(t, out, "Failed Test Details")
	assert.Contains(t, out, `{"measured_average":-97,"limits":{"min":-95}}`)
	assert.Contains(t, out, "Fault [execute]: opening power meter: port busy")
	assert.NotContains(t, out, "Assertion: firmware_version")
}

func TestResultsFormatter_Empty(t *testing.T) {
	f := NewResultsFormatter(quietLogger(), NewRenderer(quietLogger()))

	assert.Equal(t, "No DUTs tested", f.Format(nil))

	out := f.Format([]results.DUTResult{{Label: "dut3"}})
	assert.Contains(t, out, "not run")
	assert.NotContains(t, out, "Failed Test Details")
}

func TestSummaryFormatter_Format(t *testing.T) {
	c := results.NewCollector(quietLogger())
	require.NoError(t, c.Start(context.Background()))

	run := sampleRun()
	for _, d := range run.DUTs {
		c.RecordDUT(d)
	}

	out := NewSummaryFormatter(quietLogger(), NewRenderer(quietLogger())).Format(run, c.Summary())

	assert.Contains(t, out, "b9a3f0c2-1d7e-4e55-9a1e-7f0c2d3e4a5b")
	assert.Contains(t, out, "1 (50.0%)")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "REJECT CR")
	assert.Contains(t, out, "ACCEPT")
	assert.Contains(t, out, "SN-2")
	assert.Equal(t, 1, strings.Count(out, "Verdicts"))
}
