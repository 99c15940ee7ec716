package results

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

func TestNewRunView(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	stats := devicetest.NewResult("average_rssi", false, devicetest.Fields("measured_average", -97, "min_rssi", -95)).WithErrorCode("C")

	dut := NewDUTResult("dut2", device.Info{Serial: "SN-2", Class: device.WirelessGo3Rx}, []devicetest.Outcome{
		{
			Name:       "connection_stats",
			ErrorCode:  "C",
			State:      devicetest.StateCompleted,
			Duration:   1500 * time.Millisecond,
			Assertions: []devicetest.AssertionResult{stats, {Name: "bare"}},
		},
		{
			Name:       "rf_power",
			ErrorCode:  "R",
			State:      devicetest.StateFaulted,
			Fault:      errors.New("meter offline"),
			FaultPhase: devicetest.PhaseExecute,
		},
	}, started, 2*time.Second)

	run := &Run{
		ID:       uuid.MustParse("b9a3f0c2-1d7e-4e55-9a1e-7f0c2d3e4a5b"),
		Station:  "station-1",
		Gender:   device.GenderRx,
		Started:  started,
		Duration: 3 * time.Second,
		DUTs:     []DUTResult{dut},
	}

	view := NewRunView(run)

	assert.Equal(t, "b9a3f0c2-1d7e-4e55-9a1e-7f0c2d3e4a5b", view.ID)
	assert.Equal(t, "rx", view.Gender)
	assert.Equal(t, int64(3000), view.DurationMS)
	assert.False(t, view.Passed)
	require.Len(t, view.DUTs, 1)

	d := view.DUTs[0]
	assert.Empty(t, d.RunID)
	assert.Equal(t, "REJECT", d.Verdict)
	assert.Equal(t, "CR", d.ErrorCodes)
	require.Len(t, d.Tests, 2)

	assert.Equal(t, "completed", d.Tests[0].State)
	assert.Equal(t, int64(1500), d.Tests[0].DurationMS)
	assert.Equal(t, "faulted", d.Tests[1].State)
	assert.Equal(t, "meter offline", d.Tests[1].Fault)
	assert.Equal(t, "execute", d.Tests[1].FaultPhase)

	data, err := json.Marshal(d.Tests[0].Assertions)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name":"average_rssi","passed":false,"error_code":"C","info":{"measured_average":-97,"min_rssi":-95}},
		{"name":"bare","passed":false,"info":{}}
	]`, string(data))
}

func TestNewMessageView(t *testing.T) {
	t.Parallel()

	msg := devicetest.NewMessage(devicetest.StatusFail, "rf_power", "Fault during execute")
	msg.Device = "dut3"
	msg.Fault = errors.New("meter offline")

	view := NewMessageView("station-2", msg)

	assert.Equal(t, "station-2", view.Station)
	assert.Equal(t, "dut3", view.DUT)
	assert.Equal(t, "fail", view.Status)
	assert.Equal(t, "rf_power", view.Source)
	assert.Equal(t, "meter offline", view.Fault)
	assert.Equal(t, msg.Time, view.Time)
}
