package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/results"
	"github.com/ethpandaops/rf-ate/internal/station"
)

var _ station.Sink = (*Store)(nil)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "results", "ate.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))

	return s
}

func sampleRun(started time.Time) *results.Run {
	pass := results.NewDUTResult("dut1", device.Info{Serial: "SN-1", Class: device.WirelessGo3Rx}, []devicetest.Outcome{
		{
			Name:       "firmware_version",
			Passed:     true,
			State:      devicetest.StateCompleted,
			Assertions: []devicetest.AssertionResult{devicetest.NewResult("firmware_version", true, devicetest.Fields("mcu", "0.1.3"))},
			Started:    started,
			Duration:   time.Second,
		},
	}, started, time.Second)

	fail := results.NewDUTResult("dut2", device.Info{Serial: "SN-2", Class: device.WirelessGo3Rx}, []devicetest.Outcome{
		{
			Name:      "connection_stats",
			ErrorCode: "C",
			State:     devicetest.StateCompleted,
			Assertions: []devicetest.AssertionResult{
				devicetest.NewResult("min_rssi", false, devicetest.Fields("measured_average", -97, "limits", devicetest.Fields("min", -95))),
				devicetest.NewResult("allowed_errors", true, nil),
			},
			Started:  started,
			Duration: 2 * time.Second,
		},
		{
			Name:       "rf_power",
			ErrorCode:  "R",
			State:      devicetest.StateFaulted,
			Fault:      errors.New("opening power meter: port busy"),
			FaultPhase: devicetest.PhaseExecute,
			Started:    started,
		},
	}, started, 3*time.Second)

	return &results.Run{
		ID:       uuid.New(),
		Station:  "station-1",
		Gender:   device.GenderRx,
		Started:  started,
		Duration: 3 * time.Second,
		DUTs:     []results.DUTResult{pass, fail},
	}
}

func count(t *testing.T, s *Store, table string) int {
	t.Helper()

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))

	return n
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Migrate(context.Background()))
	assert.Equal(t, 0, count(t, s, "runs"))
	assert.Equal(t, "sqlite", s.Name())
}

func TestSQLite_PublishRun(t *testing.T) {
	s := openTestStore(t)
	run := sampleRun(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	require.NoError(t, s.PublishRun(context.Background(), run))

	assert.Equal(t, 1, count(t, s, "runs"))
	assert.Equal(t, 2, count(t, s, "dut_results"))
	assert.Equal(t, 3, count(t, s, "test_outcomes"))
	assert.Equal(t, 3, count(t, s, "assertions"))

	var codes string
	require.NoError(t, s.db.QueryRow(
		"SELECT error_codes FROM dut_results WHERE run_id = ? AND dut = ?", run.ID.String(), "dut2",
	).Scan(&codes))
	assert.Equal(t, "CR", codes)

	var fault, phase string
	require.NoError(t, s.db.QueryRow(
		"SELECT fault, fault_phase FROM test_outcomes WHERE run_id = ? AND test = ?", run.ID.String(), "rf_power",
	).Scan(&fault, &phase))
	assert.Equal(t, "opening power meter: port busy", fault)
	assert.Equal(t, "execute", phase)

	var info string
	require.NoError(t, s.db.QueryRow(
		"SELECT info FROM assertions WHERE run_id = ? AND name = ?", run.ID.String(), "min_rssi",
	).Scan(&info))
	assert.JSONEq(t, `{"measured_average":-97,"limits":{"min":-95}}`, info)
	assert.True(t, json.Valid([]byte(info)))
}

func TestSQLite_PublishRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	run := sampleRun(time.Now())

	require.NoError(t, s.PublishRun(context.Background(), run))
	require.Error(t, s.PublishRun(context.Background(), run))

	// The failed transaction leaves no partial rows behind.
	assert.Equal(t, 1, count(t, s, "runs"))
	assert.Equal(t, 3, count(t, s, "assertions"))
}

func TestSQLite_ListRuns(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	ids := make([]string, 0, 3)

	for i := 0; i < 3; i++ {
		run := sampleRun(base.Add(time.Duration(i) * time.Hour))
		require.NoError(t, s.PublishRun(context.Background(), run))
		ids = append(ids, run.ID.String())
	}

	records, err := s.ListRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, ids[2], records[0].ID)
	assert.Equal(t, ids[1], records[1].ID)

	rec := records[0]
	assert.Equal(t, "station-1", rec.Station)
	assert.Equal(t, "rx", rec.Gender)
	assert.True(t, rec.Started.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, 3*time.Second, rec.Duration)
	assert.False(t, rec.Passed)
	assert.Equal(t, 2, rec.DUTs)
	assert.Equal(t, 1, rec.Rejected)

	all, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_Errors(t *testing.T) {
	_, err := OpenSQLite("", quietLogger())
	require.ErrorIs(t, err, ErrNoPath)

	s := openTestStore(t)
	require.ErrorIs(t, s.PublishRun(context.Background(), nil), ErrNilRun)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.PublishRun(context.Background(), sampleRun(time.Now())), ErrClosed)
	require.ErrorIs(t, s.Migrate(context.Background()), ErrClosed)

	_, err = s.ListRuns(context.Background(), 1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestMigrate_CanceledContext(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "ate.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Migrate(ctx), context.Canceled)
}
