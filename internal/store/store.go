// Package store persists finished station runs to SQL databases: a local
// SQLite file on the station and an optional central ClickHouse server.
// Both backends share one schema layout and apply their migrations with
// golang-migrate.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/iancoleman/orderedmap"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/results"
)

// DefaultListLimit is the number of runs ListRuns returns for a zero limit.
const DefaultListLimit = 20

var (
	// ErrNilRun is returned when publishing a nil run.
	ErrNilRun = errors.New("run is nil")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
	// ErrNoPath is returned when opening SQLite without a file path.
	ErrNoPath = errors.New("sqlite path is empty")
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID       string
	Station  string
	Gender   string
	Started  time.Time
	Duration time.Duration
	Passed   bool
	DUTs     int
	Rejected int
}

// Store writes runs to one SQL backend.
type Store struct {
	log        logrus.FieldLogger
	db         *sql.DB
	name       string
	dbName     string
	migrations string
	batchPerTx bool
	driver     func(db *sql.DB) (database.Driver, error)
}

// Name implements station.Sink.
func (s *Store) Name() string { return s.name }

// Migrate applies every pending migration.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}

	driver, err := s.driver(s.db)
	if err != nil {
		return fmt.Errorf("creating %s migration driver: %w", s.name, err)
	}

	return runMigrations(ctx, s.log, s.migrations, s.dbName, driver)
}

// PublishRun implements station.Sink. A run's rows are written in one
// transaction unless the backend commits a single batch at a time.
func (s *Store) PublishRun(ctx context.Context, run *results.Run) error {
	if run == nil {
		return ErrNilRun
	}

	if s.db == nil {
		return ErrClosed
	}

	rows := flatten(run)

	if err := s.write(ctx, rows.batches()); err != nil {
		return fmt.Errorf("storing run %s: %w", run.ID, err)
	}

	s.log.WithFields(logrus.Fields{
		"run_id":     run.ID,
		"duts":       len(rows.duts),
		"outcomes":   len(rows.outcomes),
		"assertions": len(rows.assertions),
	}).Debug("Stored run")

	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, station, gender, started_at, duration_ms, passed, dut_count, rejected_count
		FROM runs ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0, limit)

	for rows.Next() {
		var (
			rec                 RunRecord
			durationMS          int64
			dutCount, rejectedN int64
		)

		if err := rows.Scan(&rec.ID, &rec.Station, &rec.Gender, &rec.Started, &durationMS, &rec.Passed, &dutCount, &rejectedN); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.DUTs = int(dutCount)
		rec.Rejected = int(rejectedN)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return records, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	db := s.db
	s.db = nil

	if err := db.Close(); err != nil {
		return fmt.Errorf("closing %s store: %w", s.name, err)
	}

	return nil
}

type runRows struct {
	run        []interface{}
	duts       [][]interface{}
	outcomes   [][]interface{}
	assertions [][]interface{}
}

const (
	insertRun = `INSERT INTO runs (id, station, gender, started_at, duration_ms, passed, dut_count, rejected_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	insertDUT = `INSERT INTO dut_results (run_id, dut, serial, class, passed, error_codes, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	insertOutcome = `INSERT INTO test_outcomes (run_id, dut, position, test, passed, state, error_code, fault, fault_phase, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertAssertion = `INSERT INTO assertions (run_id, dut, test, position, name, passed, error_code, info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

// flatten converts a run into table rows. Times are stored in UTC.
func flatten(run *results.Run) runRows {
	id := run.ID.String()
	_, rejected := run.Counts()

	rows := runRows{
		run: []interface{}{
			id, run.Station, string(run.Gender), run.Started.UTC(),
			run.Duration.Milliseconds(), run.Passed(), int64(len(run.DUTs)), int64(rejected),
		},
	}

	for _, d := range run.DUTs {
		rows.duts = append(rows.duts, []interface{}{
			id, d.Label, d.Serial, string(d.Class), d.Passed, d.ErrorCodes,
			d.Started.UTC(), d.Duration.Milliseconds(),
		})

		for i, o := range d.Outcomes {
			fault := ""
			if o.Fault != nil {
				fault = o.Fault.Error()
			}

			rows.outcomes = append(rows.outcomes, []interface{}{
				id, d.Label, int64(i), o.Name, o.Passed, o.State.String(), o.ErrorCode,
				fault, string(o.FaultPhase), o.Started.UTC(), o.Duration.Milliseconds(),
			})

			for j, a := range o.Assertions {
				rows.assertions = append(rows.assertions, []interface{}{
					id, d.Label, o.Name, int64(j), a.Name, a.Passed, a.ErrorCode, encodeInfo(a.Info),
				})
			}
		}
	}

	return rows
}

func encodeInfo(info *orderedmap.OrderedMap) string {
	if info == nil {
		return "{}"
	}

	data, err := info.MarshalJSON()
	if err != nil {
		return "{}"
	}

	return string(data)
}

type batch struct {
	table string
	query string
	rows  [][]interface{}
}

func (r runRows) batches() []batch {
	all := []batch{
		{table: "runs", query: insertRun, rows: [][]interface{}{r.run}},
		{table: "dut_results", query: insertDUT, rows: r.duts},
		{table: "test_outcomes", query: insertOutcome, rows: r.outcomes},
		{table: "assertions", query: insertAssertion, rows: r.assertions},
	}

	out := make([]batch, 0, len(all))

	for _, b := range all {
		if len(b.rows) > 0 {
			out = append(out, b)
		}
	}

	return out
}

// write inserts the batches in one transaction, or one transaction per
// batch when the driver sends a single batch per commit.
func (s *Store) write(ctx context.Context, batches []batch) error {
	if s.batchPerTx {
		for _, b := range batches {
			if err := s.inTx(ctx, []batch{b}); err != nil {
				return err
			}
		}

		return nil
	}

	return s.inTx(ctx, batches)
}

func (s *Store) inTx(ctx context.Context, batches []batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	for _, b := range batches {
		if err := insertBatch(ctx, tx, b.query, b.rows); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("inserting %s: %w", b.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, query string, rows [][]interface{}) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return err
		}
	}

	return nil
}
