// Package report exports a finished run as an XLSX workbook for quality
// records: a Summary sheet with per-DUT verdicts and an Assertions sheet
// with every check and its diagnostics.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/ethpandaops/rf-ate/internal/results"
)

const (
	// SummarySheet lists the run and the verdict of every DUT.
	SummarySheet = "Summary"
	// AssertionsSheet lists every assertion of every test.
	AssertionsSheet = "Assertions"

	dirPermissions = 0o750
	faultRowName   = "(fault)"
)

// ErrNoDir is returned when the report directory is empty.
var ErrNoDir = errors.New("report directory is empty")

var assertionHeaders = []interface{}{"DUT", "Test", "Test Result", "Assertion", "Result", "Error Code", "Info"}

// Writer is a run sink that writes one workbook per run.
type Writer struct {
	log logrus.FieldLogger
	dir string
}

// NewWriter creates a writer for dir.
func NewWriter(dir string, log logrus.FieldLogger) (*Writer, error) {
	if dir == "" {
		return nil, ErrNoDir
	}

	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	return &Writer{
		log: log.WithField("component", "report"),
		dir: dir,
	}, nil
}

// Name implements station.Sink.
func (w *Writer) Name() string { return "report" }

// Path returns the workbook path of run.
func (w *Writer) Path(run *results.Run) string {
	return filepath.Join(w.dir, run.ID.String()+".xlsx")
}

// PublishRun implements station.Sink.
func (w *Writer) PublishRun(ctx context.Context, run *results.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := w.Path(run)

	if err := WriteXLSX(path, run); err != nil {
		return err
	}

	w.log.WithField("path", path).Info("Wrote run report")

	return nil
}

// WriteXLSX writes run to path.
func WriteXLSX(path string, run *results.Run) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("naming summary sheet: %w", err)
	}

	if _, err := f.NewSheet(AssertionsSheet); err != nil {
		return fmt.Errorf("creating assertions sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := writeSummary(f, run, bold); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	if err := writeAssertions(f, run, bold); err != nil {
		return fmt.Errorf("writing assertions: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}

	return nil
}

func writeSummary(f *excelize.File, run *results.Run, headerStyle int) error {
	accepted, rejected := run.Counts()

	rows := [][]interface{}{
		{"Run", run.ID.String()},
		{"Station", run.Station},
		{"Gender", string(run.Gender)},
		{"Started", run.Started.UTC().Format(time.RFC3339)},
		{"Duration (s)", run.Duration.Seconds()},
		{"Accepted", accepted},
		{"Rejected", rejected},
		{},
		{"DUT", "Serial", "Class", "Verdict", "Error Codes", "Duration (s)"},
	}

	for _, d := range run.DUTs {
		rows = append(rows, []interface{}{
			d.Label, d.Serial, string(d.Class), string(d.Verdict()), d.ErrorCodes, d.Duration.Seconds(),
		})
	}

	if err := writeRows(f, SummarySheet, rows); err != nil {
		return err
	}

	// Label column and the DUT table header.
	if err := f.SetCellStyle(SummarySheet, "A1", "A7", headerStyle); err != nil {
		return err
	}

	return f.SetCellStyle(SummarySheet, "A9", "F9", headerStyle)
}

func writeAssertions(f *excelize.File, run *results.Run, headerStyle int) error {
	rows := [][]interface{}{assertionHeaders}

	for _, d := range run.DUTs {
		for _, o := range d.Outcomes {
			for _, a := range o.Assertions {
				info := "{}"
				if a.Info != nil {
					if data, err := a.Info.MarshalJSON(); err == nil {
						info = string(data)
					}
				}

				rows = append(rows, []interface{}{d.Label, o.Name, result(o.Passed), a.Name, result(a.Passed), a.ErrorCode, info})
			}

			if o.Fault != nil {
				rows = append(rows, []interface{}{
					d.Label, o.Name, result(o.Passed), faultRowName, result(false), o.ErrorCode,
					fmt.Sprintf("%s: %v", o.FaultPhase, o.Fault),
				})
			}
		}
	}

	if err := writeRows(f, AssertionsSheet, rows); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(len(assertionHeaders), 1)
	if err != nil {
		return err
	}

	return f.SetCellStyle(AssertionsSheet, "A1", last, headerStyle)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for r, row := range rows {
		if len(row) == 0 {
			continue
		}

		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}

		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, r+1, err)
		}
	}

	return nil
}

func result(passed bool) string {
	if passed {
		return "PASS"
	}

	return "FAIL"
}
