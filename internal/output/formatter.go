// Package output prints station progress and results for the operator.
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/output/table"
	"github.com/ethpandaops/rf-ate/internal/results"
)

// Formatter prints progress messages as they arrive and the tables of a
// finished run. It is safe for concurrent use by every DUT worker.
type Formatter interface {
	devicetest.Observer
	PrintPhase(phase string)
	PrintSuccess(message string)
	PrintError(message string, err error)
	PrintRun(run *results.Run, summary results.Summary)
}

type formatter struct {
	mu      sync.Mutex
	writer  io.Writer
	verbose bool

	resultsFormatter *table.ResultsFormatter
	summaryFormatter *table.SummaryFormatter

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	blue   *color.Color
	gray   *color.Color
}

var _ Formatter = (*formatter)(nil)

// NewFormatter creates a console formatter. Running messages are printed
// only when verbose is set; verdicts are always printed.
func NewFormatter(log logrus.FieldLogger, writer io.Writer, verbose bool) Formatter {
	renderer := table.NewRenderer(log)

	return &formatter{
		writer:           writer,
		verbose:          verbose,
		resultsFormatter: table.NewResultsFormatter(log, renderer),
		summaryFormatter: table.NewSummaryFormatter(log, renderer),
		green:            color.New(color.FgGreen),
		red:              color.New(color.FgRed),
		yellow:           color.New(color.FgYellow),
		blue:             color.New(color.FgBlue),
		gray:             color.New(color.FgHiBlack),
	}
}

// OnMessage implements devicetest.Observer.
func (f *formatter) OnMessage(msg devicetest.Message) error {
	prefix := msg.Source
	if msg.Device != "" {
		prefix = msg.Device + " " + msg.Source
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var err error

	switch msg.Status {
	case devicetest.StatusPass:
		_, err = f.green.Fprintf(f.writer, "[%s] %s\n", prefix, msg.Content)
	case devicetest.StatusFail:
		_, err = f.red.Fprintf(f.writer, "[%s] %s\n", prefix, msg.Content)
	default:
		if !f.verbose {
			return nil
		}

		_, err = f.gray.Fprintf(f.writer, "[%s] ", prefix)
		if err == nil {
			_, err = fmt.Fprintln(f.writer, msg.Content)
		}
	}

	return err
}

// PrintPhase prints phase separator
func (f *formatter) PrintPhase(phase string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.blue.Fprintf(f.writer, "\n▸ %s\n", phase)
}

// PrintSuccess prints a green message
func (f *formatter) PrintSuccess(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.green.Fprintf(f.writer, "%s\n", message)
}

// PrintError prints a red message and the error details
func (f *formatter) PrintError(message string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.red.Fprintf(f.writer, "%s", message)

	if err != nil {
		f.red.Fprintf(f.writer, ": %v", err)
	}

	fmt.Fprintf(f.writer, "\n")
}

// PrintRun prints the result and summary tables of a finished run.
func (f *formatter) PrintRun(run *results.Run, summary results.Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fmt.Fprintln(f.writer, f.resultsFormatter.Format(run.DUTs))
	fmt.Fprintln(f.writer, f.summaryFormatter.Format(run, summary))

	accepted, rejected := run.Counts()

	if rejected == 0 {
		f.green.Fprintf(f.writer, "All %d DUTs accepted\n", accepted)
		return
	}

	f.yellow.Fprintf(f.writer, "%d accepted, %d rejected\n", accepted, rejected)
}
