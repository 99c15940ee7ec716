package table

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/results"
)

const maxDetail = 50

// ResultsFormatter formats per-DUT test outcomes as a table.
type ResultsFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewResultsFormatter creates a new results table formatter.
func NewResultsFormatter(log logrus.FieldLogger, renderer Renderer) *ResultsFormatter {
	return &ResultsFormatter{
		log:      log.WithField("component", "table.results_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format renders one row per test per DUT, followed by the details of every
// failed assertion and fault.
func (f *ResultsFormatter) Format(duts []results.DUTResult) string {
	if len(duts) == 0 {
		return "No DUTs tested"
	}

	var (
		headers = []string{"DUT", "Test", "Status", "Assertions", "Duration", "Details"}
		rows    = make([][]string, 0, len(duts)*4)
		failed  = false
	)

	for _, dut := range duts {
		if len(dut.Outcomes) == 0 {
			rows = append(rows, []string{dut.Label, "-", f.colors.Warning("not run"), "-", "-", ""})
			continue
		}

		for _, o := range dut.Outcomes {
			passed, total := o.Counts()

			var details string

			if !o.Passed {
				failed = true
				details = f.details(o)
			}

			rows = append(rows, []string{
				dut.Label,
				o.Name,
				f.colors.FormatStatus(o),
				f.colors.FormatAssertions(passed, total),
				Duration(o.Duration),
				details,
			})
		}
	}

	output := "\n" + f.colors.Header("▸ Test Results") + "\n\n" + f.renderer.RenderToString(headers, rows, WithMergedCells(0))

	if failed {
		output += f.formatFailureDetails(duts)
	}

	return output
}

func (f *ResultsFormatter) details(o devicetest.Outcome) string {
	parts := make([]string, 0, 2)

	if n := len(o.Failed()); n > 0 {
		parts = append(parts, f.colors.Failure(fmt.Sprintf("%d/%d failed", n, len(o.Assertions))))
	}

	if o.Fault != nil {
		msg := o.Fault.Error()
		if len(msg) > maxDetail {
			msg = msg[:maxDetail-3] + "..."
		}

		parts = append(parts, f.colors.Muted(msg))
	}

	return strings.Join(parts, " - ")
}

// formatFailureDetails lists every failed assertion with its diagnostics.
func (f *ResultsFormatter) formatFailureDetails(duts []results.DUTResult) string {
	var builder strings.Builder

	builder.WriteString("\n\n" + f.colors.Header("▸ Failed Test Details") + "\n")

	for _, dut := range duts {
		for _, o := range dut.Outcomes {
			if o.Passed {
				continue
			}

			fmt.Fprintf(&builder, "\n%s %s (%s)\n", f.colors.Bold(dut.Label), o.Name, Duration(o.Duration))

			if o.Fault != nil {
				fmt.Fprintf(&builder, "  %s [%s]: %v\n", f.colors.Failure("Fault"), phaseName(o.FaultPhase), o.Fault)
			}

			for _, a := range o.Failed() {
				fmt.Fprintf(&builder, "  %s %s: %s\n", f.colors.Failure("✗"), f.colors.Bold("Assertion"), a.Name)
				fmt.Fprintf(&builder, "    %s: %s\n", f.colors.Info("Info"), formatInfo(a))
			}
		}
	}

	return builder.String()
}

func phaseName(p devicetest.Phase) string {
	if p == devicetest.PhaseNone {
		return "unknown"
	}

	return string(p)
}

// formatInfo renders an assertion's ordered diagnostics as compact JSON.
func formatInfo(a devicetest.AssertionResult) string {
	if a.Info == nil || len(a.Info.Keys()) == 0 {
		return "{}"
	}

	data, err := json.Marshal(a.Info)
	if err != nil {
		return fmt.Sprintf("%v", a.Info.Values())
	}

	return string(data)
}
