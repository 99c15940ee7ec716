package table

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/results"
)

// SummaryFormatter formats the run summary and the per-DUT verdicts.
type SummaryFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewSummaryFormatter creates a new summary table formatter.
func NewSummaryFormatter(log logrus.FieldLogger, renderer Renderer) *SummaryFormatter {
	return &SummaryFormatter{
		log:      log.WithField("component", "table.summary_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format converts a finished run into the summary and verdict tables.
func (f *SummaryFormatter) Format(run *results.Run, summary results.Summary) string {
	acceptedValue := fmt.Sprintf("%d (%s)", summary.AcceptedDUTs, f.colors.FormatPercentage(summary.PassRate))

	rejectedValue := f.colors.Success("0")
	if summary.RejectedDUTs > 0 {
		rejectedValue = f.colors.Failure(fmt.Sprintf("%d", summary.RejectedDUTs))
	}

	faultedValue := f.colors.Success("0")
	if summary.FaultedTests > 0 {
		faultedValue = f.colors.Warning(fmt.Sprintf("%d", summary.FaultedTests))
	}

	var (
		headers = []string{"Metric", "Value"}
		rows    = [][]string{
			{"Run", f.colors.Muted(run.ID.String())},
			{"Station", run.Station},
			{"Gender", string(run.Gender)},
			{"DUTs", f.colors.Bold(fmt.Sprintf("%d", summary.TotalDUTs))},
			{"Accepted", acceptedValue},
			{"Rejected", rejectedValue},
			{"Tests Passed", f.colors.FormatAssertions(summary.PassedTests, summary.TotalTests)},
			{"Tests Faulted", faultedValue},
			{"Assertions Passed", f.colors.FormatAssertions(summary.PassedAssertions, summary.TotalAssertions)},
			{"Total Duration", Duration(run.Duration)},
		}
	)

	output := "\n" + f.colors.Header("▸ Summary") + "\n\n" + f.renderer.RenderToString(headers, rows)

	return output + f.formatVerdicts(run)
}

func (f *SummaryFormatter) formatVerdicts(run *results.Run) string {
	rows := make([][]string, 0, len(run.DUTs))

	for _, d := range run.DUTs {
		rows = append(rows, []string{d.Label, d.Serial, string(d.Class), f.colors.FormatVerdict(d)})
	}

	return "\n" + f.colors.Header("▸ Verdicts") + "\n\n" +
		f.renderer.RenderToString([]string{"DUT", "Serial", "Class", "Verdict"}, rows)
}
