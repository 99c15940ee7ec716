package table

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/results"
)

// ColorHelper provides utilities for coloring station output
type ColorHelper struct {
	enabled bool
}

// NewColorHelper creates a new color helper.
// Colors are enabled only when outputting to a terminal
func NewColorHelper() *ColorHelper {
	return &ColorHelper{
		enabled: !color.NoColor,
	}
}

func (c *ColorHelper) paint(text string, attrs ...color.Attribute) string {
	if !c.enabled {
		return text
	}

	return color.New(attrs...).Sprint(text)
}

// Success returns green colored text
func (c *ColorHelper) Success(text string) string { return c.paint(text, color.FgGreen) }

// Failure returns red colored text
func (c *ColorHelper) Failure(text string) string { return c.paint(text, color.FgRed) }

// Warning returns yellow colored text
func (c *ColorHelper) Warning(text string) string { return c.paint(text, color.FgYellow) }

// Info returns cyan colored text
func (c *ColorHelper) Info(text string) string { return c.paint(text, color.FgCyan) }

// Muted returns gray colored text
func (c *ColorHelper) Muted(text string) string { return c.paint(text, color.FgHiBlack) }

// Bold returns bold text
func (c *ColorHelper) Bold(text string) string { return c.paint(text, color.Bold) }

// Header returns bold cyan text for section headers
func (c *ColorHelper) Header(text string) string { return c.paint(text, color.FgCyan, color.Bold) }

// FormatStatus returns the colored status of one test outcome
func (c *ColorHelper) FormatStatus(o devicetest.Outcome) string {
	switch {
	case o.Passed:
		return c.Success("✓ PASS")
	case o.Fault != nil && devicetest.IsCanceled(o.Fault):
		return c.Warning("⊘ CANCELED")
	case o.Fault != nil:
		return c.Failure("⚠ FAULT")
	default:
		return c.Failure("✗ FAIL")
	}
}

// FormatVerdict returns the colored accept/reject label of a DUT
func (c *ColorHelper) FormatVerdict(r results.DUTResult) string {
	if r.Passed {
		return c.paint(r.VerdictLabel(), color.FgGreen, color.Bold)
	}

	return c.paint(r.VerdictLabel(), color.FgRed, color.Bold)
}

// FormatAssertions returns colored assertion text based on pass/fail
func (c *ColorHelper) FormatAssertions(passed, total int) string {
	text := fmt.Sprintf("%d/%d", passed, total)

	switch {
	case passed == total:
		return c.Success(text)
	case passed == 0:
		return c.Failure(text)
	default:
		return c.Warning(text)
	}
}

// FormatPercentage returns colored percentage based on value
func (c *ColorHelper) FormatPercentage(value float64) string {
	text := fmt.Sprintf("%.1f%%", value)

	switch {
	case value == 100.0:
		return c.Success(text)
	case value >= 75.0:
		return c.Warning(text)
	default:
		return c.Failure(text)
	}
}
