// Package results holds the per-DUT and per-run result model and a
// thread-safe collector the station records into while DUT workers run.
package results

import (
	"time"

	"github.com/google/uuid"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// Verdict is the label printed for a DUT at the end of a run.
type Verdict string

const (
	// Accept marks a DUT that passed every test.
	Accept Verdict = "ACCEPT"
	// Reject marks a DUT with at least one failed or faulted test.
	Reject Verdict = "REJECT"
)

// DUTResult is the outcome of one DUT's test sequence.
type DUTResult struct {
	Label      string
	Serial     string
	Class      device.Class
	Outcomes   []devicetest.Outcome
	Passed     bool
	ErrorCodes string
	Started    time.Time
	Duration   time.Duration
}

// NewDUTResult aggregates the outcomes of a DUT's handler.
func NewDUTResult(label string, info device.Info, outcomes []devicetest.Outcome, started time.Time, duration time.Duration) DUTResult {
	return DUTResult{
		Label:      label,
		Serial:     info.Serial,
		Class:      info.Class,
		Outcomes:   outcomes,
		Passed:     len(outcomes) > 0 && devicetest.AllPassed(outcomes),
		ErrorCodes: devicetest.ErrorCodes(outcomes),
		Started:    started,
		Duration:   duration,
	}
}

// Verdict returns Accept or Reject.
func (r DUTResult) Verdict() Verdict {
	if r.Passed {
		return Accept
	}

	return Reject
}

// VerdictLabel returns the operator label, for example "REJECT CR" or "ACCEPT".
func (r DUTResult) VerdictLabel() string {
	if r.Passed || r.ErrorCodes == "" {
		return string(r.Verdict())
	}

	return string(r.Verdict()) + " " + r.ErrorCodes
}

// Faulted returns the outcomes that ended with a fault.
func (r DUTResult) Faulted() []devicetest.Outcome {
	faulted := make([]devicetest.Outcome, 0)

	for _, o := range r.Outcomes {
		if o.Fault != nil {
			faulted = append(faulted, o)
		}
	}

	return faulted
}

// Run is one station run over every selected DUT.
type Run struct {
	ID       uuid.UUID
	Station  string
	Gender   device.Gender
	Started  time.Time
	Duration time.Duration
	DUTs     []DUTResult
}

// Passed reports whether every DUT was accepted. A run with no DUTs fails.
func (r *Run) Passed() bool {
	if len(r.DUTs) == 0 {
		return false
	}

	for _, d := range r.DUTs {
		if !d.Passed {
			return false
		}
	}

	return true
}

// Counts returns the number of accepted and rejected DUTs.
func (r *Run) Counts() (accepted, rejected int) {
	for _, d := range r.DUTs {
		if d.Passed {
			accepted++
		} else {
			rejected++
		}
	}

	return accepted, rejected
}

// DUT returns the result for label.
func (r *Run) DUT(label string) (DUTResult, bool) {
	for _, d := range r.DUTs {
		if d.Label == label {
			return d, true
		}
	}

	return DUTResult{}, false
}
