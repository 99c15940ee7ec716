package results

import (
	"time"

	"github.com/iancoleman/orderedmap"

	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// RunView is the JSON form of a run published to remote consumers.
type RunView struct {
	ID         string    `json:"id"`
	Station    string    `json:"station"`
	Gender     string    `json:"gender"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
	Passed     bool      `json:"passed"`
	DUTs       []DUTView `json:"duts"`
}

// DUTView is the JSON form of one DUT result.
type DUTView struct {
	RunID      string        `json:"run_id,omitempty"`
	Station    string        `json:"station,omitempty"`
	Label      string        `json:"dut"`
	Serial     string        `json:"serial"`
	Class      string        `json:"class"`
	Verdict    string        `json:"verdict"`
	ErrorCodes string        `json:"error_codes"`
	Started    time.Time     `json:"started"`
	DurationMS int64         `json:"duration_ms"`
	Tests      []OutcomeView `json:"tests"`
}

// OutcomeView is the JSON form of one test outcome.
type OutcomeView struct {
	Name       string          `json:"name"`
	Passed     bool            `json:"passed"`
	State      string          `json:"state"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Fault      string          `json:"fault,omitempty"`
	FaultPhase string          `json:"fault_phase,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	Assertions []AssertionView `json:"assertions"`
}

// AssertionView is the JSON form of one assertion result.
type AssertionView struct {
	Name      string                 `json:"name"`
	Passed    bool                   `json:"passed"`
	ErrorCode string                 `json:"error_code,omitempty"`
	Info      *orderedmap.OrderedMap `json:"info"`
}

// MessageView is the JSON form of a progress message.
type MessageView struct {
	Station string    `json:"station"`
	DUT     string    `json:"dut,omitempty"`
	Status  string    `json:"status"`
	Source  string    `json:"source"`
	Content string    `json:"content"`
	Fault   string    `json:"fault,omitempty"`
	Time    time.Time `json:"time"`
}

// NewRunView converts a run.
func NewRunView(run *Run) RunView {
	view := RunView{
		ID:         run.ID.String(),
		Station:    run.Station,
		Gender:     string(run.Gender),
		Started:    run.Started,
		DurationMS: run.Duration.Milliseconds(),
		Passed:     run.Passed(),
		DUTs:       make([]DUTView, 0, len(run.DUTs)),
	}

	for _, d := range run.DUTs {
		view.DUTs = append(view.DUTs, NewDUTView(d))
	}

	return view
}

// NewDUTView converts a DUT result. RunID and Station are left for the caller.
func NewDUTView(d DUTResult) DUTView {
	view := DUTView{
		Label:      d.Label,
		Serial:     d.Serial,
		Class:      string(d.Class),
		Verdict:    string(d.Verdict()),
		ErrorCodes: d.ErrorCodes,
		Started:    d.Started,
		DurationMS: d.Duration.Milliseconds(),
		Tests:      make([]OutcomeView, 0, len(d.Outcomes)),
	}

	for _, o := range d.Outcomes {
		ov := OutcomeView{
			Name:       o.Name,
			Passed:     o.Passed,
			State:      o.State.String(),
			ErrorCode:  o.ErrorCode,
			FaultPhase: string(o.FaultPhase),
			DurationMS: o.Duration.Milliseconds(),
			Assertions: make([]AssertionView, 0, len(o.Assertions)),
		}

		if o.Fault != nil {
			ov.Fault = o.Fault.Error()
		}

		for _, a := range o.Assertions {
			info := a.Info
			if info == nil {
				info = orderedmap.New()
			}

			ov.Assertions = append(ov.Assertions, AssertionView{
				Name:      a.Name,
				Passed:    a.Passed,
				ErrorCode: a.ErrorCode,
				Info:      info,
			})
		}

		view.Tests = append(view.Tests, ov)
	}

	return view
}

// NewMessageView converts a progress message emitted on station.
func NewMessageView(station string, msg devicetest.Message) MessageView {
	view := MessageView{
		Station: station,
		DUT:     msg.Device,
		Status:  string(msg.Status),
		Source:  msg.Source,
		Content: msg.Content,
		Time:    msg.Time,
	}

	if msg.Fault != nil {
		view.Fault = msg.Fault.Error()
	}

	return view
}
