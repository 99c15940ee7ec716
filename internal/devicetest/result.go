package devicetest

import (
	"strings"
	"time"

	"github.com/iancoleman/orderedmap"
)

// AssertionResult is the outcome of one named check within a test.
// Results are never mutated after they are returned from Run.
type AssertionResult struct {
	Name      string
	Passed    bool
	Info      *orderedmap.OrderedMap
	ErrorCode string
}

// NewResult creates an assertion result. A nil info is replaced by an empty map.
func NewResult(name string, passed bool, info *orderedmap.OrderedMap) AssertionResult {
	if info == nil {
		info = orderedmap.New()
	}

	return AssertionResult{
		Name:   name,
		Passed: passed,
		Info:   info,
	}
}

// WithErrorCode returns a copy of the result tagged with the given error code.
func (r AssertionResult) WithErrorCode(code string) AssertionResult {
	r.ErrorCode = code

	return r
}

// Value returns the diagnostic value stored under key.
func (r AssertionResult) Value(key string) (interface{}, bool) {
	if r.Info == nil {
		return nil, false
	}

	return r.Info.Get(key)
}

// Fields builds an ordered info map from alternating key/value pairs.
// Keys that are not strings are skipped along with their value.
func Fields(kv ...interface{}) *orderedmap.OrderedMap {
	m := orderedmap.New()
	m.SetEscapeHTML(false)

	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}

		m.Set(key, kv[i+1])
	}

	return m
}

// Outcome is the aggregated result of running one device test.
type Outcome struct {
	Name       string
	Device     string
	Passed     bool
	Assertions []AssertionResult
	Fault      error
	FaultPhase Phase
	ErrorCode  string
	State      State
	Started    time.Time
	Duration   time.Duration
}

// Failed returns the assertions that did not pass.
func (o Outcome) Failed() []AssertionResult {
	failed := make([]AssertionResult, 0)

	for _, a := range o.Assertions {
		if !a.Passed {
			failed = append(failed, a)
		}
	}

	return failed
}

// Counts returns the number of passed assertions and the total.
func (o Outcome) Counts() (passed, total int) {
	for _, a := range o.Assertions {
		if a.Passed {
			passed++
		}
	}

	return passed, len(o.Assertions)
}

// allPassed reports whether every assertion passed. An empty list passes.
func allPassed(assertions []AssertionResult) bool {
	for _, a := range assertions {
		if !a.Passed {
			return false
		}
	}

	return true
}

// outcomeErrorCode concatenates the error codes of failing assertions.
// Assertions without their own code inherit the test's code. A faulted test
// with no failing assertions reports the test's code.
func outcomeErrorCode(testCode string, assertions []AssertionResult, fault error) string {
	var builder strings.Builder

	for _, a := range assertions {
		if a.Passed {
			continue
		}

		if a.ErrorCode != "" {
			builder.WriteString(a.ErrorCode)
		} else {
			builder.WriteString(testCode)
		}
	}

	if builder.Len() == 0 && fault != nil {
		builder.WriteString(testCode)
	}

	return builder.String()
}

// ErrorCodes joins the error codes of failed outcomes, keeping the first
// occurrence of each letter in order.
func ErrorCodes(outcomes []Outcome) string {
	var (
		builder strings.Builder
		seen    = make(map[rune]bool)
	)

	for _, o := range outcomes {
		if o.Passed {
			continue
		}

		for _, r := range o.ErrorCode {
			if seen[r] {
				continue
			}

			seen[r] = true

			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// AllPassed reports whether every outcome passed.
func AllPassed(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Passed {
			return false
		}
	}

	return true
}
