package results

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Summary provides aggregate statistics across a run.
type Summary struct {
	TotalDuration    time.Duration
	TotalDUTs        int
	AcceptedDUTs     int
	RejectedDUTs     int
	TotalTests       int
	PassedTests      int
	FailedTests      int
	FaultedTests     int
	TotalAssertions  int
	PassedAssertions int
	PassRate         float64 // percentage of DUTs accepted
}

// Collector records DUT results as workers finish.
type Collector interface {
	Start(ctx context.Context) error
	Stop() error
	RecordDUT(result DUTResult)
	Results() []DUTResult
	Summary() Summary
}

type collector struct {
	log       logrus.FieldLogger
	mu        sync.RWMutex
	results   []DUTResult
	startTime time.Time
	now       func() time.Time
}

// NewCollector creates a result collector.
func NewCollector(log logrus.FieldLogger) Collector {
	return &collector{
		log:     log.WithField("component", "results_collector"),
		results: make([]DUTResult, 0, 4),
		now:     time.Now,
	}
}

func (c *collector) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = c.now()
	c.results = c.results[:0]

	c.log.Debug("results collector started")

	return nil
}

func (c *collector) Stop() error {
	c.log.Debug("results collector stopped")

	return nil
}

func (c *collector) RecordDUT(result DUTResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results = append(c.results, result)

	c.log.WithFields(logrus.Fields{
		"dut":     result.Label,
		"verdict": result.VerdictLabel(),
	}).Debug("recorded dut result")
}

// Results returns a copy of the recorded results in slot label order.
func (c *collector) Results() []DUTResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]DUTResult, len(c.results))
	copy(out, c.results)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })

	return out
}

func (c *collector) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := Summary{TotalDUTs: len(c.results)}

	if !c.startTime.IsZero() {
		summary.TotalDuration = c.now().Sub(c.startTime)
	}

	for _, r := range c.results {
		if r.Passed {
			summary.AcceptedDUTs++
		} else {
			summary.RejectedDUTs++
		}

		for _, o := range r.Outcomes {
			summary.TotalTests++

			switch {
			case o.Fault != nil:
				summary.FaultedTests++
			case o.Passed:
				summary.PassedTests++
			default:
				summary.FailedTests++
			}

			passed, total := o.Counts()
			summary.PassedAssertions += passed
			summary.TotalAssertions += total
		}
	}

	if summary.TotalDUTs > 0 {
		summary.PassRate = float64(summary.AcceptedDUTs) / float64(summary.TotalDUTs) * 100.0
	}

	return summary
}

var _ Collector = (*collector)(nil)
