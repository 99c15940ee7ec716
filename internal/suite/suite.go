// Package suite contains the station's concrete device tests and the factory
// that assembles them into per-DUT handlers.
package suite

import (
	"context"
	"time"

	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// Error codes reported on the reject label.
const (
	CodeFirmware   = "F"
	CodeNVM        = "N"
	CodeConnection = "C"
	CodeRFPower    = "R"
	CodeBattery    = "B"
	CodeRFID       = "I"
	CodeMock       = "M"
)

// Timing holds the clock a test waits on. The zero value uses the real clock.
type Timing struct {
	Sleep devicetest.SleepFunc
	Now   func() time.Time
}

func (t Timing) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleep == nil {
		return devicetest.Sleep(ctx, d)
	}

	return t.Sleep(ctx, d)
}

func (t Timing) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}

	return t.Now()
}

func (t Timing) sleepFunc() devicetest.SleepFunc {
	return t.sleep
}
