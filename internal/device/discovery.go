package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

// Slots is the number of DUT positions on the fixture.
const Slots = 4

// ReferenceLabel is the label given to the reference device.
const ReferenceLabel = "reference"

var (
	// ErrReferenceNotFound is returned when discovery finds no reference device.
	ErrReferenceNotFound = errors.New("reference device not found")
	// ErrNoScanner is returned when no device scanner is available.
	ErrNoScanner = errors.New("no device scanner available")
	// ErrUnknownGender is returned for a gender other than rx or tx.
	ErrUnknownGender = errors.New("unknown DUT gender")
)

// Gender is the role of the DUT: receiver or transmitter.
type Gender string

// Known genders.
const (
	GenderRx Gender = "rx"
	GenderTx Gender = "tx"
)

// Classes pairs the DUT class with its reference counterpart.
type Classes struct {
	DUT       Class
	Reference Class
}

// ClassesFor returns the device classes for a DUT gender.
func ClassesFor(gender Gender) (Classes, error) {
	switch gender {
	case GenderRx:
		return Classes{DUT: WirelessGo3Rx, Reference: WirelessGo2Tx}, nil
	case GenderTx:
		return Classes{DUT: WirelessGo3Tx, Reference: WirelessGo2Rx}, nil
	default:
		return Classes{}, fmt.Errorf("%w: %q, expected rx or tx", ErrUnknownGender, gender)
	}
}

// Scanner enumerates connected devices.
type Scanner interface {
	Scan(ctx context.Context) ([]Device, error)
}

// Roster is the set of devices found on the fixture. Empty slots are nil.
type Roster struct {
	Reference Device
	DUTs      [Slots]Device
}

// SlotLabel returns the label of the DUT slot at zero-based index i.
func SlotLabel(i int) string {
	return fmt.Sprintf("dut%d", i+1)
}

// Present returns the occupied DUT slots in slot order.
func (r Roster) Present() []Device {
	present := make([]Device, 0, Slots)

	for _, d := range r.DUTs {
		if d != nil {
			present = append(present, d)
		}
	}

	return present
}

// Complete reports whether the reference and every DUT slot are present.
func (r Roster) Complete() bool {
	if r.Reference == nil {
		return false
	}

	for _, d := range r.DUTs {
		if d == nil {
			return false
		}
	}

	return true
}

// Filter returns a roster that keeps only the DUT slots named in labels.
// An empty label list keeps every slot.
func (r Roster) Filter(labels []string) Roster {
	if len(labels) == 0 {
		return r
	}

	keep := make(map[string]bool, len(labels))
	for _, l := range labels {
		keep[l] = true
	}

	filtered := Roster{Reference: r.Reference}

	for i, d := range r.DUTs {
		if d != nil && keep[SlotLabel(i)] {
			filtered.DUTs[i] = d
		}
	}

	return filtered
}

// Discover scans for the reference and up to four DUTs, rescanning until
// every slot is filled or retries are exhausted. Devices reporting a fixture
// slot are placed there; the rest fill free slots in scan order.
func Discover(ctx context.Context, scanner Scanner, classes Classes, retries int, delay time.Duration) (Roster, error) {
	if scanner == nil {
		return Roster{}, ErrNoScanner
	}

	var roster Roster

	for attempt := 0; attempt <= retries; attempt++ {
		devices, err := scanner.Scan(ctx)
		if err != nil {
			return Roster{}, fmt.Errorf("scanning devices: %w", err)
		}

		roster = assign(devices, classes)
		if roster.Complete() {
			break
		}

		if attempt < retries {
			if err := devicetest.Sleep(ctx, delay); err != nil {
				return Roster{}, err
			}
		}
	}

	if roster.Reference == nil {
		return roster, fmt.Errorf("%w: %s", ErrReferenceNotFound, classes.Reference)
	}

	return roster, nil
}

func assign(devices []Device, classes Classes) Roster {
	var (
		roster   Roster
		unplaced []Device
	)

	for _, d := range devices {
		info := d.Info()

		switch info.Class {
		case classes.Reference:
			if roster.Reference == nil {
				roster.Reference = Labeled(d, ReferenceLabel)
			}
		case classes.DUT:
			if info.Slot >= 1 && info.Slot <= Slots && roster.DUTs[info.Slot-1] == nil {
				roster.DUTs[info.Slot-1] = Labeled(d, SlotLabel(info.Slot-1))
				continue
			}

			unplaced = append(unplaced, d)
		}
	}

	for _, d := range unplaced {
		for i := range roster.DUTs {
			if roster.DUTs[i] == nil {
				roster.DUTs[i] = Labeled(d, SlotLabel(i))
				break
			}
		}
	}

	return roster
}
