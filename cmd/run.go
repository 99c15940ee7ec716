package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/device/sim"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/output"
	"github.com/ethpandaops/rf-ate/internal/station"
	"github.com/ethpandaops/rf-ate/internal/suite"
)

var (
	// errRejected is returned when at least one DUT is rejected.
	errRejected = errors.New("DUTs rejected")
	// errInstantHardware is returned when skipping waits on real hardware.
	errInstantHardware = errors.New("--instant requires --simulate")
)

// hardwareScanner enumerates the fixture's HID devices. It is provided by
// the fixture integration; nil makes discovery fail with device.ErrNoScanner.
var hardwareScanner device.Scanner

type runOptions struct {
	simulate  bool
	duts      int
	instant   bool
	mock      bool
	slots     []string
	reportDir string
}

var (
	runOpts  runOptions
	runSlots string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover the fixture and test every DUT",
	Long: `Discovers the reference and DUT devices on the fixture, runs the configured
test sequence against every DUT in parallel and prints the verdicts.

Exits non-zero when any DUT is rejected.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := runOpts
		opts.slots = config.ParseList(runSlots)

		return runStation(ctx, opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOpts.simulate, "simulate", false, "Test a simulated fixture instead of connected hardware")
	runCmd.Flags().IntVar(&runOpts.duts, "duts", device.Slots, "Number of simulated DUTs")
	runCmd.Flags().BoolVar(&runOpts.instant, "instant", false, "Skip timed waits (simulation only)")
	runCmd.Flags().BoolVar(&runOpts.mock, "mock", false, "Run the mock test sequence instead of the configured one")
	runCmd.Flags().StringVar(&runSlots, "slots", "", "Comma separated DUT slots to test, e.g. dut1,dut3")
	runCmd.Flags().StringVar(&runOpts.reportDir, "report-dir", "", "Write an XLSX report per run to this directory")
}

func runStation(ctx context.Context, opts runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	classes, err := cfg.Classes()
	if err != nil {
		return err
	}

	formatter := output.NewFormatter(Logger, os.Stdout, verbose)

	var (
		scanner     = hardwareScanner
		factoryOpts []suite.FactoryOption
		timing      suite.Timing
	)

	if opts.instant {
		if !opts.simulate {
			return errInstantHardware
		}

		timing = instantTiming()
		factoryOpts = append(factoryOpts, suite.WithTiming(timing))
	}

	if opts.simulate {
		scanner = sim.NewFixture(classes, opts.duts).Scanner()
		factoryOpts = append(factoryOpts, suite.WithMeterSource(simulatedMeter))
	}

	formatter.PrintPhase(fmt.Sprintf("Discovering %s fixture", cfg.Gender))

	roster, err := device.Discover(ctx, scanner, classes, cfg.Discovery.Retries, cfg.Discovery.Delay)
	if err != nil {
		formatter.PrintError("Device discovery failed", err)
		return err
	}

	if !roster.Complete() {
		Logger.WithField("duts", len(roster.Present())).Warn("Fixture is not fully populated")
	}

	var builder station.HandlerBuilder

	if opts.mock {
		builder = mockBuilder(timing, Logger)
	} else {
		builder = factoryBuilder(suite.NewFactory(cfg, Logger, factoryOpts...))
	}

	outs := openOutputs(ctx, cfg, opts.reportDir, Logger)
	defer outs.Close()

	st := station.New(&station.Config{
		Logger:    Logger,
		Station:   cfg.Station,
		Gender:    cfg.Gender,
		Builder:   builder,
		Observers: append([]devicetest.Observer{formatter}, outs.observers...),
		Sinks:     outs.sinks,
		Slots:     opts.slots,
	})

	formatter.PrintPhase("Testing")

	run, err := st.Run(ctx, roster)
	if err != nil {
		formatter.PrintError("Station run failed", err)
		return err
	}

	formatter.PrintRun(run, st.Collector().Summary())

	if _, rejected := run.Counts(); rejected > 0 {
		return fmt.Errorf("%w: %d of %d", errRejected, rejected, len(run.DUTs))
	}

	return nil
}

func factoryBuilder(factory *suite.Factory) station.HandlerBuilder {
	return func(ctx context.Context, reference, dut device.Device, referenceLock sync.Locker) (*devicetest.Handler, error) {
		return factory.Handler(ctx, reference, dut, referenceLock)
	}
}

func mockBuilder(timing suite.Timing, log logrus.FieldLogger) station.HandlerBuilder {
	return func(_ context.Context, reference, dut device.Device, referenceLock sync.Locker) (*devicetest.Handler, error) {
		return suite.MockFactory(reference, dut, timing,
			devicetest.WithSharedDevice(reference, referenceLock),
			devicetest.WithLogger(log.WithField("dut", dut.Label())),
		), nil
	}
}

func simulatedMeter(_ context.Context, dut device.Device) (suite.PowerMeter, error) {
	meter, err := sim.MeterFor(dut)
	if err != nil {
		return nil, err
	}

	return meter, nil
}

// instantClock skips waits and advances its own time by them.
type instantClock struct {
	mu  sync.Mutex
	now time.Time
}

// instantTiming returns a clock whose waits only observe cancellation.
func instantTiming() suite.Timing {
	c := &instantClock{now: time.Now()}

	return suite.Timing{Sleep: c.sleep, Now: c.current}
}

func (c *instantClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)

	return nil
}

func (c *instantClock) current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}
