package suite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/device/sim"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
)

func simMeters(_ context.Context, dut device.Device) (PowerMeter, error) {
	return sim.MeterFor(dut)
}

func newSimFactory(t *testing.T, cfg *config.Config) (*Factory, *sim.Fixture) {
	t.Helper()

	classes, err := cfg.Classes()
	require.NoError(t, err)

	factory := NewFactory(cfg, quietLogger(),
		WithMeterSource(simMeters),
		WithAllocator(&fakeAllocator{next: "80300001"}),
		WithTiming(newFakeClock().Timing()),
	)

	return factory, sim.NewFixture(classes, 2)
}

func TestFactory_BuildFollowsSequence(t *testing.T) {
	t.Parallel()

	cfg := config.Default(device.GenderRx)
	cfg.Sequence = []string{config.TestRFIDAssignment, config.TestNVM, config.TestFirmwareVersion}

	factory, fixture := newSimFactory(t, cfg)

	tests, err := factory.Build(context.Background(), fixture.Reference, fixture.DUTs[0])
	require.NoError(t, err)

	built := make([]string, 0, len(tests))
	for _, test := range tests {
		built = append(built, test.Name())
	}

	assert.Equal(t, cfg.Sequence, built)
}

func TestFactory_BuildReadsBatteryBaseline(t *testing.T) {
	t.Parallel()

	cfg := config.Default(device.GenderRx)
	cfg.Sequence = []string{config.TestBattery}

	factory, fixture := newSimFactory(t, cfg)

	tests, err := factory.Build(context.Background(), fixture.Reference, fixture.DUTs[0])
	require.NoError(t, err)
	require.Len(t, tests, 1)

	battery, ok := tests[0].(*BatteryTest)
	require.True(t, ok)
	assert.Equal(t, 60, battery.Baseline().StateOfCharge)
	assert.Equal(t, 1, fixture.DUTs[0].CallCount(device.FuelGaugeCommand{}))
}

func TestFactory_BuildErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown test", mutate: func(c *config.Config) { c.Sequence = []string{"warp_drive"} }},
		{name: "bad nvm", mutate: func(c *config.Config) {
			c.Sequence = []string{config.TestNVM}
			c.Tests.NVM.Address = "nowhere"
		}},
		{name: "bad channel", mutate: func(c *config.Config) {
			c.Sequence = []string{config.TestRFPower}
			c.Tests.RFPower.Channels = []string{"CHANNEL_99"}
		}},
		{name: "bad firmware", mutate: func(c *config.Config) {
			c.Sequence = []string{config.TestFirmwareVersion}
			c.Tests.Firmware.MinMCUVersion = "latest"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default(device.GenderRx)
			tt.mutate(cfg)

			factory, fixture := newSimFactory(t, cfg)

			_, err := factory.Build(context.Background(), fixture.Reference, fixture.DUTs[0])
			require.ErrorIs(t, err, devicetest.ErrConfiguration)
		})
	}
}

func TestFactory_HandlerPassesFullSequence(t *testing.T) {
	t.Parallel()

	for _, gender := range []device.Gender{device.GenderRx, device.GenderTx} {
		t.Run(string(gender), func(t *testing.T) {
			t.Parallel()

			cfg := config.Default(gender)
			cfg.Sequence = append([]string(nil), config.KnownTests...)

			factory, fixture := newSimFactory(t, cfg)

			var refLock sync.Mutex

			handler, err := factory.Handler(context.Background(), fixture.Reference, fixture.DUTs[0], &refLock)
			require.NoError(t, err)
			assert.Equal(t, "dut1", handler.Label())

			outcomes := handler.ExecuteTests(context.Background())
			require.Len(t, outcomes, len(config.KnownTests))

			for _, o := range outcomes {
				assert.Truef(t, o.Passed, "%s failed: %v %v", o.Name, o.Fault, names(o.Failed()))
			}
		})
	}
}

func TestFactory_HandlerStopsOnFail(t *testing.T) {
	t.Parallel()

	cfg := config.Default(device.GenderRx)
	cfg.Sequence = []string{config.TestFirmwareVersion, config.TestNVM}
	cfg.Tests.Firmware.MinMCUVersion = "9.0.0"

	factory, fixture := newSimFactory(t, cfg)

	var refLock sync.Mutex

	handler, err := factory.Handler(context.Background(), fixture.Reference, fixture.DUTs[0], &refLock)
	require.NoError(t, err)

	outcomes := handler.ExecuteTests(context.Background())
	require.Len(t, outcomes, 1)
	assert.Equal(t, CodeFirmware, outcomes[0].ErrorCode)
}

func TestFactory_MeterIsSharedAcrossDUTs(t *testing.T) {
	t.Parallel()

	cfg := config.Default(device.GenderRx)
	factory, fixture := newSimFactory(t, cfg)

	first, err := factory.meterOpener(fixture.DUTs[0])(context.Background())
	require.NoError(t, err)

	opened := make(chan PowerMeter)

	go func() {
		second, err := factory.meterOpener(fixture.DUTs[1])(context.Background())
		if err == nil {
			opened <- second
		}
	}()

	select {
	case <-opened:
		t.Fatal("second meter opened while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Close())
	require.NoError(t, first.Close(), "closing twice releases once")

	select {
	case second := <-opened:
		require.NoError(t, second.Close())
	case <-time.After(time.Second):
		t.Fatal("second meter never opened")
	}
}
