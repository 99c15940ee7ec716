package cmd

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/feed"
	"github.com/ethpandaops/rf-ate/internal/mqtt"
	"github.com/ethpandaops/rf-ate/internal/report"
	"github.com/ethpandaops/rf-ate/internal/station"
	"github.com/ethpandaops/rf-ate/internal/store"
	"github.com/ethpandaops/rf-ate/internal/telemetry"
)

// outputs holds the run sinks and live observers opened for one run.
type outputs struct {
	log       logrus.FieldLogger
	sinks     []station.Sink
	observers []devicetest.Observer
	closers   []func()
}

// openOutputs connects every configured sink. A sink that fails to connect
// is skipped with a warning so the station can still test.
func openOutputs(ctx context.Context, cfg *config.Config, reportDir string, log logrus.FieldLogger) *outputs {
	o := &outputs{log: log.WithField("component", "outputs")}

	o.openStore(ctx, "sqlite", cfg.Results.SQLitePath, func() (*store.Store, error) {
		return store.OpenSQLite(cfg.Results.SQLitePath, log)
	})

	o.openStore(ctx, "clickhouse", cfg.Results.ClickHouseURL, func() (*store.Store, error) {
		return store.OpenClickHouse(cfg.Results.ClickHouseURL, log)
	})

	switch influx, err := telemetry.Connect(ctx, cfg.Telemetry, log); {
	case errors.Is(err, telemetry.ErrDisabled):
	case err != nil:
		o.log.WithError(err).Warn("Skipping InfluxDB telemetry")
	default:
		o.add(influx, influx.Close)
	}

	switch publisher, err := mqtt.Connect(cfg.MQTT, cfg.Station, log); {
	case errors.Is(err, mqtt.ErrDisabled):
	case err != nil:
		o.log.WithError(err).Warn("Skipping MQTT publisher")
	default:
		o.add(publisher, publisher.Close)
		o.observers = append(o.observers, publisher)
	}

	if cfg.Feed.Listen != "" {
		server := feed.NewServer(cfg.Station, log)

		if err := server.Start(cfg.Feed.Listen); err != nil {
			o.log.WithError(err).Warn("Skipping live feed")
		} else {
			o.add(server, func() {
				if err := server.Stop(); err != nil {
					o.log.WithError(err).Warn("Failed to stop live feed")
				}
			})
			o.observers = append(o.observers, server)
		}
	}

	if reportDir == "" {
		reportDir = cfg.Report.Dir
	}

	if reportDir != "" {
		writer, err := report.NewWriter(reportDir, log)
		if err != nil {
			o.log.WithError(err).Warn("Skipping XLSX report")
		} else {
			o.add(writer, nil)
		}
	}

	return o
}

func (o *outputs) openStore(ctx context.Context, backend, target string, open func() (*store.Store, error)) {
	if target == "" {
		return
	}

	s, err := open()
	if err != nil {
		o.log.WithError(err).WithField("backend", backend).Warn("Skipping results store")
		return
	}

	if err := s.Migrate(ctx); err != nil {
		o.log.WithError(err).WithField("backend", backend).Warn("Skipping results store")
		_ = s.Close()

		return
	}

	o.add(s, func() {
		if err := s.Close(); err != nil {
			o.log.WithError(err).WithField("backend", backend).Warn("Failed to close results store")
		}
	})
}

func (o *outputs) add(sink station.Sink, closer func()) {
	o.sinks = append(o.sinks, sink)

	if closer != nil {
		o.closers = append(o.closers, closer)
	}

	o.log.WithField("sink", sink.Name()).Debug("Sink enabled")
}

// Close releases every sink in reverse order.
func (o *outputs) Close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		o.closers[i]()
	}

	o.closers = nil
}
