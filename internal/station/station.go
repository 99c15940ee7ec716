// Package station runs the test sequence on every DUT in the fixture, one
// worker per slot, and fans the finished run out to the result sinks.
package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/results"
)

// SinkTimeout bounds publishing a finished run to one sink.
const SinkTimeout = 30 * time.Second

var (
	// ErrNoDUTs is returned when the roster has no DUT to test.
	ErrNoDUTs = errors.New("no DUTs to test")
	// ErrNoBuilder is returned when the station has no handler builder.
	ErrNoBuilder = errors.New("no handler builder configured")
)

// HandlerBuilder creates the handler for one DUT. referenceLock guards the
// reference device shared by every worker.
type HandlerBuilder func(ctx context.Context, reference, dut device.Device, referenceLock sync.Locker) (*devicetest.Handler, error)

// Sink receives every finished run.
type Sink interface {
	Name() string
	PublishRun(ctx context.Context, run *results.Run) error
}

// Config contains the station's collaborators.
type Config struct {
	Logger    logrus.FieldLogger
	Station   string
	Gender    device.Gender
	Builder   HandlerBuilder
	Collector results.Collector
	// Observers are attached to every DUT handler and receive labelled
	// progress messages.
	Observers []devicetest.Observer
	Sinks     []Sink
	// Slots limits the run to the named DUT slots. Empty runs every slot.
	Slots []string
}

// Station coordinates the DUT workers of one fixture.
type Station struct {
	log       logrus.FieldLogger
	name      string
	gender    device.Gender
	builder   HandlerBuilder
	collector results.Collector
	observers []devicetest.Observer
	sinks     []Sink
	slots     []string
	now       func() time.Time

	// referenceMu is held for any test touching the reference device.
	referenceMu sync.Mutex
}

// New creates a station.
func New(cfg *Config) *Station {
	collector := cfg.Collector
	if collector == nil {
		collector = results.NewCollector(cfg.Logger)
	}

	return &Station{
		log:       cfg.Logger.WithField("component", "station"),
		name:      cfg.Station,
		gender:    cfg.Gender,
		builder:   cfg.Builder,
		collector: collector,
		observers: cfg.Observers,
		sinks:     cfg.Sinks,
		slots:     cfg.Slots,
		now:       time.Now,
	}
}

// Collector returns the collector the station records into.
func (s *Station) Collector() results.Collector {
	return s.collector
}

type worker struct {
	dut     device.Device
	handler *devicetest.Handler
}

// Run tests every selected DUT in the roster concurrently and returns the
// finished run. Handlers are built before any test starts so construction
// time readings, such as the battery baseline, are taken together. A build
// failure aborts the run before any device I/O of the sequence.
func (s *Station) Run(ctx context.Context, roster device.Roster) (*results.Run, error) {
	if s.builder == nil {
		return nil, ErrNoBuilder
	}

	if roster.Reference == nil {
		return nil, device.ErrReferenceNotFound
	}

	duts := roster.Filter(s.slots).Present()
	if len(duts) == 0 {
		return nil, ErrNoDUTs
	}

	run := &results.Run{
		ID:      uuid.New(),
		Station: s.name,
		Gender:  s.gender,
		Started: s.now(),
	}

	log := s.log.WithField("run_id", run.ID.String())

	workers := make([]worker, 0, len(duts))

	for _, dut := range duts {
		handler, err := s.builder(ctx, roster.Reference, dut, &s.referenceMu)
		if err != nil {
			return nil, fmt.Errorf("building handler for %s: %w", dut.Label(), err)
		}

		for _, o := range s.observers {
			handler.Attach(o)
		}

		workers = append(workers, worker{dut: dut, handler: handler})
	}

	if err := s.collector.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting results collector: %w", err)
	}

	log.WithFields(logrus.Fields{
		"duts":   len(workers),
		"gender": s.gender,
	}).Info("Starting station run")

	dutResults := make([]results.DUTResult, len(workers))

	var g errgroup.Group

	g.SetLimit(len(workers))

	for i, w := range workers {
		g.Go(func() error {
			started := s.now()
			outcomes := w.handler.ExecuteTests(ctx)

			result := results.NewDUTResult(w.dut.Label(), w.dut.Info(), outcomes, started, s.now().Sub(started))
			dutResults[i] = result
			s.collector.RecordDUT(result)

			log.WithFields(logrus.Fields{
				"dut":     result.Label,
				"verdict": result.VerdictLabel(),
			}).Info("DUT finished")

			return nil
		})
	}

	_ = g.Wait() // workers never return errors

	for _, w := range workers {
		for _, o := range s.observers {
			w.handler.Detach(o)
		}
	}

	run.DUTs = dutResults
	run.Duration = s.now().Sub(run.Started)

	if err := s.collector.Stop(); err != nil {
		log.WithError(err).Warn("Failed to stop results collector")
	}

	s.publish(ctx, run)

	accepted, rejected := run.Counts()
	log.WithFields(logrus.Fields{
		"accepted": accepted,
		"rejected": rejected,
		"duration": run.Duration,
	}).Info("Station run complete")

	return run, nil
}

// publish hands the run to every sink. Sink failures are logged only.
func (s *Station) publish(ctx context.Context, run *results.Run) {
	ctx = context.WithoutCancel(ctx)

	for _, sink := range s.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, SinkTimeout)

		if err := sink.PublishRun(sinkCtx, run); err != nil {
			s.log.WithError(err).WithField("sink", sink.Name()).Warn("Failed to publish run")
		} else {
			s.log.WithField("sink", sink.Name()).Debug("Published run")
		}

		cancel()
	}
}
