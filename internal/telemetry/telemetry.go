// Package telemetry writes the numeric measurements of every assertion to
// InfluxDB so that yield and drift can be charted per station and test.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/results"
)

// Measurement is the InfluxDB measurement name of assertion points.
const Measurement = "ate_assertion"

const defaultPingTimeout = 5 * time.Second

var (
	// ErrDisabled is returned when no InfluxDB URL is configured.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)

// PointWriter writes points synchronously. api.WriteAPIBlocking satisfies it.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink publishes runs as InfluxDB points.
type Sink struct {
	log    logrus.FieldLogger
	writer PointWriter
	close  func()
}

// NewSink wraps an existing writer.
func NewSink(writer PointWriter, log logrus.FieldLogger) *Sink {
	return &Sink{
		log:    log.WithField("component", "telemetry"),
		writer: writer,
		close:  func() {},
	}
}

// Connect creates a client for cfg and checks the server is healthy.
func Connect(ctx context.Context, cfg config.InfluxConfig, log logrus.FieldLogger) (*Sink, error) {
	if cfg.URL == "" {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}

	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	sink := NewSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), log)
	sink.close = client.Close

	return sink, nil
}

// Name implements station.Sink.
func (s *Sink) Name() string { return "influxdb" }

// PublishRun implements station.Sink.
func (s *Sink) PublishRun(ctx context.Context, run *results.Run) error {
	points := Points(run)
	if len(points) == 0 {
		return nil
	}

	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("writing %d points: %w", len(points), err)
	}

	s.log.WithField("points", len(points)).Debug("Wrote measurements")

	return nil
}

// Close releases the client.
func (s *Sink) Close() {
	s.close()
}

// Points converts every assertion with at least one numeric top-level info
// value into a point. Nested values and non-numeric values are skipped. The
// point is stamped with the end of its test.
func Points(run *results.Run) []*write.Point {
	if run == nil {
		return nil
	}

	points := make([]*write.Point, 0)

	for _, dut := range run.DUTs {
		for _, o := range dut.Outcomes {
			stamp := o.Started.Add(o.Duration)
			if o.Started.IsZero() {
				stamp = run.Started
			}

			for _, a := range o.Assertions {
				fields := make(map[string]interface{})

				if a.Info != nil {
					for _, key := range a.Info.Keys() {
						value, _ := a.Info.Get(key)
						if n, ok := numeric(value); ok {
							fields[key] = n
						}
					}
				}

				if len(fields) == 0 {
					continue
				}

				tags := map[string]string{
					"station":   run.Station,
					"dut":       dut.Label,
					"test":      o.Name,
					"assertion": a.Name,
					"passed":    fmt.Sprintf("%t", a.Passed),
				}

				points = append(points, write.NewPoint(Measurement, tags, fields, stamp))
			}
		}
	}

	return points
}

func numeric(v interface{}) (interface{}, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return nil, false
	}
}
