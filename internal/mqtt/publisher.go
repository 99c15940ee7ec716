// Package mqtt publishes station progress and DUT verdicts to an MQTT
// broker so line dashboards can follow every slot live.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/results"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250
	defaultEventBuffer       = 256

	eventQoS  byte = 0
	resultQoS byte = 1
)

var (
	// ErrConnectionFailed is returned when the broker cannot be reached.
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	// ErrPublishFailed is returned when a publish is rejected or times out.
	ErrPublishFailed = errors.New("mqtt: publish failed")
	// ErrDisabled is returned when no broker is configured.
	ErrDisabled = errors.New("mqtt: disabled in configuration")
	// ErrClosed is returned when queueing an event after Close.
	ErrClosed = errors.New("mqtt: publisher closed")
)

// Client is the subset of the paho client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Publisher is both a progress observer and a run sink. Progress events are
// queued and published by a background worker so a slow broker never stalls
// the test that emitted them.
type Publisher struct {
	log     logrus.FieldLogger
	client  Client
	prefix  string
	station string
	timeout time.Duration

	mu      sync.RWMutex
	events  chan event
	closed  bool
	start   sync.Once
	drained chan struct{}
}

type event struct {
	topic   string
	payload []byte
}

var _ devicetest.Observer = (*Publisher)(nil)

// NewPublisher wraps a connected client.
func NewPublisher(client Client, prefix, station string, log logrus.FieldLogger) *Publisher {
	return &Publisher{
		log:     log.WithField("component", "mqtt"),
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		station: station,
		timeout: defaultPublishTimeout,
		events:  make(chan event, defaultEventBuffer),
		drained: make(chan struct{}),
	}
}

// Connect dials the broker in cfg and returns a publisher for station.
func Connect(cfg config.MQTTConfig, station string, log logrus.FieldLogger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, ErrDisabled
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(defaultConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	pub := NewPublisher(nil, cfg.TopicPrefix, station, log)

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		pub.log.WithError(err).Warn("MQTT connection lost")
	})

	client := pahomqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	pub.client = client

	return pub, nil
}

// EventsTopic returns the progress topic of a DUT slot. An empty label
// addresses the station itself.
func (p *Publisher) EventsTopic(dut string) string {
	return p.topic(dut, "events")
}

// ResultTopic returns the retained verdict topic of a DUT slot.
func (p *Publisher) ResultTopic(dut string) string {
	return p.topic(dut, "result")
}

func (p *Publisher) topic(dut, leaf string) string {
	parts := []string{p.prefix, p.station}
	if dut != "" {
		parts = append(parts, dut)
	}

	return strings.Join(append(parts, leaf), "/")
}

// OnMessage implements devicetest.Observer. It never waits on the broker.
// The event is queued and dropped with a warning when the queue is full.
func (p *Publisher) OnMessage(msg devicetest.Message) error {
	payload, err := json.Marshal(results.NewMessageView(p.station, msg))
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	p.start.Do(func() { go p.drain() })

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.events <- event{topic: p.EventsTopic(msg.Device), payload: payload}:
	default:
		p.log.WithField("source", msg.Source).Warn("MQTT event queue full, dropping event")
	}

	return nil
}

func (p *Publisher) drain() {
	defer close(p.drained)

	for ev := range p.events {
		if err := p.publish(ev.topic, eventQoS, false, ev.payload); err != nil {
			p.log.WithError(err).WithField("topic", ev.topic).Debug("Failed to publish MQTT event")
		}
	}
}

// Name implements station.Sink.
func (p *Publisher) Name() string { return "mqtt" }

// PublishRun implements station.Sink. Every DUT verdict is retained so a
// dashboard that subscribes later still sees the last result per slot.
func (p *Publisher) PublishRun(ctx context.Context, run *results.Run) error {
	var errs []error

	for _, d := range run.DUTs {
		if err := ctx.Err(); err != nil {
			return err
		}

		view := results.NewDUTView(d)
		view.RunID = run.ID.String()
		view.Station = run.Station

		payload, err := json.Marshal(view)
		if err != nil {
			errs = append(errs, fmt.Errorf("encoding %s result: %w", d.Label, err))
			continue
		}

		if err := p.publish(p.ResultTopic(d.Label), resultQoS, true, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Label, err))
		}
	}

	return errors.Join(errs...)
}

func (p *Publisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, p.timeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// Close stops accepting events, gives queued events one publish timeout to
// flush and disconnects from the broker.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	close(p.events)
	p.mu.Unlock()

	// Starts the worker if no event was ever queued so drained is closed.
	p.start.Do(func() { go p.drain() })

	select {
	case <-p.drained:
	case <-time.After(p.timeout):
		p.log.Warn("Timed out flushing MQTT events")
	}

	if p.client == nil {
		return
	}

	p.client.Disconnect(defaultDisconnectQuiesce)
}
