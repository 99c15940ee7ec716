package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/device"
	"github.com/ethpandaops/rf-ate/internal/devicetest"
	"github.com/ethpandaops/rf-ate/internal/results"
	"github.com/ethpandaops/rf-ate/internal/station"
)

var _ station.Sink = (*Publisher)(nil)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)

	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	token        *fakeToken
	block        chan struct{}
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	if c.block != nil {
		<-c.block
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := payload.([]byte)
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: data})

	if c.token != nil {
		return c.token
	}

	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnected = true
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]published(nil), c.messages...)
}

func newTestPublisher() (*Publisher, *fakeClient) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	client := &fakeClient{}

	return NewPublisher(client, "rf-ate/", "station-1", log), client
}

func TestPublisher_Topics(t *testing.T) {
	p, _ := newTestPublisher()

	assert.Equal(t, "rf-ate/station-1/dut2/events", p.EventsTopic("dut2"))
	assert.Equal(t, "rf-ate/station-1/dut2/result", p.ResultTopic("dut2"))
	assert.Equal(t, "rf-ate/station-1/events", p.EventsTopic(""))
}

func TestPublisher_OnMessage(t *testing.T) {
	p, client := newTestPublisher()

	msg := devicetest.NewMessage(devicetest.StatusFail, "rf_power", "Resetting failed!")
	msg.Device = "dut3"

	require.NoError(t, p.OnMessage(msg))

	p.Close()
	assert.True(t, client.disconnected)

	sent := client.sent()
	require.Len(t, sent, 1)

	got := sent[0]
	assert.Equal(t, "rf-ate/station-1/dut3/events", got.topic)
	assert.Equal(t, eventQoS, got.qos)
	assert.False(t, got.retained)

	var view results.MessageView
	require.NoError(t, json.Unmarshal(got.payload, &view))
	assert.Equal(t, "station-1", view.Station)
	assert.Equal(t, "dut3", view.DUT)
	assert.Equal(t, "fail", view.Status)
	assert.Equal(t, "Resetting failed!", view.Content)

	require.ErrorIs(t, p.OnMessage(msg), ErrClosed)
}

func TestPublisher_OnMessageDoesNotWaitForBroker(t *testing.T) {
	p, client := newTestPublisher()
	client.block = make(chan struct{})

	queued := make(chan struct{})

	go func() {
		defer close(queued)

		for i := 0; i < 2*defaultEventBuffer; i++ {
			assert.NoError(t, p.OnMessage(devicetest.NewMessage(devicetest.StatusRunning, "rf_power", "measuring")))
		}
	}()

	select {
	case <-queued:
	case <-time.After(time.Second):
		t.Fatal("OnMessage blocked on a stalled broker")
	}

	close(client.block)
	p.Close()

	sent := client.sent()
	assert.NotEmpty(t, sent)
	assert.LessOrEqual(t, len(sent), defaultEventBuffer+1, "overflowing events are dropped")
	assert.True(t, client.disconnected)
}

func TestPublisher_CloseWithoutEvents(t *testing.T) {
	p, client := newTestPublisher()

	p.Close()
	p.Close()

	assert.Empty(t, client.sent())
	assert.True(t, client.disconnected)
}

func TestPublisher_PublishRun(t *testing.T) {
	p, client := newTestPublisher()

	run := &results.Run{
		ID:      uuid.New(),
		Station: "station-1",
		DUTs: []results.DUTResult{
			results.NewDUTResult("dut1", device.Info{Serial: "SN-1"}, []devicetest.Outcome{{Name: "battery", Passed: true}}, time.Now(), time.Second),
			results.NewDUTResult("dut2", device.Info{Serial: "SN-2"}, []devicetest.Outcome{{Name: "nvm", ErrorCode: "N"}}, time.Now(), time.Second),
		},
	}

	require.NoError(t, p.PublishRun(context.Background(), run))
	require.Len(t, client.messages, 2)

	second := client.messages[1]
	assert.Equal(t, "rf-ate/station-1/dut2/result", second.topic)
	assert.True(t, second.retained)
	assert.Equal(t, resultQoS, second.qos)

	var view results.DUTView
	require.NoError(t, json.Unmarshal(second.payload, &view))
	assert.Equal(t, run.ID.String(), view.RunID)
	assert.Equal(t, "REJECT", view.Verdict)
	assert.Equal(t, "N", view.ErrorCodes)
	require.Len(t, view.Tests, 1)
	assert.Equal(t, "nvm", view.Tests[0].Name)
}

func TestPublisher_Errors(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{name: "rejected", token: &fakeToken{err: errors.New("not authorized")}},
		{name: "timeout", token: &fakeToken{timeout: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, client := newTestPublisher()
			client.token = tt.token

			// Event publish failures are logged by the worker, not returned.
			require.NoError(t, p.OnMessage(devicetest.NewMessage(devicetest.StatusPass, "battery", "ok")))

			run := &results.Run{DUTs: []results.DUTResult{{Label: "dut1"}, {Label: "dut2"}}}
			err := p.PublishRun(context.Background(), run)
			require.ErrorIs(t, err, ErrPublishFailed)
			assert.Contains(t, err.Error(), "dut2")

			p.Close()
			assert.Len(t, client.sent(), 3)
		})
	}
}

func TestPublisher_CanceledRun(t *testing.T) {
	p, client := newTestPublisher()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, p.PublishRun(ctx, &results.Run{DUTs: []results.DUTResult{{Label: "dut1"}}}), context.Canceled)
	assert.Empty(t, client.messages)

	p.Close()
	assert.True(t, client.disconnected)
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.MQTTConfig{}, "station-1", logrus.New())
	require.ErrorIs(t, err, ErrDisabled)
}
