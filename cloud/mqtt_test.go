package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMQTT_DisabledWithoutBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(context.Background(), DefaultConfig(), nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_RequiresInputTopic(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://127.0.0.1:1")
	t.Setenv("MQTT_INPUT_TOPIC", "")

	cfg := DefaultConfig()
	cfg.MQTT.InputTopic = ""

	_, err := InitMQTT(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "no input topic")
}

func TestResolveMQTTSettings_EnvOverrides(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	t.Setenv("MQTT_CLIENT_ID", "")
	t.Setenv("MQTT_USERNAME", "alice")
	t.Setenv("MQTT_PASSWORD", "secret")
	t.Setenv("MQTT_INPUT_TOPIC", "")
	t.Setenv("MQTT_PUBLISH_PREFIX", "ctf")

	got := resolveMQTTSettings(MQTTConfig{
		Broker:     "tcp://file:1883",
		InputTopic: "file/topic",
		Username:   "bob",
	})

	assert.Equal(t, "tcp://env:1883", got.Broker)
	assert.Equal(t, "cloudsnap", got.ClientID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "secret", got.Password)
	assert.Equal(t, "file/topic", got.InputTopic)
	assert.Equal(t, "ctf", got.PublishPrefix)
}

func TestMQTTClient_SubscribesOnConnect(t *testing.T) {
	mock := NewMockClient()
	client := newMQTTClientWithMock(mock, "cloudsnap/observations", nil)
	mock.SetOnConnect(client.onConnect)

	token := mock.Connect()
	require.NoError(t, token.Error())

	assert.True(t, client.IsConnected())
	assert.True(t, mock.Subscribed("cloudsnap/observations"))
}

func TestMQTTClient_SubscribeError(t *testing.T) {
	mock := NewMockClient()
	mock.SetSubscribeError(errors.New("denied"))
	client := newMQTTClientWithMock(mock, "in", nil)
	mock.SetOnConnect(client.onConnect)

	mock.Connect()
	assert.False(t, mock.Subscribed("in"))
}

func TestMQTTClient_HandleMessage(t *testing.T) {
	type call struct {
		topic string
		obs   []Vec3
		err   error
	}
	var mu sync.Mutex
	var calls []call

	mock := NewMockClient()
	client := newMQTTClientWithMock(mock, "in", func(topic string, obs []Vec3, err error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, call{topic, obs, err})
	})
	mock.SetOnConnect(client.onConnect)
	mock.Connect()

	require.True(t, mock.SimulateMessage("in", []byte("(0.0, 1.0, 2.0, 3.0)")))
	require.True(t, mock.SimulateMessage("in", []byte("garbage")))
	assert.False(t, mock.SimulateMessage("other", nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2)
	assert.Equal(t, "in", calls[0].topic)
	assert.Equal(t, []Vec3{{1, 2, 3}}, calls[0].obs)
	assert.NoError(t, calls[0].err)
	assert.ErrorIs(t, calls[1].err, ErrMalformedInput)
}

func TestMQTTClient_ConnectionLostAndDisconnect(t *testing.T) {
	mock := NewMockClient()
	client := newMQTTClientWithMock(mock, "in", nil)
	mock.SetOnConnect(client.onConnect)
	mock.Connect()

	client.onConnectionLost(mock, errors.New("network"))
	assert.False(t, client.IsConnected())

	client.setConnected(true)
	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, mock.IsConnected())
}

func TestMQTTClient_ConnectWithRetryStopsOnCancel(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnectError(errors.New("refused"))
	client := newMQTTClientWithMock(mock, "in", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.connectWithRetry(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("connectWithRetry did not stop after cancel")
	}
	assert.False(t, client.IsConnected())
}

func TestPublisher_PublishReport(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	pub := NewPublisher(mock, "ctf")
	report, err := NewSolveReport(sampleResult(), DefaultSolverConfig(), "mqtt", time.Second)
	require.NoError(t, err)

	require.NoError(t, pub.PublishReport(report))

	msg, ok := mock.LastPublished("ctf/result")
	require.True(t, ok)
	assert.True(t, msg.Retain)
	assert.Equal(t, byte(1), msg.QoS)

	var decoded SolveReport
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, "ictf{ABC}", decoded.Text)

	text, ok := mock.LastPublished("ctf/text")
	require.True(t, ok)
	assert.Equal(t, "ictf{ABC}", string(text.Payload))

	last, ok := pub.LastReport()
	assert.True(t, ok)
	assert.Same(t, report, last)
}

func TestPublisher_NotConnected(t *testing.T) {
	pub := NewPublisher(NewMockClient(), "ctf")
	assert.ErrorContains(t, pub.PublishReport(&SolveReport{}), "not connected")
	assert.ErrorContains(t, pub.PublishError(errors.New("x")), "not connected")

	nilPub := NewPublisher(nil, "ctf")
	assert.Error(t, nilPub.PublishReport(&SolveReport{}))
}

func TestPublisher_PublishErrorAndSettings(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	pub := NewPublisher(mock, "ctf")
	pub.SetQoS(0)
	pub.SetQoS(7) // ignored
	pub.SetRetain(false)

	require.NoError(t, pub.PublishError(errors.New("no observations")))

	msg, ok := mock.LastPublished("ctf/error")
	require.True(t, ok)
	assert.Equal(t, byte(0), msg.QoS)
	assert.False(t, msg.Retain)
	assert.Contains(t, string(msg.Payload), "no observations")
}

func TestPublisher_BrokerError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetPublishError(errors.New("quota"))

	pub := NewPublisher(mock, "ctf")
	err := pub.PublishReport(&SolveReport{Text: "x"})
	assert.ErrorContains(t, err, "publishing to ctf/result")

	_, ok := pub.LastReport()
	assert.False(t, ok)
}

func TestPublisher_PrefixFallback(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	assert.Equal(t, "cloudsnap/result", NewPublisher(nil, "").topic("result"))

	t.Setenv("MQTT_PUBLISH_PREFIX", "envprefix")
	assert.Equal(t, "envprefix/text", NewPublisher(nil, "").topic("text"))
}
