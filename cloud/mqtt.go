package cloud

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ObservationHandler is called for every payload received on the input topic.
// err is non-nil when the payload could not be parsed into observations.
type ObservationHandler func(topic string, obs []Vec3, err error)

// MQTTClient subscribes to observation dumps and hands them to a handler
type MQTTClient struct {
	client      mqtt.Client
	inputTopic  string
	handler     ObservationHandler
	isConnected bool
	mu          sync.RWMutex
}

// resolveMQTTSettings applies environment overrides on top of the config file.
func resolveMQTTSettings(cfg MQTTConfig) MQTTConfig {
	override := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	override(&cfg.Broker, "MQTT_BROKER")
	override(&cfg.ClientID, "MQTT_CLIENT_ID")
	override(&cfg.Username, "MQTT_USERNAME")
	override(&cfg.Password, "MQTT_PASSWORD")
	override(&cfg.InputTopic, "MQTT_INPUT_TOPIC")
	override(&cfg.PublishPrefix, "MQTT_PUBLISH_PREFIX")

	if cfg.ClientID == "" {
		cfg.ClientID = "cloudsnap"
	}
	return cfg
}

// InitMQTT builds the MQTT client and starts connecting in the background.
// If no broker is configured (file or MQTT_BROKER), MQTT is disabled and this
// returns nil, nil.
func InitMQTT(ctx context.Context, config *Config, handler ObservationHandler) (*MQTTClient, error) {
	var settings MQTTConfig
	if config != nil {
		settings = config.MQTT
	}
	settings = resolveMQTTSettings(settings)

	if settings.Broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if settings.InputTopic == "" {
		return nil, fmt.Errorf("MQTT enabled but no input topic configured")
	}

	client := &MQTTClient{
		inputTopic: settings.InputTopic,
		handler:    handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep the subscription across reconnects
	opts.SetOrderMatters(true)  // solves run one payload at a time

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry(ctx)

	return client, nil
}

// connectWithRetry attempts to connect with exponential backoff until it
// succeeds or ctx is done
func (c *MQTTClient) connectWithRetry(ctx context.Context) {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] Connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] Connected")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] Connection timeout")
		}

		log.Printf("[MQTT] Retrying in %v...", retryDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect (re)subscribes to the input topic
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	log.Printf("[MQTT] Subscribing to %s", c.inputTopic)
	token := client.Subscribe(c.inputTopic, 1, c.handleMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", c.inputTopic, token.Error())
		return
	}
	log.Printf("[MQTT] Subscribed to %s", c.inputTopic)
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] Reconnecting...")
}

// handleMessage parses an observation payload and forwards it
func (c *MQTTClient) handleMessage(client mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	log.Printf("[MQTT] Received observations (topic: %s, size: %d bytes)", msg.Topic(), len(payload))

	obs, err := ExtractVectors(string(payload))
	if err != nil {
		log.Printf("[MQTT] Error parsing payload on %s: %v", msg.Topic(), err)
	}
	if c.handler != nil {
		c.handler(msg.Topic(), obs, err)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying client, shared with the Publisher
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wires an MQTTClient around an existing mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, inputTopic string, handler ObservationHandler) *MQTTClient {
	return &MQTTClient{
		client:     client,
		inputTopic: inputTopic,
		handler:    handler,
	}
}
