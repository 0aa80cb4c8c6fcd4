package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/liftgate-io/liftgate/internal/infrastructure/config"
)

// Logger is the minimal logging interface the client needs. It is satisfied
// by *logging.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler processes received MQTT messages.
//
// Parameters:
//   - topic: the topic the message was received on
//   - payload: the raw message bytes
type MessageHandler func(topic string, payload []byte)

// Client wraps the paho MQTT client with connection management,
// subscription restoration on reconnect, and Liftgate status publishing.
//
// All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	clientID string
	logger   Logger

	mu            sync.RWMutex
	connected     bool
	subscriptions map[string]subscription
}

// subscription records an active subscription so it can be restored
// after reconnection (CleanSession drops broker-side state).
type subscription struct {
	qos     byte
	handler MessageHandler
}

// Connect establishes a connection to the MQTT broker.
//
// The returned client auto-reconnects on connection loss and restores
// all subscriptions when the connection comes back. A retained Last Will
// message on liftgate/system/status marks the bridge offline if the
// process dies without a graceful shutdown.
//
// Parameters:
//   - cfg: broker address, credentials and reconnect tuning
//   - logger: receives connection lifecycle warnings; must not be nil
//
// Returns:
//   - *Client: connected client ready for publish/subscribe
//   - error: ErrConnectionFailed if the broker is unreachable
func Connect(cfg config.MQTTConfig, logger Logger) (*Client, error) {
	id := clientID(cfg)

	c := &Client{
		clientID:      id,
		logger:        logger,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg, id)
	configureLWT(opts, id)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: connect timed out", ErrConnectionFailed)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return c, nil
}

// onConnect fires on every (re)connection. It marks the client connected,
// restores subscriptions and announces the bridge as online.
func (c *Client) onConnect(_ pahomqtt.Client) {
	c.mu.Lock()
	c.connected = true
	subs := make(map[string]subscription, len(c.subscriptions))
	for topic, sub := range c.subscriptions {
		subs[topic] = sub
	}
	c.mu.Unlock()

	for topic, sub := range subs {
		token := c.client.Subscribe(topic, sub.qos, wrapHandler(topic, sub.handler, c.logger))
		if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
			c.logger.Error("failed to restore subscription after reconnect",
				"topic", topic,
				"error", token.Error(),
			)
		}
	}

	c.publishOnlineStatus()
}

// onConnectionLost fires when the broker connection drops. Paho handles the
// reconnect itself; we only record state and log.
func (c *Client) onConnectionLost(_ pahomqtt.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.logger.Warn("mqtt connection lost, reconnecting", "error", err)
}

// publishOnlineStatus publishes a retained online announcement on the
// system status topic, replacing any retained offline payload.
func (c *Client) publishOnlineStatus() {
	token := c.client.Publish(Topics{}.SystemStatus(), 1, true, buildOnlinePayload(c.clientID))
	if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
		c.logger.Warn("failed to publish online status", "error", token.Error())
	}
}

// IsConnected reports whether the client currently holds a broker connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// HealthCheck returns an error when the broker connection is down.
func (c *Client) HealthCheck() error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// ClientID returns the identifier this client connected with.
func (c *Client) ClientID() string {
	return c.clientID
}

// Close gracefully shuts the connection down.
//
// A retained offline status is published first so consumers distinguish a
// deliberate shutdown from a crash (which triggers the Last Will instead).
func (c *Client) Close() error {
	if c.IsConnected() {
		token := c.client.Publish(Topics{}.SystemStatus(), 1, true, buildOfflinePayload(c.clientID))
		if !token.WaitTimeout(defaultPublishTimeout) {
			c.logger.Warn("offline status publish timed out during shutdown")
		}
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	return nil
}

// wrapHandler guards a message handler against panics so one bad payload
// cannot take down the paho dispatch goroutine.
func wrapHandler(topic string, handler MessageHandler, logger Logger) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in mqtt message handler",
					"topic", topic,
					"panic", r,
				)
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}
